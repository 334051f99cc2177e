package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glebarez/sqlite"
	"github.com/wanderparty/tripchat/pkg/internal/database"
	"github.com/wanderparty/tripchat/pkg/internal/models"
	"github.com/wanderparty/tripchat/pkg/internal/services"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("unable to open test database: %v", err)
	}
	if err := database.RunMigration(db); err != nil {
		t.Fatalf("unable to migrate test database: %v", err)
	}
	return db
}

func newTestRegistry(t *testing.T) (*services.Registry, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC))
	registry := services.NewRegistry(newTestDB(t), services.Options{
		Clock:               mock,
		TypingTimeout:       6 * time.Second,
		LocationMinInterval: 10 * time.Second,
	})
	return registry, mock
}

// recorderSink collects everything pushed to one user.
type recorderSink struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (s *recorderSink) WriteEvent(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recorderSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *recorderSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recorderSink) byType(kind models.EventType) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, ev := range s.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition was not met in time")
}

var (
	alice = models.Account{UserID: "u-alice", UserName: "Alice", Role: models.RoleMember}
	bob   = models.Account{UserID: "u-bob", UserName: "Bob", Role: models.RoleMember}
	carol = models.Account{UserID: "u-carol", UserName: "Carol", Role: models.RoleAdmin}
)
