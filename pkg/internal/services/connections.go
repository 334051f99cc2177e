package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// EventSink is one deliverable client connection. The websocket gateway
// wraps its conn into one; tests substitute stubs.
type EventSink interface {
	WriteEvent(ev models.Event) error
}

// ConnectionRegistry tracks every online session, keyed by user then by
// session so multiple devices per user stay independent delivery targets.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	sinks map[string]map[string]EventSink
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sinks: make(map[string]map[string]EventSink),
	}
}

func (r *ConnectionRegistry) Register(userId, sessionId string, sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sinks[userId]; !ok {
		r.sinks[userId] = make(map[string]EventSink)
	}
	r.sinks[userId][sessionId] = sink
}

func (r *ConnectionRegistry) Unregister(userId, sessionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sessions, ok := r.sinks[userId]; ok {
		delete(sessions, sessionId)
		if len(sessions) == 0 {
			delete(r.sinks, userId)
		}
	}
}

func (r *ConnectionRegistry) CheckOnline(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks[userId]) > 0
}

// Push delivers an event to every session of one user. A failing session
// does not stop delivery to the remaining ones.
func (r *ConnectionRegistry) Push(userId string, ev models.Event) error {
	r.mu.RLock()
	sessions := make([]EventSink, 0, len(r.sinks[userId]))
	for _, sink := range r.sinks[userId] {
		sessions = append(sessions, sink)
	}
	r.mu.RUnlock()

	var errs []error
	for _, sink := range sessions {
		if err := sink.WriteEvent(ev); err != nil {
			errs = append(errs, fmt.Errorf("push to %s: %w", userId, err))
		}
	}
	return errors.Join(errs...)
}

func (r *ConnectionRegistry) PushBatch(userIds []string, ev models.Event) error {
	var errs []error
	for _, userId := range userIds {
		if err := r.Push(userId, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
