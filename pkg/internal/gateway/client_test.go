package gateway_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/wanderparty/tripchat/pkg/internal/gateway"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

func TestClientTargetsTheCurrentVacation(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC))
	transport := &fakeTransport{clock: mock}
	client := gateway.NewClient(gateway.Config{
		Transport: transport,
		Clock:     mock,
		Policy:    gateway.DefaultReconnectPolicy,
	})

	if err := client.Connect(trip); err != nil {
		t.Fatalf("connect returned error: %v", err)
	}
	if err := client.SendMessage("at the gate", models.MessageTypeText); err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	if err := client.SendTyping(true); err != nil {
		t.Fatalf("typing returned error: %v", err)
	}

	sent := transport.conn(0).sentEvents()
	last := sent[len(sent)-1]
	if last.Type != models.EventTyping || last.Typing.VacationID != trip {
		t.Fatalf("expected typing scoped to the current party, got %+v", last)
	}

	if err := client.LeaveVacation(trip); err != nil {
		t.Fatalf("leave returned error: %v", err)
	}
	sent = transport.conn(0).sentEvents()
	last = sent[len(sent)-1]
	if last.Type != models.EventUserLeft || last.UserLeft.VacationID != trip {
		t.Fatalf("expected a leave on the wire, got %+v", last)
	}

	// Without a current party the helpers fail validation, not transport.
	if err := client.SendMessage("orphan", models.MessageTypeText); err == nil {
		t.Fatal("expected validation error without a current party")
	}
}

func TestLeftVacationIsNotReplayedOnResume(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC))
	transport := &fakeTransport{clock: mock}
	client := gateway.NewClient(gateway.Config{
		Transport: transport,
		Clock:     mock,
		Policy:    gateway.DefaultReconnectPolicy,
	})

	if err := client.Connect(trip); err != nil {
		t.Fatalf("connect returned error: %v", err)
	}
	if err := client.JoinVacation("trip-other"); err != nil {
		t.Fatalf("join returned error: %v", err)
	}
	if err := client.LeaveVacation("trip-other"); err != nil {
		t.Fatalf("leave returned error: %v", err)
	}
	if rooms := client.Rooms(); len(rooms) != 1 || rooms[0] != trip {
		t.Fatalf("a left party must leave the replay set, got %v", rooms)
	}

	transport.conn(0).drop(errSocketDropped)
	waitUntil(t, client.IsReconnecting)
	settle()
	mock.Add(time.Second)
	waitUntil(t, client.IsConnected)

	resumed := transport.conn(1)
	waitUntil(t, func() bool { return len(resumed.sentEvents()) > 0 })
	settle()
	sent := resumed.sentEvents()
	if len(sent) != 1 || sent[0].Type != models.EventUserJoined || sent[0].UserJoined.VacationID != trip {
		replayed := make([]string, 0, len(sent))
		for _, ev := range sent {
			replayed = append(replayed, ev.VacationID())
		}
		t.Fatalf("resume must replay only still-joined rooms, got %v", replayed)
	}
}
