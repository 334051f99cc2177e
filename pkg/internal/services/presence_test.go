package services_test

import (
	"testing"
	"time"

	"github.com/wanderparty/tripchat/pkg/internal/models"
)

func TestTypingExpiresAfterInactivity(t *testing.T) {
	registry, mock := newTestRegistry(t)

	aliceSink := &recorderSink{}
	bobSink := &recorderSink{}
	registry.Conns.Register(alice.UserID, "s-alice", aliceSink)
	registry.Conns.Register(bob.UserID, "s-bob", bobSink)
	registry.Rooms.Join(trip, alice, "s-alice")
	registry.Rooms.Join(trip, bob, "s-bob")

	state := registry.Presence.SetTyping(trip, alice, true)
	if !state.IsTyping || state.UserID != alice.UserID {
		t.Fatalf("unexpected typing state %+v", state)
	}
	if !registry.Presence.Typing(trip, alice.UserID) {
		t.Fatal("tracker should report alice typing")
	}

	mock.Add(6 * time.Second)

	if registry.Presence.Typing(trip, alice.UserID) {
		t.Fatal("typing should expire after the inactivity timeout")
	}
	expired := bobSink.byType(models.EventTyping)
	if len(expired) != 1 {
		t.Fatalf("expected one expiry notice for bob, got %d", len(expired))
	}
	if expired[0].Typing.IsTyping || expired[0].Typing.UserID != alice.UserID {
		t.Fatalf("unexpected expiry payload %+v", expired[0].Typing)
	}
	if aliceSink.count() != 0 {
		t.Fatal("the typist must not receive their own expiry notice")
	}
}

func TestTypingRefreshExtendsTheTimeout(t *testing.T) {
	registry, mock := newTestRegistry(t)

	bobSink := &recorderSink{}
	registry.Conns.Register(bob.UserID, "s-bob", bobSink)
	registry.Rooms.Join(trip, alice, "s-alice")
	registry.Rooms.Join(trip, bob, "s-bob")

	registry.Presence.SetTyping(trip, alice, true)
	mock.Add(4 * time.Second)
	registry.Presence.SetTyping(trip, alice, true)
	mock.Add(4 * time.Second)

	if !registry.Presence.Typing(trip, alice.UserID) {
		t.Fatal("a refresh must push the expiry out")
	}
	if len(bobSink.byType(models.EventTyping)) != 0 {
		t.Fatal("no expiry notice before the refreshed timeout elapses")
	}

	mock.Add(2 * time.Second)
	if registry.Presence.Typing(trip, alice.UserID) {
		t.Fatal("typing should expire once the refreshed timeout elapses")
	}
	if len(bobSink.byType(models.EventTyping)) != 1 {
		t.Fatal("expected exactly one expiry notice")
	}
}

func TestTypingExplicitStopClearsImmediately(t *testing.T) {
	registry, mock := newTestRegistry(t)

	bobSink := &recorderSink{}
	registry.Conns.Register(bob.UserID, "s-bob", bobSink)
	registry.Rooms.Join(trip, alice, "s-alice")
	registry.Rooms.Join(trip, bob, "s-bob")

	registry.Presence.SetTyping(trip, alice, true)
	state := registry.Presence.SetTyping(trip, alice, false)
	if state.IsTyping {
		t.Fatal("explicit stop should report not typing")
	}
	if registry.Presence.Typing(trip, alice.UserID) {
		t.Fatal("explicit stop should clear the indicator at once")
	}

	// The stale timer must not fire a second stop later.
	mock.Add(time.Minute)
	if len(bobSink.byType(models.EventTyping)) != 0 {
		t.Fatal("no expiry notice after an explicit stop")
	}
}

func TestPresenceOfflineIsStickyUntilRejoin(t *testing.T) {
	registry, _ := newTestRegistry(t)

	registry.Rooms.Join(trip, alice, "s-alice")

	if _, err := registry.Presence.UpdatePresence(trip, alice, models.PresenceAway, "boarding"); err != nil {
		t.Fatalf("update returned error: %v", err)
	}
	if _, err := registry.Presence.UpdatePresence(trip, alice, "invisible", ""); err == nil {
		t.Fatal("expected validation error for an unknown status")
	}

	registry.Presence.Disconnect(alice.UserID, []string{trip})

	_, err := registry.Presence.UpdatePresence(trip, alice, models.PresenceAway, "")
	if coded, ok := models.AsCoded(err); !ok || coded.Code != models.CodeValidation {
		t.Fatalf("expected offline to stay sticky, got %v", err)
	}

	back, err := registry.Presence.UpdatePresence(trip, alice, models.PresenceOnline, "")
	if err != nil || back.Status != models.PresenceOnline {
		t.Fatalf("coming back online failed: %+v %v", back, err)
	}
}

func TestDisconnectForcesOfflineAndClearsTyping(t *testing.T) {
	registry, mock := newTestRegistry(t)

	bobSink := &recorderSink{}
	registry.Conns.Register(bob.UserID, "s-bob", bobSink)
	registry.Rooms.Join(trip, alice, "s-alice")
	registry.Rooms.Join(trip, bob, "s-bob")

	registry.Presence.TouchOnline(trip, alice)
	registry.Presence.SetTyping(trip, alice, true)

	droppedAt := mock.Now()
	registry.Presence.Disconnect(alice.UserID, []string{trip})

	entry, ok := registry.Presence.Presence(trip, alice.UserID)
	if !ok || entry.Status != models.PresenceOffline {
		t.Fatalf("expected offline presence, got %+v", entry)
	}
	if !entry.LastSeen.Equal(droppedAt) {
		t.Fatalf("lastSeen should freeze at disconnect time, got %v", entry.LastSeen)
	}
	if registry.Presence.Typing(trip, alice.UserID) {
		t.Fatal("disconnect must clear the typing indicator")
	}

	notices := bobSink.byType(models.EventPresence)
	if len(notices) != 1 || notices[0].Presence.Status != models.PresenceOffline {
		t.Fatalf("expected one offline notice for bob, got %v", notices)
	}

	// LastSeen stays frozen as time moves on.
	mock.Add(time.Hour)
	entry, _ = registry.Presence.Presence(trip, alice.UserID)
	if !entry.LastSeen.Equal(droppedAt) {
		t.Fatal("lastSeen must not drift after disconnect")
	}
}
