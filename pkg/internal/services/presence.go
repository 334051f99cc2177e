package services

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

type presenceKey struct {
	vacationId string
	userId     string
}

type typingState struct {
	models.TypingUser
	seq   uint64
	timer *clock.Timer
}

// PresenceTracker keeps the ephemeral per-(room, user) presence and
// typing state. The tracker itself expires typing indicators after the
// configured inactivity timeout; callers only refresh them.
type PresenceTracker struct {
	mu      sync.Mutex
	clock   clock.Clock
	timeout time.Duration

	rooms *RoomRegistry
	conns *ConnectionRegistry

	typing   map[presenceKey]*typingState
	presence map[presenceKey]models.UserPresence
}

func NewPresenceTracker(rooms *RoomRegistry, conns *ConnectionRegistry, ck clock.Clock, typingTimeout time.Duration) *PresenceTracker {
	return &PresenceTracker{
		clock:    ck,
		timeout:  typingTimeout,
		rooms:    rooms,
		conns:    conns,
		typing:   make(map[presenceKey]*typingState),
		presence: make(map[presenceKey]models.UserPresence),
	}
}

// SetTyping upserts the typing indicator. Every refresh pushes the expiry
// out by the inactivity timeout; an explicit stop clears it at once.
func (t *PresenceTracker) SetTyping(vacationId string, user models.Account, isTyping bool) models.TypingUser {
	key := presenceKey{vacationId: vacationId, userId: user.UserID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !isTyping {
		if state, ok := t.typing[key]; ok {
			state.timer.Stop()
			delete(t.typing, key)
		}
		return models.TypingUser{
			VacationID: vacationId,
			UserID:     user.UserID,
			UserName:   user.UserName,
			IsTyping:   false,
			StartedAt:  t.clock.Now(),
		}
	}

	state, ok := t.typing[key]
	if !ok {
		state = &typingState{
			TypingUser: models.TypingUser{
				VacationID: vacationId,
				UserID:     user.UserID,
				UserName:   user.UserName,
				IsTyping:   true,
				StartedAt:  t.clock.Now(),
			},
		}
		t.typing[key] = state
	}

	state.seq++
	seq := state.seq
	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = t.clock.AfterFunc(t.timeout, func() {
		t.expireTyping(key, seq)
	})

	return state.TypingUser
}

func (t *PresenceTracker) expireTyping(key presenceKey, seq uint64) {
	t.mu.Lock()
	state, ok := t.typing[key]
	if !ok || state.seq != seq {
		t.mu.Unlock()
		return
	}
	delete(t.typing, key)
	stopped := state.TypingUser
	stopped.IsTyping = false
	t.mu.Unlock()

	t.broadcast(key.vacationId, key.userId, models.Event{
		Type:      models.EventTyping,
		Timestamp: t.clock.Now(),
		Typing:    &stopped,
	})
}

// UpdatePresence upserts the user's status. Offline state is owned by the
// disconnect path; a user reported offline stays offline until a fresh
// connect and join.
func (t *PresenceTracker) UpdatePresence(vacationId string, user models.Account, status models.PresenceStatus, activity string) (models.UserPresence, error) {
	valid := []models.PresenceStatus{
		models.PresenceOnline, models.PresenceAway,
		models.PresenceBusy, models.PresenceOffline,
	}
	if !lo.Contains(valid, status) {
		return models.UserPresence{}, models.ErrValidation("unknown presence status %q", status)
	}

	key := presenceKey{vacationId: vacationId, userId: user.UserID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.presence[key]; ok && current.Status == models.PresenceOffline && status != models.PresenceOnline {
		return current, models.ErrValidation("presence is offline until the user rejoins")
	}

	updated := models.UserPresence{
		VacationID: vacationId,
		UserID:     user.UserID,
		Status:     status,
		LastSeen:   t.clock.Now(),
		Activity:   activity,
	}
	t.presence[key] = updated
	return updated, nil
}

// TouchOnline marks a freshly joined user online. Called from the join
// path, never from event dispatch.
func (t *PresenceTracker) TouchOnline(vacationId string, user models.Account) models.UserPresence {
	key := presenceKey{vacationId: vacationId, userId: user.UserID}

	t.mu.Lock()
	defer t.mu.Unlock()

	updated := models.UserPresence{
		VacationID: vacationId,
		UserID:     user.UserID,
		Status:     models.PresenceOnline,
		LastSeen:   t.clock.Now(),
	}
	t.presence[key] = updated
	return updated
}

// Disconnect force-transitions the user to offline in the given rooms,
// freezing lastSeen, and clears any live typing indicator there.
func (t *PresenceTracker) Disconnect(userId string, vacationIds []string) {
	now := t.clock.Now()

	for _, vacationId := range vacationIds {
		key := presenceKey{vacationId: vacationId, userId: userId}

		t.mu.Lock()
		if state, ok := t.typing[key]; ok {
			state.timer.Stop()
			delete(t.typing, key)
		}
		offline := models.UserPresence{
			VacationID: vacationId,
			UserID:     userId,
			Status:     models.PresenceOffline,
			LastSeen:   now,
		}
		if current, ok := t.presence[key]; ok {
			offline.Activity = current.Activity
		}
		t.presence[key] = offline
		t.mu.Unlock()

		t.broadcast(vacationId, userId, models.Event{
			Type:      models.EventPresence,
			Timestamp: now,
			Presence:  &offline,
		})
	}
}

// Snapshot returns the presence entries known for a room.
func (t *PresenceTracker) Snapshot(vacationId string) []models.UserPresence {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []models.UserPresence
	for key, entry := range t.presence {
		if key.vacationId == vacationId {
			out = append(out, entry)
		}
	}
	return out
}

// Presence returns the tracked state for one (room, user).
func (t *PresenceTracker) Presence(vacationId, userId string) (models.UserPresence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.presence[presenceKey{vacationId: vacationId, userId: userId}]
	return entry, ok
}

// Typing reports whether the user currently shows as typing in the room.
func (t *PresenceTracker) Typing(vacationId, userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[presenceKey{vacationId: vacationId, userId: userId}]
	return ok
}

func (t *PresenceTracker) broadcast(vacationId, exceptUserId string, ev models.Event) {
	t.rooms.Serialize(vacationId, func(members []models.Account) {
		targets := lo.FilterMap(members, func(member models.Account, _ int) (string, bool) {
			return member.UserID, member.UserID != exceptUserId
		})
		_ = t.conns.PushBatch(targets, ev)
	})
}
