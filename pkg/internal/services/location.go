package services

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

type locationEntry struct {
	payload       models.LocationPayload
	lastBroadcast time.Time
	pending       bool
	flush         *clock.Timer
}

// LocationBroadcaster relays live location updates, keeping only the most
// recent one per (room, user). Non-emergency updates inside the minimum
// interval are coalesced to the latest value and flushed when the window
// reopens; emergency updates bypass the limit entirely and are retried
// harder on transient delivery failure.
type LocationBroadcaster struct {
	mu          sync.Mutex
	clock       clock.Clock
	minInterval time.Duration

	emergencyRetries int
	emergencyBackoff time.Duration

	rooms *RoomRegistry
	conns *ConnectionRegistry

	latest map[presenceKey]*locationEntry
}

func NewLocationBroadcaster(rooms *RoomRegistry, conns *ConnectionRegistry, ck clock.Clock, minInterval time.Duration) *LocationBroadcaster {
	return &LocationBroadcaster{
		clock:            ck,
		minInterval:      minInterval,
		emergencyRetries: 3,
		emergencyBackoff: 250 * time.Millisecond,
		rooms:            rooms,
		conns:            conns,
		latest:           make(map[presenceKey]*locationEntry),
	}
}

// Publish accepts an update and reports whether it was broadcast
// immediately. A rate-limited update is never an error for the caller; it
// is kept as the latest value and delivered when the window reopens.
func (b *LocationBroadcaster) Publish(vacationId string, sender models.Account, update models.LocationUpdate) bool {
	update.Timestamp = b.clock.Now()
	payload := models.LocationPayload{
		VacationID:     vacationId,
		UserID:         sender.UserID,
		UserName:       sender.UserName,
		LocationUpdate: update,
	}
	key := presenceKey{vacationId: vacationId, userId: sender.UserID}

	b.mu.Lock()
	entry, ok := b.latest[key]
	if !ok {
		entry = &locationEntry{}
		b.latest[key] = entry
	}
	entry.payload = payload

	if update.IsEmergency {
		// Priority delivery: whatever non-emergency update is queued for
		// this user is superseded by the emergency one.
		if entry.flush != nil {
			entry.flush.Stop()
			entry.flush = nil
		}
		entry.pending = false
		entry.lastBroadcast = update.Timestamp
		b.mu.Unlock()

		b.broadcastEmergency(key, payload)
		return true
	}

	elapsed := update.Timestamp.Sub(entry.lastBroadcast)
	if !entry.lastBroadcast.IsZero() && elapsed < b.minInterval {
		if !entry.pending {
			entry.pending = true
			entry.flush = b.clock.AfterFunc(b.minInterval-elapsed, func() {
				b.flushPending(key)
			})
		}
		b.mu.Unlock()
		return false
	}

	entry.lastBroadcast = update.Timestamp
	b.mu.Unlock()

	b.broadcast(key, payload)
	return true
}

func (b *LocationBroadcaster) flushPending(key presenceKey) {
	b.mu.Lock()
	entry, ok := b.latest[key]
	if !ok || !entry.pending {
		b.mu.Unlock()
		return
	}
	entry.pending = false
	entry.flush = nil
	entry.lastBroadcast = b.clock.Now()
	payload := entry.payload
	b.mu.Unlock()

	b.broadcast(key, payload)
}

func (b *LocationBroadcaster) broadcast(key presenceKey, payload models.LocationPayload) error {
	ev := models.Event{
		Type:      models.EventLocation,
		Timestamp: payload.Timestamp,
		Location:  &payload,
	}

	var pushErr error
	b.rooms.Serialize(key.vacationId, func(members []models.Account) {
		targets := lo.FilterMap(members, func(member models.Account, _ int) (string, bool) {
			return member.UserID, member.UserID != key.userId
		})
		pushErr = b.conns.PushBatch(targets, ev)
	})
	return pushErr
}

// broadcastEmergency delivers immediately and keeps retrying on a shorter
// backoff than regular traffic; the consuming use case is safety-critical.
func (b *LocationBroadcaster) broadcastEmergency(key presenceKey, payload models.LocationPayload) {
	if err := b.broadcast(key, payload); err == nil {
		return
	}

	go func() {
		for attempt := 1; attempt <= b.emergencyRetries; attempt++ {
			b.clock.Sleep(b.emergencyBackoff * time.Duration(attempt))
			if err := b.broadcast(key, payload); err == nil {
				return
			} else if attempt == b.emergencyRetries {
				log.Warn().Err(err).
					Str("vacation_id", key.vacationId).
					Str("user_id", key.userId).
					Msg("Emergency location broadcast kept failing, giving up...")
			}
		}
	}()
}

// Latest returns the most recent update per member of a room.
func (b *LocationBroadcaster) Latest(vacationId string) []models.LocationPayload {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.LocationPayload
	for key, entry := range b.latest {
		if key.vacationId == vacationId {
			out = append(out, entry.payload)
		}
	}
	return out
}

// Forget drops the latest-value state for a user in a room, typically
// when they leave.
func (b *LocationBroadcaster) Forget(vacationId, userId string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := presenceKey{vacationId: vacationId, userId: userId}
	if entry, ok := b.latest[key]; ok {
		if entry.flush != nil {
			entry.flush.Stop()
		}
		delete(b.latest, key)
	}
}
