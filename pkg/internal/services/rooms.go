package services

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// RoomRegistry maps a vacation id to its currently subscribed members.
// Membership changes and the notifications they produce happen under the
// room's lock, so every other member observes them in order.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*room

	conns *ConnectionRegistry
	clock clock.Clock
}

type room struct {
	mu      sync.Mutex
	members map[string]*memberEntry
}

type memberEntry struct {
	account  models.Account
	sessions map[string]struct{}
}

func NewRoomRegistry(conns *ConnectionRegistry, ck clock.Clock) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*room),
		conns: conns,
		clock: ck,
	}
}

func (r *RoomRegistry) room(vacationId string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rooms[vacationId]; ok {
		return existing
	}
	created := &room{members: make(map[string]*memberEntry)}
	r.rooms[vacationId] = created
	return created
}

// Join subscribes one session of a user. The userJoined notice goes out
// to existing members only, and only for the user's first session.
func (r *RoomRegistry) Join(vacationId string, account models.Account, sessionId string) {
	target := r.room(vacationId)
	target.mu.Lock()
	defer target.mu.Unlock()

	entry, ok := target.members[account.UserID]
	if ok {
		entry.sessions[sessionId] = struct{}{}
		entry.account = account
		return
	}

	others := lo.Keys(target.members)
	target.members[account.UserID] = &memberEntry{
		account:  account,
		sessions: map[string]struct{}{sessionId: {}},
	}

	_ = r.conns.PushBatch(others, models.Event{
		Type:      models.EventUserJoined,
		Timestamp: r.clock.Now(),
		UserJoined: &models.MembershipPayload{
			VacationID: vacationId,
			UserID:     account.UserID,
			UserName:   account.UserName,
			PhotoURL:   account.PhotoURL,
			Role:       account.Role,
		},
	})
}

// Leave drops one session; the userLeft notice fires when the user's last
// session is gone. Reports whether the user fully left the room.
func (r *RoomRegistry) Leave(vacationId, userId, sessionId string) bool {
	target := r.room(vacationId)
	target.mu.Lock()
	defer target.mu.Unlock()
	return r.leaveLocked(target, vacationId, userId, sessionId)
}

func (r *RoomRegistry) leaveLocked(target *room, vacationId, userId, sessionId string) bool {
	entry, ok := target.members[userId]
	if !ok {
		return false
	}
	delete(entry.sessions, sessionId)
	if len(entry.sessions) > 0 {
		return false
	}
	delete(target.members, userId)

	_ = r.conns.PushBatch(lo.Keys(target.members), models.Event{
		Type:      models.EventUserLeft,
		Timestamp: r.clock.Now(),
		UserLeft: &models.MembershipPayload{
			VacationID: vacationId,
			UserID:     userId,
			UserName:   entry.account.UserName,
			PhotoURL:   entry.account.PhotoURL,
			Role:       entry.account.Role,
		},
	})
	return true
}

// LeaveAll removes one session from every room, returning the vacation
// ids where the user has no sessions left. Used on connection loss so the
// presence tracker can force those rooms to offline.
func (r *RoomRegistry) LeaveAll(userId, sessionId string) []string {
	r.mu.Lock()
	snapshot := make(map[string]*room, len(r.rooms))
	for id, room := range r.rooms {
		snapshot[id] = room
	}
	r.mu.Unlock()

	var fullyLeft []string
	for vacationId, target := range snapshot {
		target.mu.Lock()
		if r.leaveLocked(target, vacationId, userId, sessionId) {
			fullyLeft = append(fullyLeft, vacationId)
		}
		target.mu.Unlock()
	}
	return fullyLeft
}

func (r *RoomRegistry) MembersOf(vacationId string) []string {
	target := r.room(vacationId)
	target.mu.Lock()
	defer target.mu.Unlock()
	return lo.Keys(target.members)
}

func (r *RoomRegistry) Member(vacationId, userId string) (models.Account, bool) {
	target := r.room(vacationId)
	target.mu.Lock()
	defer target.mu.Unlock()
	if entry, ok := target.members[userId]; ok {
		return entry.account, true
	}
	return models.Account{}, false
}

// Serialize runs fn under the room's lock with a snapshot of the current
// membership, giving callers the per-room total order the event router
// relies on.
func (r *RoomRegistry) Serialize(vacationId string, fn func(members []models.Account)) {
	target := r.room(vacationId)
	target.mu.Lock()
	defer target.mu.Unlock()

	members := make([]models.Account, 0, len(target.members))
	for _, entry := range target.members {
		members = append(members, entry.account)
	}
	fn(members)
}

// Drain waits out in-flight room operations and clears all memberships.
// Called once at shutdown.
func (r *RoomRegistry) Drain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, target := range r.rooms {
		target.mu.Lock()
		target.members = make(map[string]*memberEntry)
		target.mu.Unlock()
	}
	r.rooms = make(map[string]*room)
}
