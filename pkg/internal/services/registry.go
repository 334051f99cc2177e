package services

import (
	"time"

	"github.com/benbjohnson/clock"
	"gorm.io/gorm"
)

// Options carries the policy knobs the components need. Zero values fall
// back to the defaults below; production values come from settings.toml.
type Options struct {
	Clock               clock.Clock
	TypingTimeout       time.Duration
	LocationMinInterval time.Duration
}

const (
	DefaultTypingTimeout       = 6 * time.Second
	DefaultLocationMinInterval = 10 * time.Second
)

// Registry bundles the messaging core. One per process, created at
// service start and drained at shutdown; no component hides behind a
// package-level singleton.
type Registry struct {
	Conns     *ConnectionRegistry
	Rooms     *RoomRegistry
	Messages  *MessageLog
	Presence  *PresenceTracker
	Locations *LocationBroadcaster
	Router    *EventRouter
}

func NewRegistry(db *gorm.DB, opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = DefaultTypingTimeout
	}
	if opts.LocationMinInterval <= 0 {
		opts.LocationMinInterval = DefaultLocationMinInterval
	}

	conns := NewConnectionRegistry()
	rooms := NewRoomRegistry(conns, opts.Clock)
	messages := NewMessageLog(db, opts.Clock)
	presence := NewPresenceTracker(rooms, conns, opts.Clock, opts.TypingTimeout)
	locations := NewLocationBroadcaster(rooms, conns, opts.Clock, opts.LocationMinInterval)

	return &Registry{
		Conns:     conns,
		Rooms:     rooms,
		Messages:  messages,
		Presence:  presence,
		Locations: locations,
		Router:    NewEventRouter(rooms, conns, messages, presence, locations, opts.Clock),
	}
}

// Drain lets in-flight room operations finish and clears all live
// memberships. Connections still open afterwards only receive
// connectionStatus traffic.
func (r *Registry) Drain() {
	r.Rooms.Drain()
}
