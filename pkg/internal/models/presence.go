package models

import "time"

type PresenceStatus = string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// UserPresence lives per (vacation, user) and is never persisted.
type UserPresence struct {
	VacationID string         `json:"vacation_id"`
	UserID     string         `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	LastSeen   time.Time      `json:"last_seen"`
	Activity   string         `json:"activity,omitempty"`
}

// TypingUser is the ephemeral typing indicator for one (vacation, user).
type TypingUser struct {
	VacationID string    `json:"vacation_id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	IsTyping   bool      `json:"is_typing"`
	StartedAt  time.Time `json:"started_at"`
}
