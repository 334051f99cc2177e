package models

import "time"

// LocationUpdate is latest-wins per (vacation, user); it is relayed, not
// logged. Emergency updates bypass the broadcaster's rate limiting.
type LocationUpdate struct {
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Accuracy    *float64  `json:"accuracy,omitempty"`
	Speed       *float64  `json:"speed,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
	Altitude    *float64  `json:"altitude,omitempty"`
	Message     string    `json:"message,omitempty"`
	IsEmergency bool      `json:"is_emergency,omitempty"`
	Battery     *int      `json:"battery_level,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
