package models

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

type EventType string

const (
	EventMessage          EventType = "message"
	EventLocation         EventType = "location"
	EventTyping           EventType = "typing"
	EventUserJoined       EventType = "userJoined"
	EventUserLeft         EventType = "userLeft"
	EventReaction         EventType = "reaction"
	EventPresence         EventType = "presence"
	EventVacationUpdate   EventType = "vacationUpdate"
	EventConnectionStatus EventType = "connectionStatus"
	EventError            EventType = "error"
)

// Event is the wire envelope. Exactly one payload field is set, matching
// Type, so dispatch never guesses at payload shapes.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Message          *Message                 `json:"-"`
	Location         *LocationPayload         `json:"-"`
	Typing           *TypingUser              `json:"-"`
	UserJoined       *MembershipPayload       `json:"-"`
	UserLeft         *MembershipPayload       `json:"-"`
	Reaction         *ReactionPayload         `json:"-"`
	Presence         *UserPresence            `json:"-"`
	VacationUpdate   *VacationUpdatePayload   `json:"-"`
	ConnectionStatus *ConnectionStatusPayload `json:"-"`
	Error            *ErrorPayload            `json:"-"`
}

type LocationPayload struct {
	VacationID string `json:"vacation_id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name,omitempty"`
	LocationUpdate
}

type MembershipPayload struct {
	VacationID string `json:"vacation_id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	PhotoURL   string `json:"photo_url,omitempty"`
	Role       string `json:"role,omitempty"`
}

type ReactionAction = string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

type ReactionPayload struct {
	VacationID string         `json:"vacation_id"`
	MessageID  string         `json:"message_id"`
	UserID     string         `json:"user_id"`
	Reaction   string         `json:"reaction"`
	Action     ReactionAction `json:"action"`
}

type VacationUpdatePayload struct {
	VacationID string         `json:"vacation_id"`
	UpdatedBy  string         `json:"updated_by,omitempty"`
	Changes    map[string]any `json:"changes"`
}

type ConnectionStatusPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type eventEnvelope struct {
	Type      EventType           `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Payload   jsoniter.RawMessage `json:"payload"`
}

func (e Event) payload() any {
	switch e.Type {
	case EventMessage:
		return e.Message
	case EventLocation:
		return e.Location
	case EventTyping:
		return e.Typing
	case EventUserJoined:
		return e.UserJoined
	case EventUserLeft:
		return e.UserLeft
	case EventReaction:
		return e.Reaction
	case EventPresence:
		return e.Presence
	case EventVacationUpdate:
		return e.VacationUpdate
	case EventConnectionStatus:
		return e.ConnectionStatus
	case EventError:
		return e.Error
	}
	return nil
}

// VacationID reports the room scope of the event, empty for events that
// are not room-scoped (connectionStatus, error).
func (e Event) VacationID() string {
	switch e.Type {
	case EventMessage:
		if e.Message != nil {
			return e.Message.VacationID
		}
	case EventLocation:
		if e.Location != nil {
			return e.Location.VacationID
		}
	case EventTyping:
		if e.Typing != nil {
			return e.Typing.VacationID
		}
	case EventUserJoined:
		if e.UserJoined != nil {
			return e.UserJoined.VacationID
		}
	case EventUserLeft:
		if e.UserLeft != nil {
			return e.UserLeft.VacationID
		}
	case EventReaction:
		if e.Reaction != nil {
			return e.Reaction.VacationID
		}
	case EventPresence:
		if e.Presence != nil {
			return e.Presence.VacationID
		}
	case EventVacationUpdate:
		if e.VacationUpdate != nil {
			return e.VacationUpdate.VacationID
		}
	}
	return ""
}

func (e Event) MarshalJSON() ([]byte, error) {
	var raw jsoniter.RawMessage
	if p := e.payload(); p != nil {
		encoded, err := jsoniter.Marshal(p)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return jsoniter.Marshal(eventEnvelope{
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Payload:   raw,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var envelope eventEnvelope
	if err := jsoniter.Unmarshal(data, &envelope); err != nil {
		return err
	}

	*e = Event{Type: envelope.Type, Timestamp: envelope.Timestamp}

	var target any
	switch envelope.Type {
	case EventMessage:
		e.Message = &Message{}
		target = e.Message
	case EventLocation:
		e.Location = &LocationPayload{}
		target = e.Location
	case EventTyping:
		e.Typing = &TypingUser{}
		target = e.Typing
	case EventUserJoined:
		e.UserJoined = &MembershipPayload{}
		target = e.UserJoined
	case EventUserLeft:
		e.UserLeft = &MembershipPayload{}
		target = e.UserLeft
	case EventReaction:
		e.Reaction = &ReactionPayload{}
		target = e.Reaction
	case EventPresence:
		e.Presence = &UserPresence{}
		target = e.Presence
	case EventVacationUpdate:
		e.VacationUpdate = &VacationUpdatePayload{}
		target = e.VacationUpdate
	case EventConnectionStatus:
		e.ConnectionStatus = &ConnectionStatusPayload{}
		target = e.ConnectionStatus
	case EventError:
		e.Error = &ErrorPayload{}
		target = e.Error
	default:
		return fmt.Errorf("unknown event type %q", envelope.Type)
	}

	if len(envelope.Payload) == 0 {
		return nil
	}
	return jsoniter.Unmarshal(envelope.Payload, target)
}

func (e Event) Marshal() []byte {
	raw, _ := jsoniter.Marshal(e)
	return raw
}

// EventFromError wraps a caller-directed failure into an error event.
func EventFromError(err error, at time.Time) Event {
	payload := ErrorPayload{Code: CodeValidation, Message: err.Error()}
	if coded, ok := AsCoded(err); ok {
		payload.Code = coded.Code
		payload.Message = coded.Reason
	}
	return Event{Type: EventError, Timestamp: at, Error: &payload}
}
