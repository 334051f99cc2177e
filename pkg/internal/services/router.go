package services

import (
	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// EventRouter demultiplexes inbound events, stamps authoritative
// timestamps, delegates to the owning component and fans the enriched
// event out to the room. Everything room-scoped runs under the room's
// lock, so recipients observe one total order per room.
type EventRouter struct {
	rooms     *RoomRegistry
	conns     *ConnectionRegistry
	messages  *MessageLog
	presence  *PresenceTracker
	locations *LocationBroadcaster
	clock     clock.Clock
}

func NewEventRouter(
	rooms *RoomRegistry,
	conns *ConnectionRegistry,
	messages *MessageLog,
	presence *PresenceTracker,
	locations *LocationBroadcaster,
	ck clock.Clock,
) *EventRouter {
	return &EventRouter{
		rooms:     rooms,
		conns:     conns,
		messages:  messages,
		presence:  presence,
		locations: locations,
		clock:     ck,
	}
}

// Dispatch handles one inbound event from a connection. A non-nil return
// is an error event for the originating caller only; accepted events
// reach the caller through the regular room fan-out where the policy says
// so.
func (r *EventRouter) Dispatch(sender models.Account, ev models.Event) *models.Event {
	fail := func(err error) *models.Event {
		return lo.ToPtr(models.EventFromError(err, r.clock.Now()))
	}

	vacationId := ev.VacationID()
	if len(vacationId) == 0 {
		return fail(models.ErrValidation("event of type %q carries no vacation id", ev.Type))
	}

	switch ev.Type {
	case models.EventMessage:
		if _, err := r.AppendMessage(vacationId, sender, *ev.Message); err != nil {
			return fail(err)
		}
	case models.EventReaction:
		if _, err := r.React(vacationId, sender, ev.Reaction.MessageID, ev.Reaction.Reaction, ev.Reaction.Action); err != nil {
			return fail(err)
		}
	case models.EventTyping:
		if err := r.SetTyping(vacationId, sender, ev.Typing.IsTyping); err != nil {
			return fail(err)
		}
	case models.EventPresence:
		if _, err := r.UpdatePresence(vacationId, sender, ev.Presence.Status, ev.Presence.Activity); err != nil {
			return fail(err)
		}
	case models.EventLocation:
		if err := r.PublishLocation(vacationId, sender, ev.Location.LocationUpdate); err != nil {
			return fail(err)
		}
	case models.EventVacationUpdate:
		if err := r.PublishVacationUpdate(vacationId, sender, ev.VacationUpdate.Changes); err != nil {
			return fail(err)
		}
	default:
		return fail(models.ErrValidation("event type %q cannot be sent by a client", ev.Type))
	}

	return nil
}

func (r *EventRouter) withMembership(vacationId, userId string, fn func(members []models.Account) error) error {
	var err error
	r.rooms.Serialize(vacationId, func(members []models.Account) {
		if !lo.SomeBy(members, func(member models.Account) bool { return member.UserID == userId }) {
			err = models.ErrForbidden("you are not a member of this vacation party")
			return
		}
		err = fn(members)
	})
	return err
}

func (r *EventRouter) fanOut(members []models.Account, ev models.Event, except ...string) {
	targets := lo.FilterMap(members, func(member models.Account, _ int) (string, bool) {
		return member.UserID, !lo.Contains(except, member.UserID)
	})
	_ = r.conns.PushBatch(targets, ev)
}

// AppendMessage stores and fans out a new message. The sender is included
// in the fan-out: the confirmation carrying the server-assigned id and
// timestamp is the authoritative copy.
func (r *EventRouter) AppendMessage(vacationId string, sender models.Account, draft models.Message) (models.Message, error) {
	var stored models.Message
	err := r.withMembership(vacationId, sender.UserID, func(members []models.Account) error {
		var err error
		stored, err = r.messages.Append(vacationId, sender, draft)
		if err != nil {
			return err
		}
		r.fanOut(members, models.Event{
			Type:      models.EventMessage,
			Timestamp: stored.Timestamp,
			Message:   &stored,
		})
		return nil
	})
	return stored, err
}

// EditMessage rewrites a message and fans the updated copy out to the
// whole room, sender included.
func (r *EventRouter) EditMessage(vacationId string, sender models.Account, messageId, content string) (models.Message, error) {
	var updated models.Message
	err := r.withMembership(vacationId, sender.UserID, func(members []models.Account) error {
		var err error
		updated, err = r.messages.Edit(vacationId, messageId, sender.UserID, content)
		if err != nil {
			return err
		}
		r.fanOut(members, models.Event{
			Type:      models.EventMessage,
			Timestamp: r.clock.Now(),
			Message:   &updated,
		})
		return nil
	})
	return updated, err
}

// DeleteMessage soft-deletes and announces the tombstoned copy.
func (r *EventRouter) DeleteMessage(vacationId string, sender models.Account, messageId string) (models.Message, error) {
	var deleted models.Message
	err := r.withMembership(vacationId, sender.UserID, func(members []models.Account) error {
		var err error
		deleted, err = r.messages.SoftDelete(vacationId, messageId, sender)
		if err != nil {
			return err
		}
		r.fanOut(members, models.Event{
			Type:      models.EventMessage,
			Timestamp: r.clock.Now(),
			Message:   &deleted,
		})
		return nil
	})
	return deleted, err
}

// PinMessage toggles the pin flag and announces the updated copy.
func (r *EventRouter) PinMessage(vacationId string, sender models.Account, messageId string, pinned bool) (models.Message, error) {
	var updated models.Message
	err := r.withMembership(vacationId, sender.UserID, func(members []models.Account) error {
		var err error
		updated, err = r.messages.Pin(vacationId, messageId, pinned, sender)
		if err != nil {
			return err
		}
		r.fanOut(members, models.Event{
			Type:      models.EventMessage,
			Timestamp: r.clock.Now(),
			Message:   &updated,
		})
		return nil
	})
	return updated, err
}

// React applies a reaction and fans it out. The sender is excluded: their
// client already holds the optimistic local state.
func (r *EventRouter) React(vacationId string, sender models.Account, messageId, emoji string, action models.ReactionAction) (models.Message, error) {
	var updated models.Message
	err := r.withMembership(vacationId, sender.UserID, func(members []models.Account) error {
		var err error
		updated, _, err = r.messages.React(vacationId, messageId, sender.UserID, emoji, action)
		if err != nil {
			return err
		}
		r.fanOut(members, models.Event{
			Type:      models.EventReaction,
			Timestamp: r.clock.Now(),
			Reaction: &models.ReactionPayload{
				VacationID: vacationId,
				MessageID:  messageId,
				UserID:     sender.UserID,
				Reaction:   emoji,
				Action:     action,
			},
		}, sender.UserID)
		return nil
	})
	return updated, err
}

// SetTyping refreshes the indicator and fans it out, excluding the sender.
func (r *EventRouter) SetTyping(vacationId string, sender models.Account, isTyping bool) error {
	return r.withMembership(vacationId, sender.UserID, func(members []models.Account) error {
		state := r.presence.SetTyping(vacationId, sender, isTyping)
		r.fanOut(members, models.Event{
			Type:      models.EventTyping,
			Timestamp: r.clock.Now(),
			Typing:    &state,
		}, sender.UserID)
		return nil
	})
}

// UpdatePresence updates the tracker and fans the new state out, excluding
// the sender.
func (r *EventRouter) UpdatePresence(vacationId string, sender models.Account, status models.PresenceStatus, activity string) (models.UserPresence, error) {
	var updated models.UserPresence
	err := r.withMembership(vacationId, sender.UserID, func(members []models.Account) error {
		var err error
		updated, err = r.presence.UpdatePresence(vacationId, sender, status, activity)
		if err != nil {
			return err
		}
		r.fanOut(members, models.Event{
			Type:      models.EventPresence,
			Timestamp: updated.LastSeen,
			Presence:  &updated,
		}, sender.UserID)
		return nil
	})
	return updated, err
}

// PublishLocation hands the update to the broadcaster, which owns rate
// limiting and its own fan-out.
func (r *EventRouter) PublishLocation(vacationId string, sender models.Account, update models.LocationUpdate) error {
	if _, ok := r.rooms.Member(vacationId, sender.UserID); !ok {
		return models.ErrForbidden("you are not a member of this vacation party")
	}
	r.locations.Publish(vacationId, sender, update)
	return nil
}

// PublishVacationUpdate relays shared trip state changes to the whole
// room, sender included.
func (r *EventRouter) PublishVacationUpdate(vacationId string, sender models.Account, changes map[string]any) error {
	if len(changes) == 0 {
		return models.ErrValidation("a vacation update needs at least one change")
	}
	return r.withMembership(vacationId, sender.UserID, func(members []models.Account) error {
		r.fanOut(members, models.Event{
			Type:      models.EventVacationUpdate,
			Timestamp: r.clock.Now(),
			VacationUpdate: &models.VacationUpdatePayload{
				VacationID: vacationId,
				UpdatedBy:  sender.UserID,
				Changes:    changes,
			},
		})
		return nil
	})
}
