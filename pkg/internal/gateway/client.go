package gateway

import (
	"sync"

	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// Client is the control surface consumed by the UI layer. It binds a
// session to a current vacation party so the send helpers do not need a
// room argument for the common case.
type Client struct {
	*Session

	mu       sync.Mutex
	vacation string
}

func NewClient(cfg Config) *Client {
	return &Client{Session: NewSession(cfg)}
}

// Connect joins the given vacation party and makes it current.
func (c *Client) Connect(vacationId string) error {
	if err := c.Session.Connect(vacationId); err != nil {
		return err
	}
	c.mu.Lock()
	c.vacation = vacationId
	c.mu.Unlock()
	return nil
}

// JoinVacation subscribes an additional party and makes it current.
func (c *Client) JoinVacation(vacationId string) error {
	return c.Connect(vacationId)
}

// LeaveVacation unsubscribes from a party. Leaving the current one leaves
// the client without a current party until the next join.
func (c *Client) LeaveVacation(vacationId string) error {
	err := c.Send(models.Event{
		Type:     models.EventUserLeft,
		UserLeft: &models.MembershipPayload{VacationID: vacationId},
	})
	if err != nil {
		return err
	}
	c.Session.forgetRoom(vacationId)

	c.mu.Lock()
	if c.vacation == vacationId {
		c.vacation = ""
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vacation
}

func (c *Client) SendMessage(content string, messageType models.MessageType, attachments ...models.MessageAttachment) error {
	return c.Send(models.Event{
		Type: models.EventMessage,
		Message: &models.Message{
			VacationID:  c.current(),
			Content:     content,
			Type:        messageType,
			Attachments: attachments,
		},
	})
}

func (c *Client) SendLocation(update models.LocationUpdate) error {
	return c.Send(models.Event{
		Type: models.EventLocation,
		Location: &models.LocationPayload{
			VacationID:     c.current(),
			LocationUpdate: update,
		},
	})
}

func (c *Client) SendTyping(isTyping bool) error {
	return c.Send(models.Event{
		Type: models.EventTyping,
		Typing: &models.TypingUser{
			VacationID: c.current(),
			IsTyping:   isTyping,
		},
	})
}

func (c *Client) SendReaction(messageId, emoji string, action models.ReactionAction) error {
	return c.Send(models.Event{
		Type: models.EventReaction,
		Reaction: &models.ReactionPayload{
			VacationID: c.current(),
			MessageID:  messageId,
			Reaction:   emoji,
			Action:     action,
		},
	})
}

func (c *Client) UpdatePresence(status models.PresenceStatus, activity string) error {
	return c.Send(models.Event{
		Type: models.EventPresence,
		Presence: &models.UserPresence{
			VacationID: c.current(),
			Status:     status,
			Activity:   activity,
		},
	})
}
