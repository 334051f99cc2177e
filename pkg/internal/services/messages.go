package services

import (
	"errors"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/wanderparty/tripchat/pkg/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageLog is the append-mostly ordered store of messages per room.
// Reaction and flag mutations are read-modify-write on JSON columns, so
// they run under a per-room lock to avoid lost updates.
type MessageLog struct {
	db    *gorm.DB
	clock clock.Clock
	locks *keyedMutex
}

func NewMessageLog(db *gorm.DB, ck clock.Clock) *MessageLog {
	return &MessageLog{
		db:    db,
		clock: ck,
		locks: newKeyedMutex(),
	}
}

// Append validates, stamps and stores a new message. The id and timestamp
// it assigns are authoritative; client-supplied values are discarded.
func (l *MessageLog) Append(vacationId string, sender models.Account, draft models.Message) (models.Message, error) {
	if len(vacationId) == 0 {
		return draft, models.ErrValidation("vacation id is required")
	}
	if len(sender.UserID) == 0 {
		return draft, models.ErrValidation("sender identity is required")
	}

	draft.Content = strings.TrimSpace(draft.Content)
	if len(draft.Content) == 0 && len(draft.Attachments) == 0 {
		return draft, models.ErrValidation("a message needs content or at least one attachment")
	}

	if len(draft.Type) == 0 {
		draft.Type = models.MessageTypeText
	} else if !lo.Contains(models.MessageTypes, draft.Type) {
		return draft, models.ErrValidation("unknown message type %q", draft.Type)
	}

	unlock := l.locks.Lock(vacationId)
	defer unlock()

	if draft.ParentID != nil {
		if _, err := l.getLocked(vacationId, *draft.ParentID); err != nil {
			return draft, models.ErrNotFound("thread parent %s does not exist", *draft.ParentID)
		}
	}

	message := models.Message{
		Uuid:        uuid.NewString(),
		VacationID:  vacationId,
		UserID:      sender.UserID,
		UserName:    sender.UserName,
		Content:     draft.Content,
		Type:        draft.Type,
		Timestamp:   l.clock.Now(),
		ReplyTo:     draft.ReplyTo,
		ThreadID:    draft.ThreadID,
		ParentID:    draft.ParentID,
		Reactions:   datatypes.NewJSONType(models.Reactions{}),
		Mentions:    draft.Mentions,
		Attachments: draft.Attachments,
	}

	if err := l.db.Create(&message).Error; err != nil {
		return message, err
	}
	return message, nil
}

func (l *MessageLog) Get(vacationId, messageId string) (models.Message, error) {
	unlock := l.locks.Lock(vacationId)
	defer unlock()
	return l.getLocked(vacationId, messageId)
}

func (l *MessageLog) getLocked(vacationId, messageId string) (models.Message, error) {
	var message models.Message
	if err := l.db.
		Where("vacation_id = ? AND uuid = ?", vacationId, messageId).
		First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message, models.ErrNotFound("message %s not found", messageId)
		}
		return message, err
	}
	return message, nil
}

// Edit rewrites the content of the author's own message. Identity fields
// and the original timestamp never change.
func (l *MessageLog) Edit(vacationId, messageId, editorId, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if len(content) == 0 {
		return models.Message{}, models.ErrValidation("edited content cannot be empty")
	}

	unlock := l.locks.Lock(vacationId)
	defer unlock()

	message, err := l.getLocked(vacationId, messageId)
	if err != nil {
		return message, err
	}
	if message.UserID != editorId {
		return message, models.ErrForbidden("only the author can edit this message")
	}

	now := l.clock.Now()
	message.Content = content
	message.Edited = true
	message.EditedAt = &now

	if err := l.db.Save(&message).Error; err != nil {
		return message, err
	}
	return message, nil
}

// SoftDelete hides a message from default reads while keeping it
// addressable for thread integrity. Authors and room moderators may
// delete.
func (l *MessageLog) SoftDelete(vacationId, messageId string, requester models.Account) (models.Message, error) {
	unlock := l.locks.Lock(vacationId)
	defer unlock()

	message, err := l.getLocked(vacationId, messageId)
	if err != nil {
		return message, err
	}
	if message.UserID != requester.UserID && !requester.CanModerate() {
		return message, models.ErrForbidden("only the author or a room admin can delete this message")
	}

	message.Deleted = true
	if err := l.db.Save(&message).Error; err != nil {
		return message, err
	}
	return message, nil
}

// React toggles one user's emoji on a message. Adding twice or removing a
// missing reaction is a no-op; changed reports whether the set moved.
func (l *MessageLog) React(vacationId, messageId, userId, emoji string, action models.ReactionAction) (models.Message, bool, error) {
	if len(emoji) == 0 {
		return models.Message{}, false, models.ErrValidation("reaction emoji is required")
	}
	if action != models.ReactionAdd && action != models.ReactionRemove {
		return models.Message{}, false, models.ErrValidation("unknown reaction action %q", action)
	}

	unlock := l.locks.Lock(vacationId)
	defer unlock()

	message, err := l.getLocked(vacationId, messageId)
	if err != nil {
		return message, false, err
	}

	reactions := message.Reactions.Data()
	if reactions == nil {
		reactions = models.Reactions{}
	}

	var changed bool
	switch action {
	case models.ReactionAdd:
		if !lo.Contains(reactions[emoji], userId) {
			reactions[emoji] = append(reactions[emoji], userId)
			changed = true
		}
	case models.ReactionRemove:
		if lo.Contains(reactions[emoji], userId) {
			reactions[emoji] = lo.Without(reactions[emoji], userId)
			if len(reactions[emoji]) == 0 {
				delete(reactions, emoji)
			}
			changed = true
		}
	}

	if !changed {
		return message, false, nil
	}

	message.Reactions = datatypes.NewJSONType(reactions)
	if err := l.db.Save(&message).Error; err != nil {
		return message, false, err
	}
	return message, true, nil
}

// Pin toggles the pinned flag. Room admins only.
func (l *MessageLog) Pin(vacationId, messageId string, pinned bool, requester models.Account) (models.Message, error) {
	if !requester.CanModerate() {
		return models.Message{}, models.ErrForbidden("pinning requires a room admin")
	}

	unlock := l.locks.Lock(vacationId)
	defer unlock()

	message, err := l.getLocked(vacationId, messageId)
	if err != nil {
		return message, err
	}

	message.Pinned = pinned
	if err := l.db.Save(&message).Error; err != nil {
		return message, err
	}
	return message, nil
}
