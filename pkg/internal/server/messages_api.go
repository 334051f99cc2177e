package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wanderparty/tripchat/pkg/internal/models"
	"github.com/wanderparty/tripchat/pkg/internal/server/exts"
)

func codedStatus(err error) error {
	coded, ok := models.AsCoded(err)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	switch coded.Code {
	case models.CodeNotFound:
		return fiber.NewError(fiber.StatusNotFound, coded.Reason)
	case models.CodeForbidden:
		return fiber.NewError(fiber.StatusForbidden, coded.Reason)
	case models.CodeValidation:
		return fiber.NewError(fiber.StatusBadRequest, coded.Reason)
	default:
		return fiber.NewError(fiber.StatusInternalServerError, coded.Reason)
	}
}

func (app *App) getMessage(c *fiber.Ctx) error {
	vacationId := c.Params("vacationId")

	message, err := app.registry.Messages.Get(vacationId, c.Params("messageId"))
	if err != nil {
		return codedStatus(err)
	}

	return c.JSON(message)
}

func (app *App) listMessages(c *fiber.Ctx) error {
	vacationId := c.Params("vacationId")
	take := min(c.QueryInt("take", 50), 100)
	offset := c.QueryInt("offset", 0)

	filter := models.MessageFilter{
		UserID:         c.Query("user"),
		Keyword:        c.Query("keyword"),
		ThreadID:       c.Query("thread"),
		AttachmentType: c.Query("attachment_type"),
		HasAttachment:  c.QueryBool("has_attachment", false),
		HasReaction:    c.QueryBool("has_reaction", false),
		EditedOnly:     c.QueryBool("edited", false),
		PinnedOnly:     c.QueryBool("pinned", false),
		IncludeDeleted: c.QueryBool("include_deleted", false),
	}
	if kind := c.Query("type"); len(kind) > 0 {
		filter.Types = []models.MessageType{kind}
	}
	if raw := c.Query("since"); len(raw) > 0 {
		if since, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = &since
		}
	}
	if raw := c.Query("until"); len(raw) > 0 {
		if until, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Until = &until
		}
	}

	messages := make([]models.Message, 0, take)
	skipped := 0
	for message, err := range app.registry.Messages.Filter(vacationId, filter) {
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if skipped < offset {
			skipped++
			continue
		}
		messages = append(messages, message)
		if len(messages) >= take {
			break
		}
	}

	return c.JSON(messages)
}

func (app *App) searchMessages(c *fiber.Ctx) error {
	vacationId := c.Params("vacationId")

	results, err := app.registry.Messages.Search(vacationId, models.SearchQuery{
		Keyword:        c.Query("q"),
		IncludeDeleted: c.QueryBool("include_deleted", false),
		ContextSize:    c.QueryInt("context", 0),
		Limit:          c.QueryInt("take", 0),
	})
	if err != nil {
		return codedStatus(err)
	}

	return c.JSON(results)
}

func (app *App) newMessage(c *fiber.Ctx) error {
	user := c.Locals("principal").(models.Account)
	vacationId := c.Params("vacationId")

	var data struct {
		Content     string                     `json:"content"`
		Type        string                     `json:"type"`
		ReplyTo     *string                    `json:"reply_to"`
		ThreadID    *string                    `json:"thread_id"`
		ParentID    *string                    `json:"parent_id"`
		Mentions    []string                   `json:"mentions"`
		Attachments []models.MessageAttachment `json:"attachments"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	message, err := app.registry.Router.AppendMessage(vacationId, user, models.Message{
		Content:     data.Content,
		Type:        data.Type,
		ReplyTo:     data.ReplyTo,
		ThreadID:    data.ThreadID,
		ParentID:    data.ParentID,
		Mentions:    data.Mentions,
		Attachments: data.Attachments,
	})
	if err != nil {
		return codedStatus(err)
	}

	return c.JSON(message)
}

func (app *App) editMessage(c *fiber.Ctx) error {
	user := c.Locals("principal").(models.Account)
	vacationId := c.Params("vacationId")

	var data struct {
		Content string `json:"content" validate:"required"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	message, err := app.registry.Router.EditMessage(vacationId, user, c.Params("messageId"), data.Content)
	if err != nil {
		return codedStatus(err)
	}

	return c.JSON(message)
}

func (app *App) deleteMessage(c *fiber.Ctx) error {
	user := c.Locals("principal").(models.Account)
	vacationId := c.Params("vacationId")

	message, err := app.registry.Router.DeleteMessage(vacationId, user, c.Params("messageId"))
	if err != nil {
		return codedStatus(err)
	}

	return c.JSON(message)
}

func (app *App) reactMessage(c *fiber.Ctx) error {
	user := c.Locals("principal").(models.Account)
	vacationId := c.Params("vacationId")

	var data struct {
		Reaction string `json:"reaction" validate:"required"`
		Action   string `json:"action" validate:"required,oneof=add remove"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	message, err := app.registry.Router.React(vacationId, user, c.Params("messageId"), data.Reaction, data.Action)
	if err != nil {
		return codedStatus(err)
	}

	return c.JSON(message)
}

func (app *App) pinMessage(c *fiber.Ctx) error {
	user := c.Locals("principal").(models.Account)
	vacationId := c.Params("vacationId")

	message, err := app.registry.Router.PinMessage(vacationId, user, c.Params("messageId"), true)
	if err != nil {
		return codedStatus(err)
	}

	return c.JSON(message)
}

func (app *App) unpinMessage(c *fiber.Ctx) error {
	user := c.Locals("principal").(models.Account)
	vacationId := c.Params("vacationId")

	message, err := app.registry.Router.PinMessage(vacationId, user, c.Params("messageId"), false)
	if err != nil {
		return codedStatus(err)
	}

	return c.JSON(message)
}
