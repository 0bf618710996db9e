package message

import (
	"errors"
	"unicode/utf8"

	"backend-groupridemtb/internal/auth"
	"backend-groupridemtb/internal/notify"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Notifier schedules notification work without blocking the request.
type Notifier interface {
	Dispatch(notify.Event)
}

const snippetRunes = 280

var validate = validator.New()

func RegisterRoutes(r fiber.Router, svc *Service, notifier Notifier, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req SendRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		msg, email, err := svc.Send(c.UserContext(), auth.UserID(c), req)
		switch {
		case errors.Is(err, ErrSelfMessage):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRecipientNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		if notifier != nil {
			snippet := msg.Content
			if utf8.RuneCountInString(snippet) > snippetRunes {
				snippet = string([]rune(snippet)[:snippetRunes])
			}
			notifier.Dispatch(notify.DirectMessage{
				Recipients: []notify.DirectRecipient{{ID: msg.RecipientID, Email: email}},
				SenderID:   msg.SenderID,
				SenderName: msg.SenderName,
				Snippet:    snippet,
			})
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	})

	r.Get("/:userID", authMiddleware, func(c *fiber.Ctx) error {
		msgs, err := svc.Conversation(c.UserContext(), auth.UserID(c), c.Params("userID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if msgs == nil {
			msgs = []DirectMessage{}
		}
		return c.JSON(msgs)
	})
}
