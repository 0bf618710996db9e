package rider

import (
	"errors"

	"backend-groupridemtb/internal/auth"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/me/preferences", authMiddleware, func(c *fiber.Ctx) error {
		p, err := svc.Preferences(c.UserContext(), auth.UserID(c))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(p)
	})

	r.Put("/me/preferences", authMiddleware, func(c *fiber.Ctx) error {
		var req UpdatePreferencesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if (req.Lat == nil) != (req.Lng == nil) {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng must be set together")
		}
		p, err := svc.UpdatePreferences(c.UserContext(), auth.UserID(c), req)
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(p)
	})
}
