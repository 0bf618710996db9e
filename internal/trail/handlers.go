package trail

import (
	"errors"
	"strconv"

	"backend-groupridemtb/internal/shared/geo"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateTrailRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		t, err := svc.CreateTrail(c.UserContext(), req)
		if errors.Is(err, ErrNoCoordinates) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	})

	r.Get("/systems", func(c *fiber.Ctx) error {
		systems, err := svc.Systems(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if systems == nil {
			systems = []System{}
		}
		return c.JSON(systems)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		center := geo.Point{Lat: lat, Lng: lng}
		if errLat != nil || errLng != nil || !center.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		var radius *float64
		if raw := c.Query("radius_miles"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "radius_miles must be a number")
			}
			radius = &v
		}
		trails, err := svc.Nearby(c.UserContext(), center, radius)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if trails == nil {
			trails = []Trail{}
		}
		return c.JSON(trails)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		t, err := svc.GetTrail(c.UserContext(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "trail not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(t)
	})
}
