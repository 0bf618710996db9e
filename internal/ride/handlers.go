package ride

import (
	"errors"
	"unicode/utf8"

	"backend-groupridemtb/internal/auth"
	"backend-groupridemtb/internal/notify"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Notifier schedules notification work without blocking the request.
type Notifier interface {
	Dispatch(notify.Event)
}

// Publisher fans a chat message out to live ride subscribers.
type Publisher interface {
	Publish(rideID string, payload []byte)
}

const snippetRunes = 280

var validate = validator.New()

type Handlers struct {
	svc      *Service
	notifier Notifier
	pub      Publisher
	log      *zap.Logger
}

func RegisterRoutes(r fiber.Router, svc *Service, notifier Notifier, pub Publisher, authMiddleware fiber.Handler, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handlers{svc: svc, notifier: notifier, pub: pub, log: log.Named("ride")}

	r.Get("/", h.list)
	r.Get("/:id", h.get)
	r.Post("/", authMiddleware, h.create)
	r.Post("/:id/join", authMiddleware, h.join)
	r.Delete("/:id/join", authMiddleware, h.leave)
	r.Post("/:id/postpone", authMiddleware, h.postpone)
	r.Delete("/:id", authMiddleware, h.cancel)
	r.Post("/:id/messages", authMiddleware, h.postMessage)
	r.Get("/:id/messages", authMiddleware, h.messages)
}

func (h *Handlers) list(c *fiber.Ctx) error {
	rides, err := h.svc.UpcomingRides(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if rides == nil {
		rides = []Ride{}
	}
	return c.JSON(rides)
}

func (h *Handlers) get(c *fiber.Ctx) error {
	ride, err := h.svc.GetRide(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(ride)
}

func (h *Handlers) create(c *fiber.Ctx) error {
	var req CreateRideRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	hostID := auth.UserID(c)
	ride, err := h.svc.CreateRide(c.UserContext(), hostID, req)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	h.notify(notify.RideCreated{RideID: ride.ID, HostID: hostID})
	return c.Status(fiber.StatusCreated).JSON(ride)
}

func (h *Handlers) join(c *fiber.Ctx) error {
	if err := h.svc.Join(c.UserContext(), c.Params("id"), auth.UserID(c)); err != nil {
		return httpError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) leave(c *fiber.Ctx) error {
	if err := h.svc.Leave(c.UserContext(), c.Params("id"), auth.UserID(c)); err != nil {
		return httpError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) postpone(c *fiber.Ctx) error {
	var req PostponeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	actorID := auth.UserID(c)
	ride, started, err := h.svc.SetPostponed(c.UserContext(), c.Params("id"), actorID, req.Postponed)
	if err != nil {
		return httpError(err)
	}
	if started {
		h.notify(notify.RidePostponed{Ride: snapshot(ride), ActorID: actorID})
	}
	return c.JSON(ride)
}

func (h *Handlers) cancel(c *fiber.Ctx) error {
	actorID := auth.UserID(c)
	ride, err := h.svc.CancelRide(c.UserContext(), c.Params("id"), actorID)
	if err != nil {
		return httpError(err)
	}
	h.notify(notify.RideCancelled{Ride: snapshot(ride), ActorID: actorID})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) postMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	msg, ride, err := h.svc.PostMessage(c.UserContext(), c.Params("id"), auth.UserID(c), req.Content)
	if err != nil {
		return httpError(err)
	}

	if h.pub != nil {
		if payload, err := json.Marshal(msg); err == nil {
			h.pub.Publish(msg.RideID, payload)
		} else {
			h.log.Warn("encode live message", zap.String("ride", msg.RideID), zap.Error(err))
		}
	}
	h.notify(notify.RideMessage{
		RideID:     ride.ID,
		RideName:   ride.Name,
		RideDate:   ride.Date,
		Location:   ride.Location,
		SenderID:   msg.UserID,
		SenderName: msg.UserName,
		Snippet:    snippet(msg.Content),
	})
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *Handlers) messages(c *fiber.Ctx) error {
	msgs, err := h.svc.Messages(c.UserContext(), c.Params("id"), auth.UserID(c))
	if err != nil {
		return httpError(err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return c.JSON(msgs)
}

func (h *Handlers) notify(ev notify.Event) {
	if h.notifier == nil {
		return
	}
	h.notifier.Dispatch(ev)
}

func snapshot(r Ride) notify.RideSnapshot {
	return notify.RideSnapshot{
		ID:          r.ID,
		Name:        r.Name,
		Date:        r.Date,
		Location:    r.Location,
		Notes:       r.Notes,
		HostID:      r.HostID,
		HostName:    r.HostName,
		AttendeeIDs: r.attendeeIDs(),
	}
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	return string([]rune(s)[:snippetRunes])
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotHost), errors.Is(err, ErrNotAttendee):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrHostLeave):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
