package notify

import (
	"errors"
	"time"
)

// Kind identifies a notification category. It is also the throttle kind
// stored on notification_logs rows.
type Kind string

const (
	KindLocalRide     Kind = "local_ride"
	KindRideCancelled Kind = "ride_cancelled"
	KindRidePostponed Kind = "ride_postponed"
	KindRideMessage   Kind = "ride_message"
	KindDirectMessage Kind = "direct_message"
)

// Throttled reports whether sends of this kind are collapsed per scope
// within the throttle window. Lifecycle alerts fire once per event.
func (k Kind) Throttled() bool {
	return k == KindRideMessage || k == KindDirectMessage
}

var ErrUnknownEvent = errors.New("notify: unknown event")

// Event is a minimal payload handed over by a route handler after its write
// has committed.
type Event interface {
	Kind() Kind
}

// RideCreated triggers local-ride alerts for nearby riders.
type RideCreated struct {
	RideID string
	HostID string
}

// RideSnapshot captures a ride as it was when the event happened; cancelled
// rides no longer exist by the time the dispatcher runs.
type RideSnapshot struct {
	ID          string
	Name        string
	Date        time.Time
	Location    string
	Notes       string
	HostID      string
	HostName    string
	AttendeeIDs []string
}

type RideCancelled struct {
	Ride    RideSnapshot
	ActorID string
}

type RidePostponed struct {
	Ride    RideSnapshot
	ActorID string
}

type RideMessage struct {
	RideID     string
	RideName   string
	RideDate   time.Time
	Location   string
	SenderID   string
	SenderName string
	Snippet    string
}

// DirectRecipient names one addressee of a direct message. Email is a
// fallback used when the stored profile has none.
type DirectRecipient struct {
	ID    string
	Email string
}

type DirectMessage struct {
	Recipients []DirectRecipient
	SenderID   string
	SenderName string
	ProfileURL string
	Snippet    string
}

func (RideCreated) Kind() Kind   { return KindLocalRide }
func (RideCancelled) Kind() Kind { return KindRideCancelled }
func (RidePostponed) Kind() Kind { return KindRidePostponed }
func (RideMessage) Kind() Kind   { return KindRideMessage }
func (DirectMessage) Kind() Kind { return KindDirectMessage }
