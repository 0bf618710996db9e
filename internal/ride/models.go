package ride

import (
	"time"

	"backend-groupridemtb/internal/recurrence"
)

type Ride struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Date       time.Time       `json:"date"`
	Recurrence recurrence.Kind `json:"recurrence"`
	Location   string          `json:"location,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	HostID     string          `json:"host_id"`
	HostName   string          `json:"host_name,omitempty"`
	Postponed  bool            `json:"postponed"`
	CreatedAt  time.Time       `json:"created_at"`
	Attendees  []Attendee      `json:"attendees,omitempty"`
	Trails     []TrailRef      `json:"trails,omitempty"`
}

type Attendee struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

type TrailRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Message struct {
	ID        string    `json:"id"`
	RideID    string    `json:"ride_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateRideRequest struct {
	Name       string    `json:"name" validate:"required,max=120"`
	Date       time.Time `json:"date" validate:"required"`
	Recurrence string    `json:"recurrence" validate:"omitempty,oneof=none daily weekly monthly yearly"`
	Location   string    `json:"location" validate:"max=200"`
	Notes      string    `json:"notes" validate:"max=2000"`
	TrailIDs   []string  `json:"trail_ids" validate:"max=20,dive,required"`
}

type PostponeRequest struct {
	Postponed bool `json:"postponed"`
}

type MessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func (r Ride) attendeeIDs() []string {
	ids := make([]string, 0, len(r.Attendees))
	for _, a := range r.Attendees {
		ids = append(ids, a.UserID)
	}
	return ids
}
