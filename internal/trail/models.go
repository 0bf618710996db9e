package trail

import (
	"time"

	"github.com/goccy/go-json"
)

type Trail struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SystemID      string          `json:"system_id,omitempty"`
	Lat           *float64        `json:"lat,omitempty"`
	Lng           *float64        `json:"lng,omitempty"`
	Coordinates   json.RawMessage `json:"coordinates,omitempty"`
	DistanceMiles *float64        `json:"distance_miles,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type System struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

type CreateTrailRequest struct {
	Name        string          `json:"name" validate:"required,max=120"`
	SystemID    string          `json:"system_id" validate:"omitempty,max=64"`
	Lat         *float64        `json:"lat" validate:"omitempty,min=-90,max=90"`
	Lng         *float64        `json:"lng" validate:"omitempty,min=-180,max=180"`
	Coordinates json.RawMessage `json:"coordinates"`
}
