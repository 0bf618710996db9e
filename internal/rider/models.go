package rider

type Preferences struct {
	NotificationsEnabled bool     `json:"notifications_enabled"`
	LocalRides           bool     `json:"local_rides"`
	RideCancellations    bool     `json:"ride_cancellations"`
	RideMessages         bool     `json:"ride_messages"`
	DirectMessages       bool     `json:"direct_messages"`
	RadiusMiles          int      `json:"radius_miles"`
	Lat                  *float64 `json:"lat,omitempty"`
	Lng                  *float64 `json:"lng,omitempty"`
}

type UpdatePreferencesRequest struct {
	NotificationsEnabled bool     `json:"notifications_enabled"`
	LocalRides           bool     `json:"local_rides"`
	RideCancellations    bool     `json:"ride_cancellations"`
	RideMessages         bool     `json:"ride_messages"`
	DirectMessages       bool     `json:"direct_messages"`
	RadiusMiles          *float64 `json:"radius_miles"`
	Lat                  *float64 `json:"lat" validate:"omitempty,min=-90,max=90"`
	Lng                  *float64 `json:"lng" validate:"omitempty,min=-180,max=180"`
}
