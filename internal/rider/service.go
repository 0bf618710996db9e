package rider

import (
	"context"
	"errors"
	"fmt"

	"backend-groupridemtb/internal/db"
	"backend-groupridemtb/internal/shared/geo"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("rider not found")

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Preferences(ctx context.Context, userID string) (Preferences, error) {
	var (
		p      Preferences
		radius *float64
	)
	err := s.db.QueryRow(ctx, `
		SELECT notifications_enabled, notify_local_rides, notify_ride_cancellations,
		       notify_ride_messages, notify_direct_messages, notification_radius_miles, lat, lng
		FROM users WHERE id=$1
	`, userID).Scan(&p.NotificationsEnabled, &p.LocalRides, &p.RideCancellations,
		&p.RideMessages, &p.DirectMessages, &radius, &p.Lat, &p.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	p.RadiusMiles = geo.SanitizeRadius(radius)
	return p, nil
}

// UpdatePreferences replaces the rider's notification settings. The radius
// is stored already sanitized.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, req UpdatePreferencesRequest) (Preferences, error) {
	p := Preferences{
		NotificationsEnabled: req.NotificationsEnabled,
		LocalRides:           req.LocalRides,
		RideCancellations:    req.RideCancellations,
		RideMessages:         req.RideMessages,
		DirectMessages:       req.DirectMessages,
		RadiusMiles:          geo.SanitizeRadius(req.RadiusMiles),
		Lat:                  req.Lat,
		Lng:                  req.Lng,
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET notifications_enabled=$2, notify_local_rides=$3, notify_ride_cancellations=$4,
		    notify_ride_messages=$5, notify_direct_messages=$6, notification_radius_miles=$7,
		    lat=$8, lng=$9
		WHERE id=$1
	`, userID, p.NotificationsEnabled, p.LocalRides, p.RideCancellations,
		p.RideMessages, p.DirectMessages, p.RadiusMiles, p.Lat, p.Lng)
	if err != nil {
		return Preferences{}, fmt.Errorf("update preferences: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}
