package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-groupridemtb/internal/db"
	"backend-groupridemtb/internal/shared/geo"

	"github.com/jackc/pgx/v5"
)

// Preferences are a rider's notification opt-ins. Enabled is the global
// switch; the rest are per category.
type Preferences struct {
	Enabled        bool
	LocalRides     bool
	Cancellations  bool
	RideMessages   bool
	DirectMessages bool
}

// Recipient is a user as seen by the notification subsystem.
type Recipient struct {
	ID          string
	Name        string
	Email       string
	Location    *geo.Point
	RadiusMiles *float64
	Prefs       Preferences
}

type TrailRef struct {
	ID    string
	Name  string
	Point *geo.Point
}

type RideDetails struct {
	ID        string
	Name      string
	Date      time.Time
	Location  string
	Notes     string
	HostID    string
	HostName  string
	Trails    []TrailRef
	Attendees []Recipient
}

// Directory is the read side of persistence the notification subsystem
// consumes.
type Directory interface {
	Ride(ctx context.Context, rideID string) (RideDetails, error)
	UsersByID(ctx context.Context, ids []string) ([]Recipient, error)
	LocalRideSubscribers(ctx context.Context, excludeID string) ([]Recipient, error)
	PointByName(ctx context.Context, name string) (geo.Point, bool, error)
	UnreadRideMessages(ctx context.Context, rideID, userID string) (int, error)
}

// PlaceLookup resolves a free-text location to a trail or trail system.
type PlaceLookup interface {
	FindPointByName(ctx context.Context, name string) (geo.Point, bool, error)
}

var ErrRideNotFound = errors.New("notify: ride not found")

type PGDirectory struct {
	db     db.Querier
	places PlaceLookup
}

func NewPGDirectory(q db.Querier, places PlaceLookup) *PGDirectory {
	return &PGDirectory{db: q, places: places}
}

const recipientColumns = `u.id, COALESCE(u.name,''), COALESCE(u.email,''), u.lat, u.lng, u.notification_radius_miles,
		       u.notifications_enabled, u.notify_local_rides, u.notify_ride_cancellations,
		       u.notify_ride_messages, u.notify_direct_messages`

func (d *PGDirectory) Ride(ctx context.Context, rideID string) (RideDetails, error) {
	var ride RideDetails
	err := d.db.QueryRow(ctx, `
		SELECT r.id, r.name, r.date, COALESCE(r.location,''), COALESCE(r.notes,''), r.host_id, COALESCE(h.name,'')
		FROM rides r JOIN users h ON h.id = r.host_id
		WHERE r.id=$1
	`, rideID).Scan(&ride.ID, &ride.Name, &ride.Date, &ride.Location, &ride.Notes, &ride.HostID, &ride.HostName)
	if errors.Is(err, pgx.ErrNoRows) {
		return RideDetails{}, ErrRideNotFound
	}
	if err != nil {
		return RideDetails{}, fmt.Errorf("load ride: %w", err)
	}

	trails, err := d.rideTrails(ctx, rideID)
	if err != nil {
		return RideDetails{}, err
	}
	ride.Trails = trails

	rows, err := d.db.Query(ctx, `
		SELECT `+recipientColumns+`
		FROM ride_attendees a JOIN users u ON u.id = a.user_id
		WHERE a.ride_id=$1
		ORDER BY a.joined_at
	`, rideID)
	if err != nil {
		return RideDetails{}, fmt.Errorf("load attendees: %w", err)
	}
	ride.Attendees, err = collectRecipients(rows)
	if err != nil {
		return RideDetails{}, fmt.Errorf("load attendees: %w", err)
	}
	return ride, nil
}

func (d *PGDirectory) rideTrails(ctx context.Context, rideID string) ([]TrailRef, error) {
	rows, err := d.db.Query(ctx, `
		SELECT t.id, t.name, t.lat, t.lng, t.coordinates
		FROM ride_trails rt JOIN trails t ON t.id = rt.trail_id
		WHERE rt.ride_id=$1
		ORDER BY rt.position
	`, rideID)
	if err != nil {
		return nil, fmt.Errorf("load trails: %w", err)
	}
	defer rows.Close()

	var trails []TrailRef
	for rows.Next() {
		var (
			ref         TrailRef
			lat, lng    *float64
			coordinates []byte
		)
		if err := rows.Scan(&ref.ID, &ref.Name, &lat, &lng, &coordinates); err != nil {
			return nil, fmt.Errorf("load trails: %w", err)
		}
		if p, ok := geo.FromColumns(lat, lng, coordinates); ok {
			ref.Point = &p
		}
		trails = append(trails, ref)
	}
	return trails, rows.Err()
}

func (d *PGDirectory) UsersByID(ctx context.Context, ids []string) ([]Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := d.db.Query(ctx, `
		SELECT `+recipientColumns+`
		FROM users u WHERE u.id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return collectRecipients(rows)
}

func (d *PGDirectory) LocalRideSubscribers(ctx context.Context, excludeID string) ([]Recipient, error) {
	rows, err := d.db.Query(ctx, `
		SELECT `+recipientColumns+`
		FROM users u
		WHERE u.notifications_enabled AND u.notify_local_rides AND u.id <> $1
	`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	return collectRecipients(rows)
}

func (d *PGDirectory) PointByName(ctx context.Context, name string) (geo.Point, bool, error) {
	if d.places == nil {
		return geo.Point{}, false, nil
	}
	return d.places.FindPointByName(ctx, name)
}

func (d *PGDirectory) UnreadRideMessages(ctx context.Context, rideID, userID string) (int, error) {
	var count int
	err := d.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM ride_messages m
		WHERE m.ride_id=$1 AND m.user_id <> $2
		  AND m.created_at > COALESCE(
		      (SELECT last_read_at FROM ride_message_reads WHERE ride_id=$1 AND user_id=$2),
		      'epoch'::timestamptz)
	`, rideID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func collectRecipients(rows pgx.Rows) ([]Recipient, error) {
	defer rows.Close()
	var out []Recipient
	for rows.Next() {
		var (
			r        Recipient
			lat, lng *float64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &lat, &lng, &r.RadiusMiles,
			&r.Prefs.Enabled, &r.Prefs.LocalRides, &r.Prefs.Cancellations,
			&r.Prefs.RideMessages, &r.Prefs.DirectMessages); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			r.Location = &geo.Point{Lat: *lat, Lng: *lng}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
