package trail

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"backend-groupridemtb/internal/db"
	"backend-groupridemtb/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound      = errors.New("trail not found")
	ErrNoCoordinates = errors.New("trail needs lat/lng or coordinates")
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// CreateTrail stores a trail. Explicit lat/lng are filled from the
// coordinates document when only that is given.
func (s *Service) CreateTrail(ctx context.Context, req CreateTrailRequest) (Trail, error) {
	p, ok := geo.FromColumns(req.Lat, req.Lng, req.Coordinates)
	if !ok {
		return Trail{}, ErrNoCoordinates
	}
	t := Trail{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		SystemID:    req.SystemID,
		Lat:         &p.Lat,
		Lng:         &p.Lng,
		Coordinates: req.Coordinates,
	}
	var coordinates []byte
	if len(req.Coordinates) > 0 {
		coordinates = req.Coordinates
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO trails (id, name, system_id, lat, lng, coordinates)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, t.ID, t.Name, nullable(t.SystemID), p.Lat, p.Lng, coordinates).Scan(&t.CreatedAt)
	if err != nil {
		return Trail{}, fmt.Errorf("create trail: %w", err)
	}
	return t, nil
}

func (s *Service) GetTrail(ctx context.Context, id string) (Trail, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(system_id,''), lat, lng, coordinates, created_at
		FROM trails WHERE id=$1
	`, id)
	t, err := scanTrail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trail{}, ErrNotFound
	}
	if err != nil {
		return Trail{}, fmt.Errorf("get trail: %w", err)
	}
	return t, nil
}

// Nearby returns trails within radiusMiles of center, closest first. The
// radius is sanitized the same way rider alert radii are.
func (s *Service) Nearby(ctx context.Context, center geo.Point, radiusMiles *float64) ([]Trail, error) {
	limit := float64(geo.SanitizeRadius(radiusMiles))
	rows, err := s.db.Query(ctx, `
		SELECT id, name, COALESCE(system_id,''), lat, lng, coordinates, created_at
		FROM trails
		WHERE (lat IS NOT NULL AND lng IS NOT NULL) OR coordinates IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("nearby trails: %w", err)
	}
	defer rows.Close()

	var out []Trail
	for rows.Next() {
		t, err := scanTrail(rows)
		if err != nil {
			return nil, fmt.Errorf("nearby trails: %w", err)
		}
		p, ok := geo.FromColumns(t.Lat, t.Lng, t.Coordinates)
		if !ok {
			continue
		}
		d := geo.DistanceMiles(center, p)
		if d > limit {
			continue
		}
		t.DistanceMiles = &d
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearby trails: %w", err)
	}
	slices.SortFunc(out, func(a, b Trail) int {
		switch {
		case *a.DistanceMiles < *b.DistanceMiles:
			return -1
		case *a.DistanceMiles > *b.DistanceMiles:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Service) Systems(ctx context.Context) ([]System, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, lat, lng FROM trail_systems ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("trail systems: %w", err)
	}
	defer rows.Close()

	var systems []System
	for rows.Next() {
		var sys System
		if err := rows.Scan(&sys.ID, &sys.Name, &sys.Lat, &sys.Lng); err != nil {
			return nil, fmt.Errorf("trail systems: %w", err)
		}
		systems = append(systems, sys)
	}
	return systems, rows.Err()
}

// FindPointByName resolves a free-text ride location: a trail with that
// name first, then a trail system. Matching ignores case.
func (s *Service) FindPointByName(ctx context.Context, name string) (geo.Point, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return geo.Point{}, false, nil
	}

	var (
		lat, lng    *float64
		coordinates []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT lat, lng, coordinates FROM trails
		WHERE lower(name) = lower($1)
		ORDER BY created_at
		LIMIT 1
	`, name).Scan(&lat, &lng, &coordinates)
	switch {
	case err == nil:
		if p, ok := geo.FromColumns(lat, lng, coordinates); ok {
			return p, true, nil
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return geo.Point{}, false, fmt.Errorf("find trail by name: %w", err)
	}

	lat, lng = nil, nil
	err = s.db.QueryRow(ctx, `
		SELECT lat, lng FROM trail_systems
		WHERE lower(name) = lower($1)
		LIMIT 1
	`, name).Scan(&lat, &lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return geo.Point{}, false, nil
	}
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("find trail system by name: %w", err)
	}
	p, ok := geo.FromColumns(lat, lng, nil)
	return p, ok, nil
}

func scanTrail(row pgx.Row) (Trail, error) {
	var (
		t           Trail
		coordinates []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.SystemID, &t.Lat, &t.Lng, &coordinates, &t.CreatedAt); err != nil {
		return Trail{}, err
	}
	if len(coordinates) > 0 {
		t.Coordinates = coordinates
	}
	return t, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
