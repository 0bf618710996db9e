package ride

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"backend-groupridemtb/internal/db"
	"backend-groupridemtb/internal/recurrence"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("ride not found")
	ErrNotHost     = errors.New("only the host can do that")
	ErrNotAttendee = errors.New("join the ride first")
	ErrHostLeave   = errors.New("the host cannot leave their own ride")
)

const pgForeignKeyViolation = "23503"

// queryer is the read surface shared by pools and transactions.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Service struct {
	db  db.Querier
	now func() time.Time
	log *zap.Logger
}

func NewService(q db.Querier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: q, now: time.Now, log: log.Named("ride")}
}

// CreateRide inserts the ride, the host as first attendee and the trail
// links in one transaction.
func (s *Service) CreateRide(ctx context.Context, hostID string, req CreateRideRequest) (Ride, error) {
	kind, err := recurrence.Parse(req.Recurrence)
	if err != nil {
		return Ride{}, err
	}
	ride := Ride{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Date:       req.Date.UTC(),
		Recurrence: kind,
		Location:   req.Location,
		Notes:      req.Notes,
		HostID:     hostID,
	}
	trailIDs := dedupe(req.TrailIDs)

	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO rides (id, name, date, recurrence, location, notes, host_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING created_at
		`, ride.ID, ride.Name, ride.Date, string(ride.Recurrence), ride.Location, ride.Notes, ride.HostID).Scan(&ride.CreatedAt)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO ride_attendees (ride_id, user_id) VALUES ($1,$2)`, ride.ID, hostID); err != nil {
			return err
		}
		for i, trailID := range trailIDs {
			_, err := tx.Exec(ctx, `
				INSERT INTO ride_trails (ride_id, trail_id, position)
				VALUES ($1,$2,$3)
			`, ride.ID, trailID, i)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Ride{}, fmt.Errorf("create ride: %w", err)
	}
	return ride, nil
}

// GetRide loads one ride with its host, attendees and trails, advancing a
// recurring date that has passed.
func (s *Service) GetRide(ctx context.Context, id string) (Ride, error) {
	ride, err := s.load(ctx, s.db, id, false)
	if err != nil {
		return Ride{}, err
	}
	s.advance(ctx, &ride)
	return ride, nil
}

// UpcomingRides lists rides whose next occurrence is in the future.
func (s *Service) UpcomingRides(ctx context.Context) ([]Ride, error) {
	now := s.now()
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.name, r.date, r.recurrence, COALESCE(r.location,''), COALESCE(r.notes,''),
		       r.host_id, COALESCE(h.name,''), r.postponed, r.created_at
		FROM rides r JOIN users h ON h.id = r.host_id
		WHERE r.date > $1 OR r.recurrence <> 'none'
		ORDER BY r.date
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	var rides []Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("list rides: %w", err)
		}
		rides = append(rides, ride)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}

	upcoming := rides[:0]
	for _, ride := range rides {
		s.advance(ctx, &ride)
		if ride.Date.After(now) {
			upcoming = append(upcoming, ride)
		}
	}
	slices.SortStableFunc(upcoming, func(a, b Ride) int { return a.Date.Compare(b.Date) })
	return upcoming, nil
}

// advance moves a passed recurring ride to its next occurrence and persists
// it. The write only ever moves a date forward, so concurrent readers that
// computed the same value converge.
func (s *Service) advance(ctx context.Context, ride *Ride) {
	if err := s.advanceWith(ctx, s.db, ride); err != nil {
		s.log.Warn("persist advanced ride date", zap.String("ride", ride.ID), zap.Time("date", ride.Date), zap.Error(err))
	}
}

func (s *Service) advanceWith(ctx context.Context, q execer, ride *Ride) error {
	next, ok := recurrence.NextOccurrence(ride.Date, ride.Recurrence, s.now())
	if !ok {
		return nil
	}
	ride.Date = next
	_, err := q.Exec(ctx, `UPDATE rides SET date=$2 WHERE id=$1 AND date < $2`, ride.ID, next)
	return err
}

func (s *Service) Join(ctx context.Context, rideID, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_attendees (ride_id, user_id)
		VALUES ($1,$2)
		ON CONFLICT (ride_id, user_id) DO NOTHING
	`, rideID, userID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return ErrNotFound
	}
	return err
}

func (s *Service) Leave(ctx context.Context, rideID, userID string) error {
	var hostID string
	err := s.db.QueryRow(ctx, `SELECT host_id FROM rides WHERE id=$1`, rideID).Scan(&hostID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if hostID == userID {
		return ErrHostLeave
	}
	_, err = s.db.Exec(ctx, `DELETE FROM ride_attendees WHERE ride_id=$1 AND user_id=$2`, rideID, userID)
	return err
}

// SetPostponed flips the postponed flag. started reports a false to true
// transition, the only change that warrants telling attendees.
func (s *Service) SetPostponed(ctx context.Context, rideID, actorID string, postponed bool) (ride Ride, started bool, err error) {
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		current, err := s.load(ctx, tx, rideID, true)
		if err != nil {
			return err
		}
		if current.HostID != actorID {
			return ErrNotHost
		}
		if err := s.advanceWith(ctx, tx, &current); err != nil {
			return err
		}
		started = postponed && !current.Postponed
		if current.Postponed != postponed {
			if _, err := tx.Exec(ctx, `UPDATE rides SET postponed=$2 WHERE id=$1`, rideID, postponed); err != nil {
				return err
			}
		}
		current.Postponed = postponed
		ride = current
		return nil
	})
	if err != nil {
		return Ride{}, false, err
	}
	return ride, started, nil
}

// CancelRide deletes the ride and returns it as it was, attendees included.
func (s *Service) CancelRide(ctx context.Context, rideID, actorID string) (Ride, error) {
	var snapshot Ride
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		ride, err := s.load(ctx, tx, rideID, true)
		if err != nil {
			return err
		}
		if ride.HostID != actorID {
			return ErrNotHost
		}
		if _, err := tx.Exec(ctx, `DELETE FROM rides WHERE id=$1`, rideID); err != nil {
			return err
		}
		// the row is gone, so the notice names the occurrence that was skipped
		if next, ok := recurrence.NextOccurrence(ride.Date, ride.Recurrence, s.now()); ok {
			ride.Date = next
		}
		snapshot = ride
		return nil
	})
	if err != nil {
		return Ride{}, err
	}
	return snapshot, nil
}

// PostMessage stores a chat message from an attendee. The returned ride
// carries only the header fields needed to describe the message.
func (s *Service) PostMessage(ctx context.Context, rideID, userID, content string) (Message, Ride, error) {
	var (
		header   = Ride{ID: rideID}
		msg      = Message{ID: uuid.NewString(), RideID: rideID, UserID: userID, Content: content}
		kind     string
		attendee bool
	)
	err := s.db.QueryRow(ctx, `
		SELECT r.name, r.date, r.recurrence, COALESCE(r.location,''), COALESCE(u.name,''),
		       EXISTS (SELECT 1 FROM ride_attendees a WHERE a.ride_id = r.id AND a.user_id = u.id)
		FROM rides r, users u
		WHERE r.id=$1 AND u.id=$2
	`, rideID, userID).Scan(&header.Name, &header.Date, &kind, &header.Location, &msg.UserName, &attendee)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, Ride{}, ErrNotFound
	}
	if err != nil {
		return Message{}, Ride{}, fmt.Errorf("post message: %w", err)
	}
	if !attendee {
		return Message{}, Ride{}, ErrNotAttendee
	}
	if header.Recurrence, err = recurrence.Parse(kind); err != nil {
		return Message{}, Ride{}, fmt.Errorf("post message: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO ride_messages (id, ride_id, user_id, content)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, msg.ID, rideID, userID, content).Scan(&msg.CreatedAt)
	if err != nil {
		return Message{}, Ride{}, fmt.Errorf("post message: %w", err)
	}
	s.advance(ctx, &header)
	return msg, header, nil
}

// Messages returns the ride chat and marks it read for userID, which is what
// unread counts in notification subjects are measured against.
func (s *Service) Messages(ctx context.Context, rideID, userID string) ([]Message, error) {
	if err := s.requireAttendee(ctx, rideID, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.ride_id, m.user_id, COALESCE(u.name,''), m.content, m.created_at
		FROM ride_messages m JOIN users u ON u.id = m.user_id
		WHERE m.ride_id=$1
		ORDER BY m.created_at
	`, rideID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RideID, &m.UserID, &m.UserName, &m.Content, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("list messages: %w", err)
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO ride_message_reads (ride_id, user_id, last_read_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (ride_id, user_id) DO UPDATE SET last_read_at = EXCLUDED.last_read_at
	`, rideID, userID, s.now())
	if err != nil {
		s.log.Warn("mark ride messages read", zap.String("ride", rideID), zap.String("user", userID), zap.Error(err))
	}
	return msgs, nil
}

func (s *Service) requireAttendee(ctx context.Context, rideID, userID string) error {
	var exists, attendee bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM rides WHERE id=$1),
		       EXISTS (SELECT 1 FROM ride_attendees WHERE ride_id=$1 AND user_id=$2)
	`, rideID, userID).Scan(&exists, &attendee)
	switch {
	case err != nil:
		return fmt.Errorf("check attendance: %w", err)
	case !exists:
		return ErrNotFound
	case !attendee:
		return ErrNotAttendee
	}
	return nil
}

func (s *Service) load(ctx context.Context, q queryer, id string, lock bool) (Ride, error) {
	query := `
		SELECT r.id, r.name, r.date, r.recurrence, COALESCE(r.location,''), COALESCE(r.notes,''),
		       r.host_id, COALESCE(h.name,''), r.postponed, r.created_at
		FROM rides r JOIN users h ON h.id = r.host_id
		WHERE r.id=$1`
	if lock {
		query += ` FOR UPDATE OF r`
	}
	ride, err := scanRide(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Ride{}, ErrNotFound
	}
	if err != nil {
		return Ride{}, fmt.Errorf("load ride: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT a.user_id, COALESCE(u.name,''), a.joined_at
		FROM ride_attendees a JOIN users u ON u.id = a.user_id
		WHERE a.ride_id=$1
		ORDER BY a.joined_at
	`, id)
	if err != nil {
		return Ride{}, fmt.Errorf("load attendees: %w", err)
	}
	for rows.Next() {
		var a Attendee
		if err := rows.Scan(&a.UserID, &a.Name, &a.JoinedAt); err != nil {
			rows.Close()
			return Ride{}, fmt.Errorf("load attendees: %w", err)
		}
		ride.Attendees = append(ride.Attendees, a)
	}
	rows.Close()

	rows, err = q.Query(ctx, `
		SELECT t.id, t.name
		FROM ride_trails rt JOIN trails t ON t.id = rt.trail_id
		WHERE rt.ride_id=$1
		ORDER BY rt.position
	`, id)
	if err != nil {
		return Ride{}, fmt.Errorf("load trails: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t TrailRef
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return Ride{}, fmt.Errorf("load trails: %w", err)
		}
		ride.Trails = append(ride.Trails, t)
	}
	return ride, rows.Err()
}

func scanRide(row pgx.Row) (Ride, error) {
	var (
		ride Ride
		kind string
	)
	err := row.Scan(&ride.ID, &ride.Name, &ride.Date, &kind, &ride.Location, &ride.Notes,
		&ride.HostID, &ride.HostName, &ride.Postponed, &ride.CreatedAt)
	if err != nil {
		return Ride{}, err
	}
	ride.Recurrence, err = recurrence.Parse(kind)
	if err != nil {
		return Ride{}, err
	}
	return ride, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
