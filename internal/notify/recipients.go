package notify

import (
	"context"
	"strings"

	"backend-groupridemtb/internal/shared/geo"

	"go.uber.org/zap"
)

// Skip reasons reported in metrics and logs.
const (
	skipSelf       = "self"
	skipOptedOut   = "opted_out"
	skipNoEmail    = "no_email"
	skipNoLocation = "no_location"
	skipOutOfRange = "out_of_range"
	skipDuplicate  = "duplicate"
)

// Resolution is the recipient set for one event plus per-reason skip counts.
type Resolution struct {
	Recipients []Recipient
	Skipped    map[string]int
}

func (r *Resolution) skip(reason string) {
	if r.Skipped == nil {
		r.Skipped = map[string]int{}
	}
	r.Skipped[reason]++
}

// Resolver determines who receives a notification for each event kind.
type Resolver struct {
	dir Directory
	log *zap.Logger
}

func NewResolver(dir Directory, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{dir: dir, log: log}
}

// ResolveRidePoint finds where a ride happens: the first linked trail with
// coordinates, else a trail or trail system named like the ride's location.
func (r *Resolver) ResolveRidePoint(ctx context.Context, ride RideDetails) (geo.Point, bool) {
	for _, t := range ride.Trails {
		if t.Point != nil && t.Point.Valid() {
			return *t.Point, true
		}
	}
	name := strings.TrimSpace(ride.Location)
	if name == "" {
		return geo.Point{}, false
	}
	p, ok, err := r.dir.PointByName(ctx, name)
	if err != nil {
		r.log.Warn("ride location lookup failed", zap.String("ride", ride.ID), zap.String("location", name), zap.Error(err))
		return geo.Point{}, false
	}
	return p, ok
}

// LocalRide returns opted-in riders, other than the host, whose own radius
// covers point.
func (r *Resolver) LocalRide(ctx context.Context, ride RideDetails, point geo.Point) (Resolution, error) {
	candidates, err := r.dir.LocalRideSubscribers(ctx, ride.HostID)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{}
	seen := emailSet{}
	for _, c := range candidates {
		switch {
		case c.ID == ride.HostID:
			res.skip(skipSelf)
		case !c.Prefs.Enabled || !c.Prefs.LocalRides:
			res.skip(skipOptedOut)
		case strings.TrimSpace(c.Email) == "":
			res.skip(skipNoEmail)
		case c.Location == nil:
			res.skip(skipNoLocation)
		case !geo.IsEligible(c.Location, point, c.RadiusMiles):
			res.skip(skipOutOfRange)
		case !seen.add(c.Email):
			res.skip(skipDuplicate)
		default:
			res.Recipients = append(res.Recipients, c)
		}
	}
	return res, nil
}

// RideLifecycle covers cancellation and postponement: the host and current
// attendees, minus whoever performed the action.
func (r *Resolver) RideLifecycle(ctx context.Context, ride RideSnapshot, actorID string) (Resolution, error) {
	if actorID == "" {
		actorID = ride.HostID
	}
	ids := append([]string{ride.HostID}, ride.AttendeeIDs...)
	users, err := r.dir.UsersByID(ctx, uniqueIDs(ids))
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{}
	seen := emailSet{}
	for _, u := range users {
		switch {
		case u.ID == actorID:
			res.skip(skipSelf)
		case !u.Prefs.Enabled || !u.Prefs.Cancellations:
			res.skip(skipOptedOut)
		case strings.TrimSpace(u.Email) == "":
			res.skip(skipNoEmail)
		case !seen.add(u.Email):
			res.skip(skipDuplicate)
		default:
			res.Recipients = append(res.Recipients, u)
		}
	}
	return res, nil
}

// RideMessage returns every attendee but the sender.
func (r *Resolver) RideMessage(ctx context.Context, ev RideMessage) (Resolution, error) {
	ride, err := r.dir.Ride(ctx, ev.RideID)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{}
	seen := emailSet{}
	for _, a := range ride.Attendees {
		switch {
		case a.ID == ev.SenderID:
			res.skip(skipSelf)
		case !a.Prefs.Enabled || !a.Prefs.RideMessages:
			res.skip(skipOptedOut)
		case strings.TrimSpace(a.Email) == "":
			res.skip(skipNoEmail)
		case !seen.add(a.Email):
			res.skip(skipDuplicate)
		default:
			res.Recipients = append(res.Recipients, a)
		}
	}
	return res, nil
}

// DirectMessage returns the explicit addressees minus the sender.
func (r *Resolver) DirectMessage(ctx context.Context, ev DirectMessage) (Resolution, error) {
	res := Resolution{}
	fallback := map[string]string{}
	var ids []string
	for _, rc := range ev.Recipients {
		if rc.ID == ev.SenderID {
			res.skip(skipSelf)
			continue
		}
		ids = append(ids, rc.ID)
		if rc.Email != "" {
			fallback[rc.ID] = rc.Email
		}
	}
	users, err := r.dir.UsersByID(ctx, uniqueIDs(ids))
	if err != nil {
		return Resolution{}, err
	}
	seen := emailSet{}
	for _, u := range users {
		if strings.TrimSpace(u.Email) == "" {
			u.Email = fallback[u.ID]
		}
		switch {
		case u.ID == ev.SenderID:
			res.skip(skipSelf)
		case !u.Prefs.Enabled || !u.Prefs.DirectMessages:
			res.skip(skipOptedOut)
		case strings.TrimSpace(u.Email) == "":
			res.skip(skipNoEmail)
		case !seen.add(u.Email):
			res.skip(skipDuplicate)
		default:
			res.Recipients = append(res.Recipients, u)
		}
	}
	return res, nil
}

// emailSet dedups recipients by normalized address.
type emailSet map[string]struct{}

func (s emailSet) add(email string) bool {
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
