package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"backend-groupridemtb/internal/shared/geo"
)

type fakeDirectory struct {
	mu     sync.Mutex
	rides  map[string]RideDetails
	users  []Recipient
	places map[string]geo.Point
	unread map[string]int
	err    error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		rides:  map[string]RideDetails{},
		places: map[string]geo.Point{},
		unread: map[string]int{},
	}
}

func (f *fakeDirectory) Ride(_ context.Context, rideID string) (RideDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return RideDetails{}, f.err
	}
	ride, ok := f.rides[rideID]
	if !ok {
		return RideDetails{}, ErrRideNotFound
	}
	return ride, nil
}

func (f *fakeDirectory) UsersByID(_ context.Context, ids []string) ([]Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []Recipient
	for _, u := range f.users {
		if want[u.ID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) LocalRideSubscribers(_ context.Context, excludeID string) ([]Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []Recipient
	for _, u := range f.users {
		if u.ID != excludeID && u.Prefs.Enabled && u.Prefs.LocalRides {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) PointByName(_ context.Context, name string) (geo.Point, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.places[strings.ToLower(name)]
	return p, ok, nil
}

func (f *fakeDirectory) UnreadRideMessages(_ context.Context, rideID, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.unread[rideID+"|"+userID]
	if !ok {
		return 0, errors.New("no unread count")
	}
	return n, nil
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

type fakeMailer struct {
	mu         sync.Mutex
	configured bool
	fail       map[string]bool
	panicOn    string
	sent       []sentMail
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{configured: true, fail: map[string]bool{}}
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) Send(_ context.Context, to, subject, html string) bool {
	if m.panicOn != "" && to == m.panicOn {
		panic("mailer exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[to] {
		return false
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return true
}

func (m *fakeMailer) sentTo(to string) []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMail
	for _, s := range m.sent {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type memoryThrottleStore struct {
	mu        sync.Mutex
	records   []ThrottleRecord
	lookupErr error
}

func (s *memoryThrottleStore) SentSince(_ context.Context, recipientID string, kind Kind, scopeKey string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	for _, r := range s.records {
		if r.RecipientID == recipientID && r.Kind == kind && r.ScopeKey == scopeKey && r.SentAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryThrottleStore) Record(_ context.Context, rec ThrottleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryThrottleStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// testClock is read by concurrent deliveries and only advanced between
// Process calls.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func rider(id, email string) Recipient {
	return Recipient{
		ID:    id,
		Name:  strings.ToUpper(id[:1]) + id[1:],
		Email: email,
		Prefs: Preferences{Enabled: true, LocalRides: true, Cancellations: true, RideMessages: true, DirectMessages: true},
	}
}

func radius(r float64) *float64 { return &r }

type harness struct {
	dir     *fakeDirectory
	mailer  *fakeMailer
	store   *memoryThrottleStore
	clock   *testClock
	metrics *Metrics
	d       *Dispatcher
}

func newHarness() *harness {
	h := &harness{
		dir:     newFakeDirectory(),
		mailer:  newFakeMailer(),
		store:   &memoryThrottleStore{},
		clock:   &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		metrics: NewMetrics(nil),
	}
	throttle := NewThrottle(h.store)
	throttle.now = h.clock.Now
	h.d = NewDispatcher(h.dir, throttle, h.mailer, NewRenderer("https://rides.example.com"), h.metrics, Options{Concurrency: 4}, nil)
	return h
}
