package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-groupridemtb/internal/shared/geo"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Mailer is the outbound email collaborator. Send reports acceptance and
// never fails loudly.
type Mailer interface {
	Configured() bool
	Send(ctx context.Context, to, subject, html string) bool
}

type Options struct {
	// Concurrency bounds per-recipient fan-out inside one dispatch.
	Concurrency    int
	Timeout        time.Duration
	ThrottleWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.ThrottleWindow <= 0 {
		o.ThrottleWindow = DefaultThrottleWindow
	}
	return o
}

// Report summarizes one processed event.
type Report struct {
	Kind          Kind
	NotConfigured bool
	Resolved      int
	Sent          int
	Failed        int
	Throttled     int
	Skipped       map[string]int
	Err           error
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeThrottled
)

type renderFunc func(ctx context.Context, rcpt Recipient) (Message, error)

// plan is the resolved work for one event.
type plan struct {
	scope      string
	resolution Resolution
	render     renderFunc
}

// Dispatcher turns domain events into emails. Dispatch detaches from the
// caller; Process is the synchronous core.
type Dispatcher struct {
	dir      Directory
	resolver *Resolver
	throttle *Throttle
	mailer   Mailer
	renderer *Renderer
	metrics  *Metrics
	opts     Options
	log      *zap.Logger

	wg sync.WaitGroup
}

func NewDispatcher(dir Directory, throttle *Throttle, mailer Mailer, renderer *Renderer, metrics *Metrics, opts Options, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		dir:      dir,
		resolver: NewResolver(dir, log),
		throttle: throttle,
		mailer:   mailer,
		renderer: renderer,
		metrics:  metrics,
		opts:     opts.withDefaults(),
		log:      log.Named("notify"),
	}
}

// Dispatch schedules ev on its own goroutine and returns immediately.
func (d *Dispatcher) Dispatch(ev Event) {
	if ev == nil {
		return
	}
	d.wg.Add(1)
	d.metrics.InFlight.Inc()
	go func() {
		defer d.wg.Done()
		defer d.metrics.InFlight.Dec()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notification dispatch panicked",
					zap.String("kind", string(ev.Kind())),
					zap.Any("panic", r),
					zap.Stack("stack"))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		defer cancel()
		d.Process(ctx, ev)
	}()
}

// Wait blocks until every scheduled dispatch finishes or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Process(ctx context.Context, ev Event) Report {
	kind := ev.Kind()
	rep := Report{Kind: kind}
	log := d.log.With(zap.String("kind", string(kind)))

	if d.mailer == nil || !d.mailer.Configured() {
		log.Info("email provider not configured, skipping notification")
		rep.NotConfigured = true
		return rep
	}

	start := time.Now()
	defer func() {
		d.metrics.Duration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	p, err := d.plan(ctx, ev)
	if err != nil {
		log.Warn("notification recipients not resolved", zap.Error(err))
		rep.Err = err
		return rep
	}
	if p == nil {
		return rep
	}

	rep.Resolved = len(p.resolution.Recipients)
	rep.Skipped = p.resolution.Skipped
	for reason, n := range p.resolution.Skipped {
		d.metrics.Skipped.WithLabelValues(string(kind), reason).Add(float64(n))
		log.Debug("notification candidates skipped", zap.String("scope", p.scope), zap.String("reason", reason), zap.Int("count", n))
	}

	outcomes := make([]outcome, len(p.resolution.Recipients))
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for i, rcpt := range p.resolution.Recipients {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = outcomeFailed
					d.metrics.Failed.WithLabelValues(string(kind)).Inc()
					log.Error("notification delivery panicked",
						zap.String("recipient", rcpt.ID),
						zap.Any("panic", r),
						zap.Stack("stack"))
				}
			}()
			outcomes[i] = d.deliver(ctx, kind, p.scope, rcpt, p.render)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case outcomeSent:
			rep.Sent++
		case outcomeFailed:
			rep.Failed++
		case outcomeThrottled:
			rep.Throttled++
		}
	}
	log.Info("notification dispatch finished",
		zap.String("scope", p.scope),
		zap.Int("resolved", rep.Resolved),
		zap.Int("sent", rep.Sent),
		zap.Int("failed", rep.Failed),
		zap.Int("throttled", rep.Throttled),
		zap.Duration("took", time.Since(start)))
	return rep
}

func (d *Dispatcher) plan(ctx context.Context, ev Event) (*plan, error) {
	switch e := ev.(type) {
	case RideCreated:
		return d.planLocalRide(ctx, e)
	case RideCancelled:
		res, err := d.resolver.RideLifecycle(ctx, e.Ride, e.ActorID)
		if err != nil {
			return nil, err
		}
		return &plan{scope: e.Ride.ID, resolution: res, render: func(_ context.Context, rcpt Recipient) (Message, error) {
			return d.renderer.RideCancelled(rcpt, e.Ride)
		}}, nil
	case RidePostponed:
		res, err := d.resolver.RideLifecycle(ctx, e.Ride, e.ActorID)
		if err != nil {
			return nil, err
		}
		return &plan{scope: e.Ride.ID, resolution: res, render: func(_ context.Context, rcpt Recipient) (Message, error) {
			return d.renderer.RidePostponed(rcpt, e.Ride)
		}}, nil
	case RideMessage:
		res, err := d.resolver.RideMessage(ctx, e)
		if err != nil {
			return nil, err
		}
		return &plan{scope: e.RideID, resolution: res, render: func(ctx context.Context, rcpt Recipient) (Message, error) {
			unread, err := d.dir.UnreadRideMessages(ctx, e.RideID, rcpt.ID)
			if err != nil {
				d.log.Warn("unread count unavailable", zap.String("ride", e.RideID), zap.String("recipient", rcpt.ID), zap.Error(err))
				unread = 1
			}
			return d.renderer.RideMessage(rcpt, e, unread)
		}}, nil
	case DirectMessage:
		res, err := d.resolver.DirectMessage(ctx, e)
		if err != nil {
			return nil, err
		}
		return &plan{scope: e.SenderID, resolution: res, render: func(_ context.Context, rcpt Recipient) (Message, error) {
			return d.renderer.DirectMessage(rcpt, e)
		}}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

func (d *Dispatcher) planLocalRide(ctx context.Context, ev RideCreated) (*plan, error) {
	ride, err := d.dir.Ride(ctx, ev.RideID)
	if errors.Is(err, ErrRideNotFound) {
		d.log.Info("ride gone before local alerts ran", zap.String("ride", ev.RideID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ride.HostID == "" {
		ride.HostID = ev.HostID
	}
	point, ok := d.resolver.ResolveRidePoint(ctx, ride)
	if !ok {
		d.log.Info("ride has no coordinates, local alerts skipped", zap.String("ride", ride.ID), zap.String("location", ride.Location))
		return nil, nil
	}
	res, err := d.resolver.LocalRide(ctx, ride, point)
	if err != nil {
		return nil, err
	}
	return &plan{scope: ride.ID, resolution: res, render: func(_ context.Context, rcpt Recipient) (Message, error) {
		dist := 0.0
		if rcpt.Location != nil {
			dist = geo.DistanceMiles(*rcpt.Location, point)
		}
		return d.renderer.LocalRide(rcpt, ride, dist)
	}}, nil
}

// deliver runs throttle check, render, send and record for one recipient,
// strictly in that order.
func (d *Dispatcher) deliver(ctx context.Context, kind Kind, scope string, rcpt Recipient, render renderFunc) outcome {
	log := d.log.With(zap.String("kind", string(kind)), zap.String("recipient", rcpt.ID), zap.String("scope", scope))

	if kind.Throttled() && d.throttle != nil {
		recent, err := d.throttle.HasRecentSend(ctx, rcpt.ID, kind, scope, d.opts.ThrottleWindow)
		switch {
		case err != nil:
			log.Warn("throttle lookup failed, sending anyway", zap.Error(err))
		case recent:
			d.metrics.Throttled.WithLabelValues(string(kind)).Inc()
			log.Debug("notification throttled")
			return outcomeThrottled
		}
	}

	msg, err := render(ctx, rcpt)
	if err != nil {
		d.metrics.Failed.WithLabelValues(string(kind)).Inc()
		log.Error("notification render failed", zap.Error(err))
		return outcomeFailed
	}

	if !d.mailer.Send(ctx, rcpt.Email, msg.Subject, msg.HTML) {
		d.metrics.Failed.WithLabelValues(string(kind)).Inc()
		log.Warn("notification send failed")
		return outcomeFailed
	}
	d.metrics.Sent.WithLabelValues(string(kind)).Inc()

	if d.throttle != nil {
		meta := map[string]any{"subject": msg.Subject}
		if err := d.throttle.RecordSend(ctx, rcpt.ID, kind, scope, meta); err != nil {
			log.Warn("notification sent but not recorded", zap.Error(err))
		}
	}
	log.Info("notification sent")
	return outcomeSent
}
