// Package reconcile closes trips that nobody ever docked.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/loyalty"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/store"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

const (
	DefaultInterval  = time.Hour
	DefaultThreshold = 4 * time.Hour
)

var (
	tripsAbandonedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_trips_abandoned_total",
		Help: "Active trips converted to abandoned by the reconciler",
	})
	sweepErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_sweep_errors_total",
		Help: "Trips or sweeps the reconciler failed to process",
	})
)

func Metrics(reg prometheus.Registerer) {
	reg.MustRegister(tripsAbandonedTotal, sweepErrorsTotal)
}

type FeeBiller interface {
	FixedFee(t trip.Trip) (trip.Bill, error)
}

type TierEvaluator interface {
	Reevaluate(ctx context.Context, riderID string) (loyalty.Change, error)
}

type Invoicer interface {
	Invoice(ctx context.Context, r rider.Rider, t trip.Trip) error
}

// Locker elects a single sweeper when several replicas run the reconciler.
type Locker interface {
	// Acquire reports whether the caller holds the lock for ttl.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
}

type Reconciler struct {
	store     store.Store
	biller    FeeBiller
	tiers     TierEvaluator
	invoicer  Invoicer
	locker    Locker
	logger    *slog.Logger
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time

	invoicing sync.WaitGroup
}

func New(s store.Store, biller FeeBiller, tiers TierEvaluator, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     s,
		biller:    biller,
		tiers:     tiers,
		logger:    logger,
		threshold: DefaultThreshold,
		interval:  DefaultInterval,
		now:       time.Now,
	}
}

func (r *Reconciler) WithThreshold(d time.Duration) *Reconciler {
	r.threshold = d
	return r
}

func (r *Reconciler) WithInterval(d time.Duration) *Reconciler {
	r.interval = d
	return r
}

func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

func (r *Reconciler) WithInvoicer(i Invoicer) *Reconciler {
	r.invoicer = i
	return r
}

func (r *Reconciler) WithLocker(l Locker) *Reconciler {
	r.locker = l
	return r
}

func (r *Reconciler) Threshold() time.Duration {
	return r.threshold
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	if r.locker != nil {
		held, err := r.locker.Acquire(ctx, r.interval/2)
		if err != nil {
			sweepErrorsTotal.Inc()
			r.logger.Error("failed to acquire sweep lock", "error", err)
			return
		}
		if !held {
			r.logger.Debug("another replica holds the sweep lock")
			return
		}
	}

	n, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error("abandoned trip sweep failed", "error", err)
		return
	}
	r.logger.Info("abandoned trip sweep finished", "abandoned", n)
}

// Sweep abandons every active trip older than the threshold and returns how
// many it processed. A failure on one trip is logged and skipped. Trips that
// are no longer active are excluded, so repeated sweeps never bill twice.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("reconcile").Start(ctx, "reconcile.Sweep")
	defer span.End()

	now := r.now()
	var active []trip.Trip
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		active, err = tx.Trips(ctx, trip.Filter{Status: trip.Active})
		return err
	})
	if err != nil {
		sweepErrorsTotal.Inc()
		span.RecordError(err)
		return 0, fmt.Errorf("list active trips: %w", err)
	}

	n := 0
	for _, t := range active {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if t.Elapsed(now) < r.threshold {
			continue
		}
		done, err := r.abandon(ctx, t.ID, now)
		if err != nil {
			sweepErrorsTotal.Inc()
			r.logger.Error("failed to abandon trip", "trip_id", t.ID, "error", err)
			continue
		}
		if done {
			n++
		}
	}
	span.SetAttributes(attribute.Int("reconcile.abandoned", n))
	return n, nil
}

func (r *Reconciler) abandon(ctx context.Context, tripID string, now time.Time) (bool, error) {
	var (
		done bool
		rd   rider.Rider
		out  trip.Trip
	)
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		done = false
		t, err := tx.Trip(ctx, tripID)
		if err != nil {
			return err
		}
		if t.Status != trip.Active || t.Elapsed(now) < r.threshold {
			return nil
		}
		b, err := tx.Bike(ctx, t.BikeID)
		if err != nil {
			return err
		}
		rd, err = tx.Rider(ctx, t.RiderID)
		if err != nil {
			return err
		}

		t.Finish(trip.Abandoned, now)
		bill, err := r.biller.FixedFee(t)
		if err != nil {
			return err
		}
		t.Bill = &bill
		if err := tx.PutTrip(ctx, t); err != nil {
			return err
		}
		if b.Status == bike.OnTrip {
			b.Status = bike.Abandoned
			if err := tx.PutBike(ctx, b); err != nil {
				return err
			}
		}
		done, out = true, t
		return nil
	})
	if err != nil || !done {
		return false, err
	}

	tripsAbandonedTotal.Inc()
	r.logger.Info("trip abandoned",
		"trip_id", out.ID,
		"bike_id", out.BikeID,
		"rider_id", out.RiderID,
		"duration_minutes", out.DurationMinutes,
		"total", out.Bill.Total,
	)
	if r.tiers != nil {
		if _, err := r.tiers.Reevaluate(ctx, out.RiderID); err != nil {
			r.logger.Error("failed to reevaluate rider tier", "rider_id", out.RiderID, "error", err)
		}
	}
	if r.invoicer != nil {
		r.invoicing.Go(func() {
			if err := r.invoicer.Invoice(context.WithoutCancel(ctx), rd, out); err != nil {
				r.logger.Error("failed to invoice abandoned trip", "trip_id", out.ID, "error", err)
			}
		})
	}
	return true, nil
}

// Wait blocks until fee invoices already started finish, or until ctx is
// done. Call it after Run has returned.
func (r *Reconciler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.invoicing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fee invoices still in flight: %w", ctx.Err())
	}
}

// IsAbandoned reports whether the trip is active and past the threshold. It
// changes nothing.
func (r *Reconciler) IsAbandoned(ctx context.Context, tripID string) (bool, error) {
	if tripID == "" {
		return false, fmt.Errorf("%w: trip id is required", fault.ErrInvalidArgument)
	}
	var t trip.Trip
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		t, err = tx.Trip(ctx, tripID)
		return err
	})
	if err != nil {
		return false, err
	}
	return t.Status == trip.Active && t.Elapsed(r.now()) >= r.threshold, nil
}
