package loyalty

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/stats"
	"github.com/semanticallynull/fleetengine-backend/store"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

var tierTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tier_transitions_total",
		Help: "Rider tier changes",
	},
	[]string{"from", "to"},
)

func Metrics(reg prometheus.Registerer) {
	reg.MustRegister(tierTransitionsTotal)
}

// Change is the outcome of an evaluation.
type Change struct {
	RiderID string           `json:"riderId"`
	From    rider.Tier       `json:"from"`
	To      rider.Tier       `json:"to"`
	Stats   stats.RiderStats `json:"stats"`
}

func (c Change) Changed() bool {
	return c.From != c.To
}

type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(s store.Store, logger *slog.Logger) *Service {
	return &Service{store: s, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Stats computes the rider's current statistics.
func (s *Service) Stats(ctx context.Context, riderID string) (stats.RiderStats, error) {
	ctx, span := otel.Tracer("loyalty").Start(ctx, "loyalty.Stats")
	defer span.End()
	span.SetAttributes(attribute.String("rider.id", riderID))

	var out stats.RiderStats
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.Rider(ctx, riderID)
		if err != nil {
			return err
		}
		trips, err := tx.Trips(ctx, trip.Filter{RiderID: riderID})
		if err != nil {
			return err
		}
		out = stats.Compute(trips, r.MissedReservations, s.now())
		return nil
	})
	return out, err
}

// Reevaluate recomputes the rider's stats and persists the resulting tier
// when it differs from the stored one.
func (s *Service) Reevaluate(ctx context.Context, riderID string) (Change, error) {
	ctx, span := otel.Tracer("loyalty").Start(ctx, "loyalty.Reevaluate")
	defer span.End()
	span.SetAttributes(attribute.String("rider.id", riderID))

	var c Change
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.Rider(ctx, riderID)
		if err != nil {
			return err
		}
		trips, err := tx.Trips(ctx, trip.Filter{RiderID: riderID})
		if err != nil {
			return err
		}

		st := stats.Compute(trips, r.MissedReservations, s.now())
		c = Change{RiderID: riderID, From: r.Tier, To: Evaluate(r.Tier, st), Stats: st}
		if !c.Changed() {
			return nil
		}
		r.Tier = c.To
		return tx.PutRider(ctx, r)
	})
	if err != nil {
		return Change{}, err
	}

	if c.Changed() {
		tierTransitionsTotal.WithLabelValues(c.From.String(), c.To.String()).Inc()
		s.logger.Info("rider tier changed",
			"rider_id", riderID,
			"old_tier", c.From.String(),
			"new_tier", c.To.String(),
		)
	}
	return c, nil
}

// Policy returns the rider's current tier and its benefits.
func (s *Service) Policy(ctx context.Context, riderID string) (rider.Tier, Policy, error) {
	var tier rider.Tier
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.Rider(ctx, riderID)
		tier = r.Tier
		return err
	})
	if err != nil {
		return rider.NoTier, Policy{}, err
	}
	return tier, PolicyFor(tier), nil
}
