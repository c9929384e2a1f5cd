// Package fleet moves bikes, docks and stations through their lifecycles.
// Every operation loads the entities it touches, validates the transition
// and writes them back in one store transaction. Timer, notification and
// tier side effects run only after the transaction commits.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/loyalty"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/store"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

// Timers arms and cancels reservation expiry callbacks, one per bike. seq is
// the bike's ReservationSeq for the hold; requests older than the newest seq
// seen for a bike must be ignored.
type Timers interface {
	Schedule(bikeID string, seq int64, delay time.Duration, onExpire func(ctx context.Context)) bool
	Cancel(bikeID string, seq int64) bool
}

// Biller prices a completed trip.
type Biller interface {
	ComputeBill(t trip.Trip, kind bike.Kind, minutes int, discountRate float64) (trip.Bill, error)
}

// TierEvaluator recomputes a rider's tier.
type TierEvaluator interface {
	Reevaluate(ctx context.Context, riderID string) (loyalty.Change, error)
}

// Invoicer forwards issued bills to a payment provider.
type Invoicer interface {
	Invoice(ctx context.Context, r rider.Rider, t trip.Trip) error
}

type Service struct {
	store    store.Store
	timers   Timers
	biller   Biller
	tiers    TierEvaluator
	invoicer Invoicer
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer

	mu          sync.RWMutex
	subscribers []Subscriber

	invoicing sync.WaitGroup
}

func NewService(s store.Store, timers Timers, biller Biller, tiers TierEvaluator, logger *slog.Logger) *Service {
	return &Service{
		store:  s,
		timers: timers,
		biller: biller,
		tiers:  tiers,
		logger: logger,
		now:    time.Now,
		tracer: otel.Tracer("fleet"),
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithInvoicer(i Invoicer) *Service {
	s.invoicer = i
	return s
}

// Subscribe registers fn to receive every committed transition.
func (s *Service) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// effects collects what must happen once a transaction has committed.
type effects struct {
	op       string
	at       time.Time
	events   []Event
	cancels  []hold
	arms     []hold
	riders   []string
	invoices []invoice
}

type hold struct {
	bikeID  string
	seq     int64
	riderID string
	expiry  time.Time
}

type invoice struct {
	rider rider.Rider
	trip  trip.Trip
}

func (e *effects) emit(entity, id, from, to, riderID string) {
	if from == to {
		return
	}
	e.events = append(e.events, Event{
		Op:      e.op,
		Entity:  entity,
		ID:      id,
		From:    from,
		To:      to,
		RiderID: riderID,
		At:      e.at,
	})
}

// run executes fn in a transaction and applies the collected effects after
// commit. fn may run more than once, so effects are reset on every attempt.
func (s *Service) run(ctx context.Context, op string, attrs []attribute.KeyValue,
	fn func(ctx context.Context, tx store.Tx, e *effects) error) error {
	ctx, span := s.tracer.Start(ctx, "fleet."+op, trace.WithAttributes(attrs...))
	defer span.End()

	var e *effects
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		e = &effects{op: op, at: s.now()}
		return fn(ctx, tx, e)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.apply(ctx, e)
	return nil
}

func (s *Service) apply(ctx context.Context, e *effects) {
	for _, h := range e.cancels {
		s.timers.Cancel(h.bikeID, h.seq)
	}
	for _, h := range e.arms {
		s.arm(h, h.expiry.Sub(e.at))
	}

	s.mu.RLock()
	subs := s.subscribers
	s.mu.RUnlock()
	for _, ev := range e.events {
		for _, sub := range subs {
			sub(ctx, ev)
		}
	}

	for _, id := range e.riders {
		if _, err := s.tiers.Reevaluate(ctx, id); err != nil {
			s.logger.Error("failed to reevaluate rider tier", "rider_id", id, "op", e.op, "error", err)
		}
	}

	if s.invoicer == nil {
		return
	}
	for _, in := range e.invoices {
		s.invoicing.Go(func() {
			if err := s.invoicer.Invoice(context.WithoutCancel(ctx), in.rider, in.trip); err != nil {
				s.logger.Error("failed to invoice trip", "trip_id", in.trip.ID, "error", err)
			}
		})
	}
}

// Wait blocks until invoices already handed to the invoicer finish, or until
// ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.invoicing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("invoices still in flight: %w", ctx.Err())
	}
}

func (s *Service) arm(h hold, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.timers.Schedule(h.bikeID, h.seq, delay, func(ctx context.Context) {
		s.expire(ctx, h)
	})
}

func required(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", fault.ErrInvalidArgument, name)
	}
	return nil
}

// resident guards against a docked status without a dock reference.
func resident(b bike.Bike) error {
	if b.DockID == nil || b.StationID == nil {
		return fmt.Errorf("%w: bike %s is %s without a dock", fault.ErrConflict, b.ID, b.Status)
	}
	return nil
}

// releaseReservation clears a reservation on b as part of a larger
// transition and schedules its timer for cancellation.
func releaseReservation(b *bike.Bike, e *effects) {
	if b.Status != bike.Reserved {
		return
	}
	riderID := ""
	if b.ReservedBy != nil {
		riderID = *b.ReservedBy
	}
	e.cancels = append(e.cancels, hold{bikeID: b.ID, seq: b.ReservationSeq, riderID: riderID})
	b.Release()
	e.emit("bike", b.ID, string(bike.Reserved), string(bike.Available), riderID)
}
