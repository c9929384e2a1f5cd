package fleet

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/billing"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/loyalty"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/station"
	"github.com/semanticallynull/fleetengine-backend/store"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

type armed struct {
	seq   int64
	delay time.Duration
	fn    func(context.Context)
}

// manualTimers records scheduled callbacks and fires them on demand. It
// applies the same sequence rules as reservation.Scheduler.
type manualTimers struct {
	mu      sync.Mutex
	pending map[string]armed
	latest  map[string]int64
}

func newManualTimers() *manualTimers {
	return &manualTimers{pending: map[string]armed{}, latest: map[string]int64{}}
}

func (m *manualTimers) Schedule(bikeID string, seq int64, delay time.Duration, fn func(context.Context)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq <= m.latest[bikeID] {
		return false
	}
	m.latest[bikeID] = seq
	m.pending[bikeID] = armed{seq: seq, delay: delay, fn: fn}
	return true
}

func (m *manualTimers) Cancel(bikeID string, seq int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[bikeID] = max(m.latest[bikeID], seq)
	a, ok := m.pending[bikeID]
	if !ok || a.seq > seq {
		return false
	}
	delete(m.pending, bikeID)
	return true
}

// reset drops every timer and sequence, as a process restart would.
func (m *manualTimers) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pending)
	clear(m.latest)
}

func (m *manualTimers) get(bikeID string) (armed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.pending[bikeID]
	return a, ok
}

func (m *manualTimers) fire(bikeID string) bool {
	m.mu.Lock()
	a, ok := m.pending[bikeID]
	delete(m.pending, bikeID)
	m.mu.Unlock()
	if ok {
		a.fn(context.Background())
	}
	return ok
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc    *Service
	store  *store.Memory
	timers *manualTimers
	clock  *clock
	events *[]Event
}

// newFixture builds two stations:
//
//	S1: capacity 3, hold 15 min, docks D1 (B1 standard), D2 (B2 electric), D3 empty
//	S2: capacity 1, hold 10 min, dock D4 empty
//
// and riders R1 (Gold), R2 (NoTier). Every dock uses code 1234.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	m := store.NewMemory()
	c := &clock{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	timers := newManualTimers()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tiers := loyalty.NewService(m, logger).WithClock(c.now)
	svc := NewService(m, timers, billing.DefaultRates(), tiers, logger).WithClock(c.now)

	events := &[]Event{}
	svc.Subscribe(func(_ context.Context, ev Event) { *events = append(*events, ev) })

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	_, err := svc.ProvisionStation(ctx, station.Station{ID: "S1", Name: "Central", Capacity: 3, ReservationHoldTime: 15})
	must(err)
	_, err = svc.ProvisionStation(ctx, station.Station{ID: "S2", Name: "Harbour", Capacity: 1, ReservationHoldTime: 10})
	must(err)
	for _, d := range []dock.Dock{
		{ID: "D1", StationID: "S1", Code: "1234"},
		{ID: "D2", StationID: "S1", Code: "1234"},
		{ID: "D3", StationID: "S1", Code: "1234"},
		{ID: "D4", StationID: "S2", Code: "1234"},
	} {
		_, err = svc.ProvisionDock(ctx, d)
		must(err)
	}
	_, err = svc.ProvisionBike(ctx, "B1", bike.Standard, "D1")
	must(err)
	_, err = svc.ProvisionBike(ctx, "B2", bike.Electric, "D2")
	must(err)
	must(m.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutRider(ctx, rider.Rider{ID: "R1", Tier: rider.Gold}); err != nil {
			return err
		}
		return tx.PutRider(ctx, rider.Rider{ID: "R2"})
	}))

	*events = nil
	return &fixture{svc: svc, store: m, timers: timers, clock: c, events: events}
}

func (f *fixture) bike(t *testing.T, id string) bike.Bike {
	t.Helper()
	b, err := f.svc.Bike(context.Background(), id)
	if err != nil {
		t.Fatalf("load bike %s: %v", id, err)
	}
	return b
}

func (f *fixture) dock(t *testing.T, id string) dock.Dock {
	t.Helper()
	d, err := f.svc.Dock(context.Background(), id)
	if err != nil {
		t.Fatalf("load dock %s: %v", id, err)
	}
	return d
}

func (f *fixture) station(t *testing.T, id string) station.Station {
	t.Helper()
	s, err := f.svc.Station(context.Background(), id)
	if err != nil {
		t.Fatalf("load station %s: %v", id, err)
	}
	return s
}

func (f *fixture) rider(t *testing.T, id string) rider.Rider {
	t.Helper()
	var r rider.Rider
	err := f.store.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) (err error) {
		r, err = tx.Rider(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("load rider %s: %v", id, err)
	}
	return r
}

func (f *fixture) trip(t *testing.T, id string) trip.Trip {
	t.Helper()
	var tr trip.Trip
	err := f.store.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) (err error) {
		tr, err = tx.Trip(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("load trip %s: %v", id, err)
	}
	return tr
}

// checkInvariants verifies every entity and the cross references between
// bikes, docks and stations.
func (f *fixture) checkInvariants(t *testing.T) {
	t.Helper()
	err := f.store.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		bikes, err := tx.Bikes(ctx, bike.Filter{})
		if err != nil {
			return err
		}
		for _, b := range bikes {
			if err := b.Check(); err != nil {
				t.Errorf("%v\n%s", err, spew.Sdump(b))
			}
			if b.DockID == nil {
				continue
			}
			d, err := tx.Dock(ctx, *b.DockID)
			if err != nil {
				return err
			}
			if d.BikeID == nil || *d.BikeID != b.ID || d.StationID != *b.StationID {
				t.Errorf("bike %s claims dock %s which holds %v", b.ID, d.ID, d.BikeID)
			}
		}

		stations, err := tx.Stations(ctx)
		if err != nil {
			return err
		}
		for _, st := range stations {
			if err := st.Check(); err != nil {
				t.Errorf("%v\n%s", err, spew.Sdump(st))
			}
			for _, id := range st.BikeIDs {
				b, err := tx.Bike(ctx, id)
				if err != nil {
					return err
				}
				if b.StationID == nil || *b.StationID != st.ID {
					t.Errorf("station %s lists bike %s located at %v", st.ID, id, b.StationID)
				}
			}
			for _, id := range st.DockIDs {
				d, err := tx.Dock(ctx, id)
				if err != nil {
					return err
				}
				if err := d.Check(); err != nil {
					t.Errorf("%v", err)
				}
				if d.BikeID != nil && !st.BikeIDs.Contains(*d.BikeID) {
					t.Errorf("dock %s holds bike %s not resident at %s", d.ID, *d.BikeID, st.ID)
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("check invariants: %v", err)
	}
}

// slowTimers holds the first call to one method until release is closed, the
// way a post-commit effect can lag behind a later transaction.
type slowTimers struct {
	*manualTimers
	method  string
	held    chan struct{}
	release chan struct{}
	once    sync.Once
}

func newSlowTimers(m *manualTimers, method string) *slowTimers {
	return &slowTimers{manualTimers: m, method: method, held: make(chan struct{}), release: make(chan struct{})}
}

func (s *slowTimers) wait(method string) {
	if method != s.method {
		return
	}
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.held)
		<-s.release
	}
}

func (s *slowTimers) Schedule(bikeID string, seq int64, delay time.Duration, fn func(context.Context)) bool {
	s.wait("Schedule")
	return s.manualTimers.Schedule(bikeID, seq, delay, fn)
}

func (s *slowTimers) Cancel(bikeID string, seq int64) bool {
	s.wait("Cancel")
	return s.manualTimers.Cancel(bikeID, seq)
}

// withTimers returns a second service over the fixture's store and clock
// that uses timers.
func (f *fixture) withTimers(timers Timers) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tiers := loyalty.NewService(f.store, logger).WithClock(f.clock.now)
	return NewService(f.store, timers, billing.DefaultRates(), tiers, logger).WithClock(f.clock.now)
}
