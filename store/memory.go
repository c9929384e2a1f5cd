package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/station"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

// Memory is an in-process store. Transactions are serialized and their
// writes are staged until commit.
type Memory struct {
	mu       sync.Mutex
	bikes    map[string]bike.Bike
	docks    map[string]dock.Dock
	stations map[string]station.Station
	trips    map[string]trip.Trip
	riders   map[string]rider.Rider
}

func NewMemory() *Memory {
	return &Memory{
		bikes:    map[string]bike.Bike{},
		docks:    map[string]dock.Dock{},
		stations: map[string]station.Station{},
		trips:    map[string]trip.Trip{},
		riders:   map[string]rider.Rider{},
	}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		m:        m,
		bikes:    map[string]bike.Bike{},
		docks:    map[string]dock.Dock{},
		stations: map[string]station.Station{},
		trips:    map[string]trip.Trip{},
		riders:   map[string]rider.Rider{},
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, v := range tx.bikes {
		m.bikes[id] = v
	}
	for id, v := range tx.docks {
		m.docks[id] = v
	}
	for id, v := range tx.stations {
		m.stations[id] = v
	}
	for id, v := range tx.trips {
		m.trips[id] = v
	}
	for id, v := range tx.riders {
		m.riders[id] = v
	}
	return nil
}

type memTx struct {
	m        *Memory
	bikes    map[string]bike.Bike
	docks    map[string]dock.Dock
	stations map[string]station.Station
	trips    map[string]trip.Trip
	riders   map[string]rider.Rider
}

// lookup returns the staged value for id, falling back to the committed one.
func lookup[T any](staged, committed map[string]T, id string) (T, bool) {
	if v, ok := staged[id]; ok {
		return v, true
	}
	v, ok := committed[id]
	return v, ok
}

// merged returns committed values overlaid with staged ones, ordered by id.
func merged[T any](staged, committed map[string]T) []T {
	ids := make([]string, 0, len(committed)+len(staged))
	for id := range committed {
		ids = append(ids, id)
	}
	for id := range staged {
		if _, ok := committed[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, _ := lookup(staged, committed, id)
		out = append(out, v)
	}
	return out
}

func (tx *memTx) Bike(_ context.Context, id string) (bike.Bike, error) {
	b, ok := lookup(tx.bikes, tx.m.bikes, id)
	if !ok {
		return b, fmt.Errorf("%w: bike %s", fault.ErrNotFound, id)
	}
	return cloneBike(b), nil
}

func (tx *memTx) Dock(_ context.Context, id string) (dock.Dock, error) {
	d, ok := lookup(tx.docks, tx.m.docks, id)
	if !ok {
		return d, fmt.Errorf("%w: dock %s", fault.ErrNotFound, id)
	}
	if d.BikeID != nil {
		id := *d.BikeID
		d.BikeID = &id
	}
	return d, nil
}

func (tx *memTx) Station(_ context.Context, id string) (station.Station, error) {
	s, ok := lookup(tx.stations, tx.m.stations, id)
	if !ok {
		return s, fmt.Errorf("%w: station %s", fault.ErrNotFound, id)
	}
	return cloneStation(s), nil
}

func (tx *memTx) Trip(_ context.Context, id string) (trip.Trip, error) {
	t, ok := lookup(tx.trips, tx.m.trips, id)
	if !ok {
		return t, fmt.Errorf("%w: trip %s", fault.ErrNotFound, id)
	}
	return cloneTrip(t), nil
}

func (tx *memTx) Rider(_ context.Context, id string) (rider.Rider, error) {
	r, ok := lookup(tx.riders, tx.m.riders, id)
	if !ok {
		return r, fmt.Errorf("%w: rider %s", fault.ErrNotFound, id)
	}
	r.MissedReservations = slices.Clone(r.MissedReservations)
	return r, nil
}

func (tx *memTx) RiderByAuth0ID(ctx context.Context, auth0ID string) (rider.Rider, error) {
	for _, r := range merged(tx.riders, tx.m.riders) {
		if r.Auth0ID == auth0ID {
			return tx.Rider(ctx, r.ID)
		}
	}
	return rider.Rider{}, fmt.Errorf("%w: rider for %s", fault.ErrNotFound, auth0ID)
}

func (tx *memTx) Bikes(_ context.Context, f bike.Filter) ([]bike.Bike, error) {
	var out []bike.Bike
	for _, b := range merged(tx.bikes, tx.m.bikes) {
		if f.Match(b) {
			out = append(out, cloneBike(b))
		}
	}
	return out, nil
}

func (tx *memTx) Trips(_ context.Context, f trip.Filter) ([]trip.Trip, error) {
	var out []trip.Trip
	for _, t := range merged(tx.trips, tx.m.trips) {
		if f.Match(t) {
			out = append(out, cloneTrip(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (tx *memTx) Stations(_ context.Context) ([]station.Station, error) {
	var out []station.Station
	for _, s := range merged(tx.stations, tx.m.stations) {
		out = append(out, cloneStation(s))
	}
	return out, nil
}

func (tx *memTx) PutBike(_ context.Context, b bike.Bike) error {
	tx.bikes[b.ID] = cloneBike(b)
	return nil
}

func (tx *memTx) PutDock(_ context.Context, d dock.Dock) error {
	tx.docks[d.ID] = d
	return nil
}

func (tx *memTx) PutStation(_ context.Context, s station.Station) error {
	tx.stations[s.ID] = cloneStation(s)
	return nil
}

func (tx *memTx) PutTrip(_ context.Context, t trip.Trip) error {
	tx.trips[t.ID] = cloneTrip(t)
	return nil
}

func (tx *memTx) PutRider(_ context.Context, r rider.Rider) error {
	r.MissedReservations = slices.Clone(r.MissedReservations)
	tx.riders[r.ID] = r
	return nil
}

func cloneBike(b bike.Bike) bike.Bike {
	if b.DockID != nil {
		v := *b.DockID
		b.DockID = &v
	}
	if b.StationID != nil {
		v := *b.StationID
		b.StationID = &v
	}
	if b.ReservedBy != nil {
		v := *b.ReservedBy
		b.ReservedBy = &v
	}
	if b.ReservationExpiry != nil {
		v := *b.ReservationExpiry
		b.ReservationExpiry = &v
	}
	return b
}

func cloneStation(s station.Station) station.Station {
	s.DockIDs = slices.Clone(s.DockIDs)
	s.BikeIDs = slices.Clone(s.BikeIDs)
	return s
}

func cloneTrip(t trip.Trip) trip.Trip {
	if t.Bill != nil {
		b := *t.Bill
		t.Bill = &b
	}
	return t
}
