// Package store is the entity store the fleet services read and write
// through. Every operation runs inside RunInTx so that bike, dock, station,
// trip and rider updates commit together or not at all.
package store

import (
	"context"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/station"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

// Tx is the view of the store inside a transaction. Backends that require
// reads before writes (Firestore) rely on callers finishing every Get and
// Find before the first Put.
type Tx interface {
	Bike(ctx context.Context, id string) (bike.Bike, error)
	Dock(ctx context.Context, id string) (dock.Dock, error)
	Station(ctx context.Context, id string) (station.Station, error)
	Trip(ctx context.Context, id string) (trip.Trip, error)
	Rider(ctx context.Context, id string) (rider.Rider, error)

	Bikes(ctx context.Context, f bike.Filter) ([]bike.Bike, error)
	Trips(ctx context.Context, f trip.Filter) ([]trip.Trip, error)
	Stations(ctx context.Context) ([]station.Station, error)
	RiderByAuth0ID(ctx context.Context, auth0ID string) (rider.Rider, error)

	PutBike(ctx context.Context, b bike.Bike) error
	PutDock(ctx context.Context, d dock.Dock) error
	PutStation(ctx context.Context, s station.Station) error
	PutTrip(ctx context.Context, t trip.Trip) error
	PutRider(ctx context.Context, r rider.Rider) error
}

type Store interface {
	// RunInTx runs fn in a transaction and commits when it returns nil.
	// fn may be invoked more than once on contention.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
