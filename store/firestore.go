package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/station"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

const (
	bikesCollection    = "bikes"
	docksCollection    = "docks"
	stationsCollection = "stations"
	tripsCollection    = "trips"
	ridersCollection   = "riders"
)

// Firestore keeps one document per entity, keyed by id.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

// RunInTx retries on contention as the client does; a transaction still
// aborted after the retries is reported as a conflict.
func (f *Firestore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &fsTx{c: f.client, tx: tx})
	})
	if status.Code(err) == codes.Aborted {
		return fmt.Errorf("%w: %w", fault.ErrConflict, err)
	}
	return err
}

type fsTx struct {
	c  *firestore.Client
	tx *firestore.Transaction
}

func get[T any](t *fsTx, collection, kind, id string) (T, error) {
	var v T
	snap, err := t.tx.Get(t.c.Collection(collection).Doc(id))
	if status.Code(err) == codes.NotFound {
		return v, fmt.Errorf("%w: %s %s", fault.ErrNotFound, kind, id)
	}
	if err != nil {
		return v, err
	}
	err = snap.DataTo(&v)
	return v, err
}

func all[T any](t *fsTx, q firestore.Query) ([]T, error) {
	snaps, err := t.tx.Documents(q).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		var v T
		if err := snap.DataTo(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *fsTx) Bike(_ context.Context, id string) (bike.Bike, error) {
	return get[bike.Bike](t, bikesCollection, "bike", id)
}

func (t *fsTx) Dock(_ context.Context, id string) (dock.Dock, error) {
	return get[dock.Dock](t, docksCollection, "dock", id)
}

func (t *fsTx) Station(_ context.Context, id string) (station.Station, error) {
	return get[station.Station](t, stationsCollection, "station", id)
}

func (t *fsTx) Trip(_ context.Context, id string) (trip.Trip, error) {
	return get[trip.Trip](t, tripsCollection, "trip", id)
}

func (t *fsTx) Rider(_ context.Context, id string) (rider.Rider, error) {
	return get[rider.Rider](t, ridersCollection, "rider", id)
}

func (t *fsTx) RiderByAuth0ID(_ context.Context, auth0ID string) (rider.Rider, error) {
	q := t.c.Collection(ridersCollection).Where("auth0Id", "==", auth0ID).Limit(1)
	riders, err := all[rider.Rider](t, q)
	if err != nil {
		return rider.Rider{}, err
	}
	if len(riders) == 0 {
		return rider.Rider{}, fmt.Errorf("%w: rider for %s", fault.ErrNotFound, auth0ID)
	}
	return riders[0], nil
}

func (t *fsTx) Bikes(_ context.Context, f bike.Filter) ([]bike.Bike, error) {
	q := t.c.Collection(bikesCollection).Query
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	if f.StationID != "" {
		q = q.Where("stationId", "==", f.StationID)
	}
	return all[bike.Bike](t, q)
}

func (t *fsTx) Trips(_ context.Context, f trip.Filter) ([]trip.Trip, error) {
	q := t.c.Collection(tripsCollection).Query
	if f.RiderID != "" {
		q = q.Where("riderId", "==", f.RiderID)
	}
	if f.BikeID != "" {
		q = q.Where("bikeId", "==", f.BikeID)
	}
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	return all[trip.Trip](t, q)
}

func (t *fsTx) Stations(_ context.Context) ([]station.Station, error) {
	return all[station.Station](t, t.c.Collection(stationsCollection).OrderBy("name", firestore.Asc))
}

func (t *fsTx) PutBike(_ context.Context, b bike.Bike) error {
	return t.tx.Set(t.c.Collection(bikesCollection).Doc(b.ID), b)
}

func (t *fsTx) PutDock(_ context.Context, d dock.Dock) error {
	return t.tx.Set(t.c.Collection(docksCollection).Doc(d.ID), d)
}

func (t *fsTx) PutStation(_ context.Context, s station.Station) error {
	return t.tx.Set(t.c.Collection(stationsCollection).Doc(s.ID), s)
}

func (t *fsTx) PutTrip(_ context.Context, tr trip.Trip) error {
	return t.tx.Set(t.c.Collection(tripsCollection).Doc(tr.ID), tr)
}

func (t *fsTx) PutRider(_ context.Context, r rider.Rider) error {
	return t.tx.Set(t.c.Collection(ridersCollection).Doc(r.ID), r)
}
