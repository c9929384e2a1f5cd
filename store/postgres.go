package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/station"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

//go:embed schema.sql
var schema string

// Postgres keeps entities in relational tables. Rows read inside a
// transaction are locked with SELECT ... FOR UPDATE.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables when they do not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return lostRace(err)
	}
	return lostRace(tx.Commit())
}

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// lostRace marks errors Postgres raises when it aborts one of two competing
// transactions as conflicts.
func lostRace(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected) {
		return fmt.Errorf("%w: %w", fault.ErrConflict, err)
	}
	return err
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) Bike(ctx context.Context, id string) (bike.Bike, error) {
	return bike.Get(ctx, t.tx, id, true)
}

func (t *pgTx) Dock(ctx context.Context, id string) (dock.Dock, error) {
	return dock.Get(ctx, t.tx, id, true)
}

func (t *pgTx) Station(ctx context.Context, id string) (station.Station, error) {
	return station.Get(ctx, t.tx, id, true)
}

func (t *pgTx) Trip(ctx context.Context, id string) (trip.Trip, error) {
	return trip.Get(ctx, t.tx, id, true)
}

func (t *pgTx) Rider(ctx context.Context, id string) (rider.Rider, error) {
	return rider.Get(ctx, t.tx, id, true)
}

func (t *pgTx) RiderByAuth0ID(ctx context.Context, auth0ID string) (rider.Rider, error) {
	return rider.GetByAuth0ID(ctx, t.tx, auth0ID)
}

func (t *pgTx) Bikes(ctx context.Context, f bike.Filter) ([]bike.Bike, error) {
	return bike.Find(ctx, t.tx, f)
}

func (t *pgTx) Trips(ctx context.Context, f trip.Filter) ([]trip.Trip, error) {
	return trip.Find(ctx, t.tx, f)
}

func (t *pgTx) Stations(ctx context.Context) ([]station.Station, error) {
	return station.List(ctx, t.tx)
}

func (t *pgTx) PutBike(ctx context.Context, b bike.Bike) error {
	return bike.Put(ctx, t.tx, b)
}

func (t *pgTx) PutDock(ctx context.Context, d dock.Dock) error {
	return dock.Put(ctx, t.tx, d)
}

func (t *pgTx) PutStation(ctx context.Context, s station.Station) error {
	return station.Put(ctx, t.tx, s)
}

func (t *pgTx) PutTrip(ctx context.Context, tr trip.Trip) error {
	return trip.Put(ctx, t.tx, tr)
}

func (t *pgTx) PutRider(ctx context.Context, r rider.Rider) error {
	return rider.Put(ctx, t.tx, r)
}
