package bike

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
)

// Get loads a bike, locking its row when q is a transaction.
func Get(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (Bike, error) {
	query := getBike
	if lock {
		query += " FOR UPDATE"
	}

	var b Bike
	err := sqlx.GetContext(ctx, q, &b, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("%w: bike %s", fault.ErrNotFound, id)
	}
	return b, err
}

const getBike = `SELECT * FROM bikes WHERE id = $1`

func Put(ctx context.Context, e sqlx.ExtContext, b Bike) error {
	_, err := sqlx.NamedExecContext(ctx, e, putBike, b)
	return err
}

const putBike = `
INSERT INTO bikes (id, status, kind, dock_id, station_id, reservation_expiry, reserved_by, reservation_seq)
VALUES (:id, :status, :kind, :dock_id, :station_id, :reservation_expiry, :reserved_by, :reservation_seq)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	dock_id = EXCLUDED.dock_id,
	station_id = EXCLUDED.station_id,
	reservation_expiry = EXCLUDED.reservation_expiry,
	reserved_by = EXCLUDED.reserved_by,
	reservation_seq = EXCLUDED.reservation_seq
`

// Filter selects bikes by equality on the non-empty fields.
type Filter struct {
	Status    Status
	StationID string
}

func (f Filter) Match(b Bike) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.StationID != "" && (b.StationID == nil || *b.StationID != f.StationID) {
		return false
	}
	return true
}

func Find(ctx context.Context, q sqlx.QueryerContext, f Filter) ([]Bike, error) {
	var bikes []Bike
	err := sqlx.SelectContext(ctx, q, &bikes, findBikes, string(f.Status), f.StationID)
	return bikes, err
}

const findBikes = `
SELECT * FROM bikes
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR station_id = $2)
ORDER BY id
`
