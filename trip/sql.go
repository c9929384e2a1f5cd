package trip

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
)

func Get(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (Trip, error) {
	query := getTrip
	if lock {
		query += " FOR UPDATE"
	}

	var t Trip
	err := sqlx.GetContext(ctx, q, &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("%w: trip %s", fault.ErrNotFound, id)
	}
	return t, err
}

const getTrip = `SELECT * FROM trips WHERE id = $1`

func Put(ctx context.Context, e sqlx.ExtContext, t Trip) error {
	_, err := sqlx.NamedExecContext(ctx, e, putTrip, t)
	return err
}

const putTrip = `
INSERT INTO trips (id, rider_id, bike_id, start_station_id, start_dock_id, end_station_id, end_dock_id,
	start_time, end_time, status, duration_minutes, bill)
VALUES (:id, :rider_id, :bike_id, :start_station_id, :start_dock_id, :end_station_id, :end_dock_id,
	:start_time, :end_time, :status, :duration_minutes, :bill)
ON CONFLICT (id) DO UPDATE SET
	end_station_id = EXCLUDED.end_station_id,
	end_dock_id = EXCLUDED.end_dock_id,
	end_time = EXCLUDED.end_time,
	status = EXCLUDED.status,
	duration_minutes = EXCLUDED.duration_minutes,
	bill = EXCLUDED.bill
`

// Filter selects trips by equality on the non-empty fields.
type Filter struct {
	RiderID string
	BikeID  string
	Status  Status
}

func (f Filter) Match(t Trip) bool {
	if f.RiderID != "" && t.RiderID != f.RiderID {
		return false
	}
	if f.BikeID != "" && t.BikeID != f.BikeID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

func Find(ctx context.Context, q sqlx.QueryerContext, f Filter) ([]Trip, error) {
	var trips []Trip
	err := sqlx.SelectContext(ctx, q, &trips, findTrips, f.RiderID, f.BikeID, string(f.Status))
	return trips, err
}

const findTrips = `
SELECT * FROM trips
WHERE ($1 = '' OR rider_id = $1)
  AND ($2 = '' OR bike_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY start_time
`
