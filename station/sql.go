package station

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
)

func Get(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (Station, error) {
	query := getStation
	if lock {
		query += " FOR UPDATE"
	}

	var s Station
	err := sqlx.GetContext(ctx, q, &s, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("%w: station %s", fault.ErrNotFound, id)
	}
	return s, err
}

const getStation = `SELECT * FROM stations WHERE id = $1`

func List(ctx context.Context, q sqlx.QueryerContext) ([]Station, error) {
	var stations []Station
	err := sqlx.SelectContext(ctx, q, &stations, listStations)
	return stations, err
}

const listStations = `SELECT * FROM stations ORDER BY name`

func Put(ctx context.Context, e sqlx.ExtContext, s Station) error {
	_, err := sqlx.NamedExecContext(ctx, e, putStation, s)
	return err
}

const putStation = `
INSERT INTO stations (id, name, address, status, capacity, num_docked_bikes, num_electric_bikes,
	num_standard_bikes, dock_ids, bike_ids, reservation_hold_time)
VALUES (:id, :name, :address, :status, :capacity, :num_docked_bikes, :num_electric_bikes,
	:num_standard_bikes, :dock_ids, :bike_ids, :reservation_hold_time)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	status = EXCLUDED.status,
	capacity = EXCLUDED.capacity,
	num_docked_bikes = EXCLUDED.num_docked_bikes,
	num_electric_bikes = EXCLUDED.num_electric_bikes,
	num_standard_bikes = EXCLUDED.num_standard_bikes,
	dock_ids = EXCLUDED.dock_ids,
	bike_ids = EXCLUDED.bike_ids,
	reservation_hold_time = EXCLUDED.reservation_hold_time
`
