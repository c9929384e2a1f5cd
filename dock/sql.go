package dock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
)

func Get(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (Dock, error) {
	query := getDock
	if lock {
		query += " FOR UPDATE"
	}

	var d Dock
	err := sqlx.GetContext(ctx, q, &d, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("%w: dock %s", fault.ErrNotFound, id)
	}
	return d, err
}

const getDock = `SELECT * FROM docks WHERE id = $1`

func Put(ctx context.Context, e sqlx.ExtContext, d Dock) error {
	_, err := sqlx.NamedExecContext(ctx, e, putDock, d)
	return err
}

const putDock = `
INSERT INTO docks (id, station_id, status, bike_id, code)
VALUES (:id, :station_id, :status, :bike_id, :code)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	bike_id = EXCLUDED.bike_id,
	code = EXCLUDED.code
`
