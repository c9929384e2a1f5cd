package rider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
)

func Get(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (Rider, error) {
	query := getRider
	if lock {
		query += " FOR UPDATE"
	}

	var r Rider
	err := sqlx.GetContext(ctx, q, &r, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: rider %s", fault.ErrNotFound, id)
	}
	return r, err
}

const getRider = `SELECT * FROM riders WHERE id = $1`

func GetByAuth0ID(ctx context.Context, q sqlx.QueryerContext, auth0ID string) (Rider, error) {
	var r Rider
	err := sqlx.GetContext(ctx, q, &r, getRiderByAuth0ID, auth0ID)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: rider for %s", fault.ErrNotFound, auth0ID)
	}
	return r, err
}

const getRiderByAuth0ID = `SELECT * FROM riders WHERE auth0_id = $1`

func Put(ctx context.Context, e sqlx.ExtContext, r Rider) error {
	_, err := sqlx.NamedExecContext(ctx, e, putRider, r)
	return err
}

const putRider = `
INSERT INTO riders (id, auth0_id, name, email, stripe_id, tier, missed_reservations, created_at)
VALUES (:id, :auth0_id, :name, :email, :stripe_id, :tier, :missed_reservations, :created_at)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	stripe_id = EXCLUDED.stripe_id,
	tier = EXCLUDED.tier,
	missed_reservations = EXCLUDED.missed_reservations
`
