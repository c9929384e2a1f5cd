package fleet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/store"
)

// RiderByAuth0ID returns the rider for an identity provider subject,
// registering a new one with the profile from lookup on first contact.
func (s *Service) RiderByAuth0ID(ctx context.Context, auth0ID string,
	lookup func(ctx context.Context) (name, email string)) (rider.Rider, error) {
	if err := required("auth0 id", auth0ID); err != nil {
		return rider.Rider{}, err
	}

	var out rider.Rider
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		out, err = tx.RiderByAuth0ID(ctx, auth0ID)
		return err
	})
	if !errors.Is(err, fault.ErrNotFound) {
		return out, err
	}

	r := rider.Rider{ID: uuid.NewString(), Auth0ID: auth0ID}
	if lookup != nil {
		r.Name, r.Email = lookup(ctx)
	}
	err = s.run(ctx, "register_rider", []attribute.KeyValue{attribute.String("rider.id", r.ID)},
		func(ctx context.Context, tx store.Tx, e *effects) error {
			existing, err := tx.RiderByAuth0ID(ctx, auth0ID)
			switch {
			case err == nil:
				out = existing
				return nil
			case !errors.Is(err, fault.ErrNotFound):
				return err
			}
			r.CreatedAt = e.at
			out = r
			return tx.PutRider(ctx, r)
		})
	if err == nil && out.ID == r.ID {
		s.logger.Info("rider registered", "rider_id", r.ID)
	}
	return out, err
}

// SetStripeID links a rider to their Stripe customer.
func (s *Service) SetStripeID(ctx context.Context, riderID, stripeID string) error {
	if err := errors.Join(required("rider id", riderID), required("stripe id", stripeID)); err != nil {
		return err
	}
	return s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.Rider(ctx, riderID)
		if err != nil {
			return err
		}
		r.StripeID = &stripeID
		return tx.PutRider(ctx, r)
	})
}
