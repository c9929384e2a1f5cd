package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/loyalty"
	"github.com/semanticallynull/fleetengine-backend/store"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

// Reserve holds an available bike for the rider. The hold lasts the
// station's reservation hold time plus the rider's tier extension, both read
// now; later tier changes do not move the expiry.
func (s *Service) Reserve(ctx context.Context, bikeID, riderID string) (bike.Bike, error) {
	if err := errors.Join(required("bike id", bikeID), required("rider id", riderID)); err != nil {
		return bike.Bike{}, err
	}

	var out bike.Bike
	err := s.run(ctx, "reserve", []attribute.KeyValue{
		attribute.String("bike.id", bikeID), attribute.String("rider.id", riderID),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		b, err := tx.Bike(ctx, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.Available {
			return fault.Transition("bike", b.ID, string(b.Status), "reserve")
		}
		if err := resident(b); err != nil {
			return err
		}
		r, err := tx.Rider(ctx, riderID)
		if err != nil {
			return err
		}
		st, err := tx.Station(ctx, *b.StationID)
		if err != nil {
			return err
		}
		if !st.HasBikesAvailable() {
			return fault.Transition("station", st.ID, string(st.Status), "reserve a bike")
		}
		d, err := tx.Dock(ctx, *b.DockID)
		if err != nil {
			return err
		}
		if d.Status == dock.OutOfService {
			return fault.Transition("dock", d.ID, string(d.Status), "reserve a bike")
		}

		window := time.Duration(st.ReservationHoldTime+loyalty.PolicyFor(r.Tier).ExtraHoldMinutes) * time.Minute
		expiry := e.at.Add(window)
		b.Reserve(riderID, expiry)
		if err := tx.PutBike(ctx, b); err != nil {
			return err
		}

		e.arms = append(e.arms, hold{bikeID: b.ID, seq: b.ReservationSeq, riderID: riderID, expiry: expiry})
		e.emit("bike", b.ID, string(bike.Available), string(bike.Reserved), riderID)
		out = b
		return nil
	})
	return out, err
}

// CancelReservation releases a reservation at the rider's request. No missed
// reservation is recorded.
func (s *Service) CancelReservation(ctx context.Context, bikeID, riderID string) (bike.Bike, error) {
	if err := errors.Join(required("bike id", bikeID), required("rider id", riderID)); err != nil {
		return bike.Bike{}, err
	}

	var out bike.Bike
	err := s.run(ctx, "cancel_reservation", []attribute.KeyValue{
		attribute.String("bike.id", bikeID), attribute.String("rider.id", riderID),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		b, err := tx.Bike(ctx, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.Reserved {
			return fault.Transition("bike", b.ID, string(b.Status), "cancel reservation")
		}
		if *b.ReservedBy != riderID {
			return fmt.Errorf("%w: bike %s is reserved by another rider", fault.ErrNotAuthorized, b.ID)
		}

		releaseReservation(&b, e)
		out = b
		return tx.PutBike(ctx, b)
	})
	return out, err
}

// ClaimReservation starts a trip on a bike the rider reserved.
func (s *Service) ClaimReservation(ctx context.Context, bikeID, riderID, dockCode string) (trip.Trip, error) {
	if err := errors.Join(required("bike id", bikeID), required("rider id", riderID)); err != nil {
		return trip.Trip{}, err
	}

	var out trip.Trip
	err := s.run(ctx, "claim_reservation", []attribute.KeyValue{
		attribute.String("bike.id", bikeID), attribute.String("rider.id", riderID),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		b, err := tx.Bike(ctx, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.Reserved {
			return fault.Transition("bike", b.ID, string(b.Status), "claim reservation")
		}
		if *b.ReservedBy != riderID {
			return fmt.Errorf("%w: bike %s is reserved by another rider", fault.ErrNotAuthorized, b.ID)
		}
		if !b.ReservationExpiry.After(e.at) {
			return fmt.Errorf("%w: reservation on bike %s ended at %s", fault.ErrExpired, b.ID,
				b.ReservationExpiry.Format(time.RFC3339))
		}
		if err := resident(b); err != nil {
			return err
		}

		d, err := tx.Dock(ctx, *b.DockID)
		if err != nil {
			return err
		}
		if err := d.VerifyCode(dockCode); err != nil {
			return err
		}
		seq := b.ReservationSeq
		t, err := s.startTrip(ctx, tx, e, b, d, riderID)
		if err != nil {
			return err
		}

		e.cancels = append(e.cancels, hold{bikeID: b.ID, seq: seq, riderID: riderID})
		out = t
		return nil
	})
	return out, err
}

// expire runs when a reservation's hold window elapses. A bike that has been
// claimed, cancelled or re-reserved since the timer was armed is left alone.
func (s *Service) expire(ctx context.Context, h hold) {
	stale := false
	err := s.run(ctx, "expire_reservation", []attribute.KeyValue{
		attribute.String("bike.id", h.bikeID), attribute.String("rider.id", h.riderID),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		b, err := tx.Bike(ctx, h.bikeID)
		if err != nil {
			return err
		}
		stale = b.Status != bike.Reserved || b.ReservationSeq != h.seq || *b.ReservedBy != h.riderID ||
			!b.ReservationExpiry.Equal(h.expiry)
		if stale {
			return nil
		}
		r, err := tx.Rider(ctx, h.riderID)
		if err != nil {
			return err
		}

		b.Release()
		r.MissedReservations = append(r.MissedReservations, e.at)
		if err := tx.PutBike(ctx, b); err != nil {
			return err
		}
		if err := tx.PutRider(ctx, r); err != nil {
			return err
		}

		e.emit("bike", b.ID, string(bike.Reserved), string(bike.Available), h.riderID)
		e.riders = append(e.riders, h.riderID)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to expire reservation", "bike_id", h.bikeID, "rider_id", h.riderID, "error", err)
		return
	}
	if stale {
		s.logger.Debug("reservation timer fired after the reservation ended", "bike_id", h.bikeID)
	}
}

// RestoreReservations re-arms timers for every reserved bike, for use at
// startup. Holds that already elapsed expire immediately.
func (s *Service) RestoreReservations(ctx context.Context) (int, error) {
	var holds []hold
	err := s.run(ctx, "restore_reservations", nil, func(ctx context.Context, tx store.Tx, e *effects) error {
		bikes, err := tx.Bikes(ctx, bike.Filter{Status: bike.Reserved})
		if err != nil {
			return err
		}
		holds = holds[:0]
		for _, b := range bikes {
			if b.ReservedBy == nil || b.ReservationExpiry == nil {
				continue
			}
			holds = append(holds, hold{bikeID: b.ID, seq: b.ReservationSeq, riderID: *b.ReservedBy, expiry: *b.ReservationExpiry})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	now := s.now()
	for _, h := range holds {
		s.arm(h, h.expiry.Sub(now))
	}
	return len(holds), nil
}
