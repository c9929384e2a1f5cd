package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/loyalty"
	"github.com/semanticallynull/fleetengine-backend/station"
	"github.com/semanticallynull/fleetengine-backend/store"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

// UndockAvailable starts a trip on the available bike sitting in dockID.
func (s *Service) UndockAvailable(ctx context.Context, dockID, dockCode, riderID string) (trip.Trip, error) {
	if err := errors.Join(required("dock id", dockID), required("rider id", riderID)); err != nil {
		return trip.Trip{}, err
	}

	var out trip.Trip
	err := s.run(ctx, "undock", []attribute.KeyValue{
		attribute.String("dock.id", dockID), attribute.String("rider.id", riderID),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		d, err := tx.Dock(ctx, dockID)
		if err != nil {
			return err
		}
		if d.Status != dock.Occupied {
			return fault.Transition("dock", d.ID, string(d.Status), "undock")
		}
		b, err := tx.Bike(ctx, *d.BikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.Available {
			return fault.Transition("bike", b.ID, string(b.Status), "undock")
		}
		if err := d.VerifyCode(dockCode); err != nil {
			return err
		}

		t, err := s.startTrip(ctx, tx, e, b, d, riderID)
		out = t
		return err
	})
	return out, err
}

// startTrip moves b out of dock d onto a new trip for riderID. All reads
// happen before the first write.
func (s *Service) startTrip(ctx context.Context, tx store.Tx, e *effects, b bike.Bike, d dock.Dock, riderID string) (trip.Trip, error) {
	if _, err := tx.Rider(ctx, riderID); err != nil {
		return trip.Trip{}, err
	}
	active, err := tx.Trips(ctx, trip.Filter{RiderID: riderID, Status: trip.Active})
	if err != nil {
		return trip.Trip{}, err
	}
	if len(active) > 0 {
		return trip.Trip{}, fmt.Errorf("%w: rider %s already has active trip %s", fault.ErrInvalidState, riderID, active[0].ID)
	}
	st, err := tx.Station(ctx, d.StationID)
	if err != nil {
		return trip.Trip{}, err
	}
	if st.Status == station.OutOfService {
		return trip.Trip{}, fault.Transition("station", st.ID, string(st.Status), "undock")
	}

	prevBike, prevDock, prevStation := b.Status, d.Status, st.Status
	b.Undock()
	d.Detach()
	if err := st.RemoveBike(b.ID, b.Kind); err != nil {
		return trip.Trip{}, err
	}
	t := trip.Trip{
		ID:             uuid.NewString(),
		RiderID:        riderID,
		BikeID:         b.ID,
		StartStationID: st.ID,
		StartDockID:    d.ID,
		StartTime:      e.at,
		Status:         trip.Active,
	}

	if err := tx.PutBike(ctx, b); err != nil {
		return trip.Trip{}, err
	}
	if err := tx.PutDock(ctx, d); err != nil {
		return trip.Trip{}, err
	}
	if err := tx.PutStation(ctx, st); err != nil {
		return trip.Trip{}, err
	}
	if err := tx.PutTrip(ctx, t); err != nil {
		return trip.Trip{}, err
	}

	e.emit("bike", b.ID, string(prevBike), string(b.Status), riderID)
	e.emit("dock", d.ID, string(prevDock), string(d.Status), riderID)
	e.emit("station", st.ID, string(prevStation), string(st.Status), riderID)
	e.emit("trip", t.ID, "", string(t.Status), riderID)
	return t, nil
}

// DockBike ends the rider's trip by returning the bike to an empty dock and
// bills it at the rider's tier discount.
func (s *Service) DockBike(ctx context.Context, bikeID, dockID, riderID string) (trip.Trip, error) {
	if err := errors.Join(required("bike id", bikeID), required("dock id", dockID), required("rider id", riderID)); err != nil {
		return trip.Trip{}, err
	}

	var out trip.Trip
	err := s.run(ctx, "dock", []attribute.KeyValue{
		attribute.String("bike.id", bikeID), attribute.String("dock.id", dockID), attribute.String("rider.id", riderID),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		b, err := tx.Bike(ctx, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.OnTrip {
			return fault.Transition("bike", b.ID, string(b.Status), "dock")
		}
		active, err := tx.Trips(ctx, trip.Filter{BikeID: bikeID, Status: trip.Active})
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return fmt.Errorf("%w: bike %s has no active trip", fault.ErrInvalidState, b.ID)
		}
		t := active[0]
		if t.RiderID != riderID {
			return fmt.Errorf("%w: trip %s belongs to another rider", fault.ErrNotAuthorized, t.ID)
		}
		d, err := tx.Dock(ctx, dockID)
		if err != nil {
			return err
		}
		if d.Status != dock.Empty {
			return fault.Transition("dock", d.ID, string(d.Status), "dock a bike")
		}
		st, err := tx.Station(ctx, d.StationID)
		if err != nil {
			return err
		}
		if !st.HasAvailableSpace() {
			return fault.Transition("station", st.ID, string(st.Status), "dock a bike")
		}
		r, err := tx.Rider(ctx, riderID)
		if err != nil {
			return err
		}

		prevDock, prevStation := d.Status, st.Status
		b.Status = bike.Available
		b.Place(d.ID, st.ID)
		d.Attach(b.ID)
		if err := st.AddBike(b.ID, b.Kind); err != nil {
			return err
		}
		t.Finish(trip.Completed, e.at)
		t.EndDockID = &d.ID
		t.EndStationID = &st.ID
		bill, err := s.biller.ComputeBill(t, b.Kind, t.DurationMinutes, loyalty.PolicyFor(r.Tier).DiscountRate)
		if err != nil {
			return err
		}
		t.Bill = &bill

		if err := tx.PutBike(ctx, b); err != nil {
			return err
		}
		if err := tx.PutDock(ctx, d); err != nil {
			return err
		}
		if err := tx.PutStation(ctx, st); err != nil {
			return err
		}
		if err := tx.PutTrip(ctx, t); err != nil {
			return err
		}

		e.emit("bike", b.ID, string(bike.OnTrip), string(b.Status), riderID)
		e.emit("dock", d.ID, string(prevDock), string(d.Status), riderID)
		e.emit("station", st.ID, string(prevStation), string(st.Status), riderID)
		e.emit("trip", t.ID, string(trip.Active), string(t.Status), riderID)
		e.riders = append(e.riders, riderID)
		e.invoices = append(e.invoices, invoice{rider: r, trip: t})
		out = t
		return nil
	})
	return out, err
}
