package fleet

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/station"
	"github.com/semanticallynull/fleetengine-backend/store"
)

// absent returns ErrConflict when lookup found the entity and passes
// through anything other than ErrNotFound.
func absent(entity, id string, err error) error {
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s %s already exists", fault.ErrConflict, entity, id)
	case errors.Is(err, fault.ErrNotFound):
		return nil
	}
	return err
}

// ProvisionStation registers an empty station.
func (s *Service) ProvisionStation(ctx context.Context, st station.Station) (station.Station, error) {
	if err := required("station id", st.ID); err != nil {
		return station.Station{}, err
	}
	if st.Capacity <= 0 || st.ReservationHoldTime < 0 {
		return station.Station{}, fmt.Errorf("%w: capacity %d, hold time %d", fault.ErrInvalidArgument,
			st.Capacity, st.ReservationHoldTime)
	}

	err := s.run(ctx, "provision_station", []attribute.KeyValue{attribute.String("station.id", st.ID)},
		func(ctx context.Context, tx store.Tx, e *effects) error {
			_, err := tx.Station(ctx, st.ID)
			if err := absent("station", st.ID, err); err != nil {
				return err
			}
			st.Status = station.Empty
			st.NumDockedBikes, st.NumElectricBikes, st.NumStandardBikes = 0, 0, 0
			st.DockIDs, st.BikeIDs = station.IDSet{}, station.IDSet{}
			e.emit("station", st.ID, "", string(st.Status), "")
			return tx.PutStation(ctx, st)
		})
	return st, err
}

// ProvisionDock adds an empty dock to a station.
func (s *Service) ProvisionDock(ctx context.Context, d dock.Dock) (dock.Dock, error) {
	if err := errors.Join(required("dock id", d.ID), required("station id", d.StationID)); err != nil {
		return dock.Dock{}, err
	}

	err := s.run(ctx, "provision_dock", []attribute.KeyValue{attribute.String("dock.id", d.ID)},
		func(ctx context.Context, tx store.Tx, e *effects) error {
			_, err := tx.Dock(ctx, d.ID)
			if err := absent("dock", d.ID, err); err != nil {
				return err
			}
			st, err := tx.Station(ctx, d.StationID)
			if err != nil {
				return err
			}

			d.Status = dock.Empty
			d.BikeID = nil
			st.DockIDs = append(st.DockIDs, d.ID)
			if err := tx.PutStation(ctx, st); err != nil {
				return err
			}
			e.emit("dock", d.ID, "", string(d.Status), "")
			return tx.PutDock(ctx, d)
		})
	return d, err
}

// ProvisionBike places a new available bike in an empty dock.
func (s *Service) ProvisionBike(ctx context.Context, bikeID string, kind bike.Kind, dockID string) (bike.Bike, error) {
	if err := errors.Join(required("bike id", bikeID), required("dock id", dockID)); err != nil {
		return bike.Bike{}, err
	}
	kind, err := bike.ParseKind(string(kind))
	if err != nil {
		return bike.Bike{}, err
	}

	var out bike.Bike
	err = s.run(ctx, "provision_bike", []attribute.KeyValue{attribute.String("bike.id", bikeID)},
		func(ctx context.Context, tx store.Tx, e *effects) error {
			_, err := tx.Bike(ctx, bikeID)
			if err := absent("bike", bikeID, err); err != nil {
				return err
			}
			d, err := tx.Dock(ctx, dockID)
			if err != nil {
				return err
			}
			if d.Status != dock.Empty {
				return fault.Transition("dock", d.ID, string(d.Status), "receive a new bike")
			}
			st, err := tx.Station(ctx, d.StationID)
			if err != nil {
				return err
			}

			prev := st.Status
			b := bike.Bike{ID: bikeID, Kind: kind, Status: bike.Available}
			b.Place(d.ID, st.ID)
			d.Attach(b.ID)
			if err := st.AddBike(b.ID, b.Kind); err != nil {
				return err
			}

			if err := tx.PutStation(ctx, st); err != nil {
				return err
			}
			if err := tx.PutDock(ctx, d); err != nil {
				return err
			}
			e.emit("bike", b.ID, "", string(b.Status), "")
			e.emit("dock", d.ID, string(dock.Empty), string(d.Status), "")
			e.emit("station", st.ID, string(prev), string(st.Status), "")
			out = b
			return tx.PutBike(ctx, b)
		})
	return out, err
}
