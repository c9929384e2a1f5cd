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

type TransferCommand struct {
	BikeID string `json:"bikeId"`
	// SourceDockID is empty when recovering an abandoned bike.
	SourceDockID string `json:"sourceDockId"`
	DestDockID   string `json:"destDockId"`
}

// TransferBike relocates a bike to an empty dock. A reservation on the bike
// is dropped. Abandoned bikes are recovered this way and become available.
// Station counters change only when the bike changes station.
func (s *Service) TransferBike(ctx context.Context, cmd TransferCommand) (bike.Bike, error) {
	if err := errors.Join(required("bike id", cmd.BikeID), required("destination dock id", cmd.DestDockID)); err != nil {
		return bike.Bike{}, err
	}
	if cmd.SourceDockID == cmd.DestDockID {
		return bike.Bike{}, fmt.Errorf("%w: source and destination dock are the same", fault.ErrInvalidArgument)
	}

	var out bike.Bike
	err := s.run(ctx, "transfer", []attribute.KeyValue{
		attribute.String("bike.id", cmd.BikeID),
		attribute.String("source_dock.id", cmd.SourceDockID),
		attribute.String("dest_dock.id", cmd.DestDockID),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		b, err := tx.Bike(ctx, cmd.BikeID)
		if err != nil {
			return err
		}

		var (
			src    *dock.Dock
			srcSt  *station.Station
			prevSt station.Status
		)
		switch b.Status {
		case bike.OnTrip:
			return fault.Transition("bike", b.ID, string(b.Status), "transfer")
		case bike.Abandoned:
			if cmd.SourceDockID != "" {
				return fmt.Errorf("%w: abandoned bike %s has no source dock", fault.ErrInvalidArgument, b.ID)
			}
		default:
			if err := required("source dock id", cmd.SourceDockID); err != nil {
				return err
			}
			d, err := tx.Dock(ctx, cmd.SourceDockID)
			if err != nil {
				return err
			}
			if d.BikeID == nil || *d.BikeID != b.ID {
				return fmt.Errorf("%w: dock %s does not hold bike %s", fault.ErrInvalidState, d.ID, b.ID)
			}
			st, err := tx.Station(ctx, d.StationID)
			if err != nil {
				return err
			}
			src, srcSt, prevSt = &d, &st, st.Status
		}

		dst, err := tx.Dock(ctx, cmd.DestDockID)
		if err != nil {
			return err
		}
		if dst.Status != dock.Empty {
			return fault.Transition("dock", dst.ID, string(dst.Status), "receive a transfer")
		}
		sameStation := srcSt != nil && srcSt.ID == dst.StationID
		var dstSt station.Station
		if sameStation {
			dstSt = *srcSt
		} else {
			dstSt, err = tx.Station(ctx, dst.StationID)
			if err != nil {
				return err
			}
			if !dstSt.HasAvailableSpace() {
				return fault.Transition("station", dstSt.ID, string(dstSt.Status), "receive a transfer")
			}
		}
		prevDstSt := dstSt.Status

		prevBike := b.Status
		releaseReservation(&b, e)
		if b.Status == bike.Abandoned {
			b.Status = bike.Available
		}
		b.Place(dst.ID, dstSt.ID)
		dst.Attach(b.ID)

		if src != nil {
			src.Detach()
			if err := tx.PutDock(ctx, *src); err != nil {
				return err
			}
			e.emit("dock", src.ID, string(dock.Occupied), string(src.Status), "")
		}
		if !sameStation {
			if srcSt != nil {
				if err := srcSt.RemoveBike(b.ID, b.Kind); err != nil {
					return err
				}
				if err := tx.PutStation(ctx, *srcSt); err != nil {
					return err
				}
				e.emit("station", srcSt.ID, string(prevSt), string(srcSt.Status), "")
			}
			if err := dstSt.AddBike(b.ID, b.Kind); err != nil {
				return err
			}
			if err := tx.PutStation(ctx, dstSt); err != nil {
				return err
			}
			e.emit("station", dstSt.ID, string(prevDstSt), string(dstSt.Status), "")
		}
		if err := tx.PutDock(ctx, dst); err != nil {
			return err
		}
		if err := tx.PutBike(ctx, b); err != nil {
			return err
		}

		if prevBike == bike.Abandoned {
			e.emit("bike", b.ID, string(prevBike), string(b.Status), "")
		}
		e.emit("dock", dst.ID, string(dock.Empty), string(dst.Status), "")
		out = b
		return nil
	})
	return out, err
}

// SetMaintenance takes a docked bike out of service. A reservation on it is
// dropped.
func (s *Service) SetMaintenance(ctx context.Context, bikeID string) (bike.Bike, error) {
	if err := required("bike id", bikeID); err != nil {
		return bike.Bike{}, err
	}

	var out bike.Bike
	err := s.run(ctx, "set_maintenance", []attribute.KeyValue{attribute.String("bike.id", bikeID)},
		func(ctx context.Context, tx store.Tx, e *effects) error {
			b, err := tx.Bike(ctx, bikeID)
			if err != nil {
				return err
			}
			if b.Status != bike.Available && b.Status != bike.Reserved {
				return fault.Transition("bike", b.ID, string(b.Status), "start maintenance")
			}

			releaseReservation(&b, e)
			prev := b.Status
			b.Status = bike.Maintenance
			e.emit("bike", b.ID, string(prev), string(b.Status), "")
			out = b
			return tx.PutBike(ctx, b)
		})
	return out, err
}

// ReturnToService makes a bike under maintenance available again.
func (s *Service) ReturnToService(ctx context.Context, bikeID string) (bike.Bike, error) {
	if err := required("bike id", bikeID); err != nil {
		return bike.Bike{}, err
	}

	var out bike.Bike
	err := s.run(ctx, "return_to_service", []attribute.KeyValue{attribute.String("bike.id", bikeID)},
		func(ctx context.Context, tx store.Tx, e *effects) error {
			b, err := tx.Bike(ctx, bikeID)
			if err != nil {
				return err
			}
			if b.Status != bike.Maintenance {
				return fault.Transition("bike", b.ID, string(b.Status), "return to service")
			}

			b.Status = bike.Available
			e.emit("bike", b.ID, string(bike.Maintenance), string(b.Status), "")
			out = b
			return tx.PutBike(ctx, b)
		})
	return out, err
}

// SetDockStatus takes a dock out of service or reactivates it. Any
// reservation on the resident bike ends first. On reactivation the status is
// recomputed from residency, whichever of empty or occupied was requested.
func (s *Service) SetDockStatus(ctx context.Context, dockID, status string) (dock.Dock, error) {
	if err := required("dock id", dockID); err != nil {
		return dock.Dock{}, err
	}
	target, err := dock.ParseStatus(status)
	if err != nil {
		return dock.Dock{}, err
	}

	var out dock.Dock
	err = s.run(ctx, "set_dock_status", []attribute.KeyValue{
		attribute.String("dock.id", dockID), attribute.String("dock.status", status),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		d, err := tx.Dock(ctx, dockID)
		if err != nil {
			return err
		}
		outOfService := target == dock.OutOfService
		if outOfService == (d.Status == dock.OutOfService) {
			if outOfService {
				out = d
				return nil
			}
			return fault.Transition("dock", d.ID, string(d.Status), "reactivate")
		}

		if d.BikeID != nil {
			b, err := tx.Bike(ctx, *d.BikeID)
			if err != nil {
				return err
			}
			if b.Status == bike.Reserved {
				releaseReservation(&b, e)
				if err := tx.PutBike(ctx, b); err != nil {
					return err
				}
			}
		}

		prev := d.Status
		if outOfService {
			d.Status = dock.OutOfService
		} else {
			d.Reactivate()
		}
		e.emit("dock", d.ID, string(prev), string(d.Status), "")
		out = d
		return tx.PutDock(ctx, d)
	})
	return out, err
}

// SetStationStatus takes a station out of service or reactivates it.
// Reservations on resident bikes end first.
func (s *Service) SetStationStatus(ctx context.Context, stationID, status string) (station.Station, error) {
	if err := required("station id", stationID); err != nil {
		return station.Station{}, err
	}
	target, err := station.ParseStatus(status)
	if err != nil {
		return station.Station{}, err
	}

	var out station.Station
	err = s.run(ctx, "set_station_status", []attribute.KeyValue{
		attribute.String("station.id", stationID), attribute.String("station.status", status),
	}, func(ctx context.Context, tx store.Tx, e *effects) error {
		st, err := tx.Station(ctx, stationID)
		if err != nil {
			return err
		}
		outOfService := target == station.OutOfService
		if outOfService == (st.Status == station.OutOfService) {
			if outOfService {
				out = st
				return nil
			}
			return fault.Transition("station", st.ID, string(st.Status), "reactivate")
		}

		var reserved []bike.Bike
		for _, id := range st.BikeIDs {
			b, err := tx.Bike(ctx, id)
			if err != nil {
				return err
			}
			if b.Status == bike.Reserved {
				reserved = append(reserved, b)
			}
		}
		for _, b := range reserved {
			releaseReservation(&b, e)
			if err := tx.PutBike(ctx, b); err != nil {
				return err
			}
		}

		prev := st.Status
		if outOfService {
			st.Status = station.OutOfService
		} else {
			st.Reactivate()
		}
		e.emit("station", st.ID, string(prev), string(st.Status), "")
		out = st
		return tx.PutStation(ctx, st)
	})
	return out, err
}
