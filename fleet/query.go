package fleet

import (
	"context"
	"fmt"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/station"
	"github.com/semanticallynull/fleetengine-backend/store"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

func (s *Service) Bike(ctx context.Context, id string) (bike.Bike, error) {
	var b bike.Bike
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		b, err = tx.Bike(ctx, id)
		return err
	})
	return b, err
}

func (s *Service) Dock(ctx context.Context, id string) (dock.Dock, error) {
	var d dock.Dock
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		d, err = tx.Dock(ctx, id)
		return err
	})
	return d, err
}

func (s *Service) Station(ctx context.Context, id string) (station.Station, error) {
	var st station.Station
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		st, err = tx.Station(ctx, id)
		return err
	})
	return st, err
}

func (s *Service) Stations(ctx context.Context) ([]station.Station, error) {
	var out []station.Station
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		out, err = tx.Stations(ctx)
		return err
	})
	return out, err
}

// StationBikes lists the bikes resident at a station.
func (s *Service) StationBikes(ctx context.Context, stationID string) ([]bike.Bike, error) {
	var out []bike.Bike
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		out, err = tx.Bikes(ctx, bike.Filter{StationID: stationID})
		return err
	})
	return out, err
}

// CurrentTrip returns the rider's active trip.
func (s *Service) CurrentTrip(ctx context.Context, riderID string) (trip.Trip, error) {
	var out trip.Trip
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		trips, err := tx.Trips(ctx, trip.Filter{RiderID: riderID, Status: trip.Active})
		if err != nil {
			return err
		}
		if len(trips) == 0 {
			return fmt.Errorf("%w: rider %s has no active trip", fault.ErrNotFound, riderID)
		}
		out = trips[0]
		return nil
	})
	return out, err
}

func (s *Service) Trips(ctx context.Context, riderID string) ([]trip.Trip, error) {
	var out []trip.Trip
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		out, err = tx.Trips(ctx, trip.Filter{RiderID: riderID})
		return err
	})
	return out, err
}
