package station

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/internal/jsonb"
)

type Status string

const (
	Empty        Status = "empty"
	Occupied     Status = "occupied"
	Full         Status = "full"
	OutOfService Status = "out_of_service"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case Empty, Occupied, Full, OutOfService:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: station status %q", fault.ErrInvalidArgument, s)
}

// IDSet is an ordered set of ids stored as a JSONB array.
type IDSet []string

func (s IDSet) Contains(id string) bool {
	return slices.Contains(s, id)
}

func (s *IDSet) Scan(src any) error {
	return jsonb.Scan(src, (*[]string)(s))
}

func (s IDSet) Value() (driver.Value, error) {
	if s == nil {
		return jsonb.Value([]string{})
	}
	return jsonb.Value([]string(s))
}

type Station struct {
	ID                  string `db:"id" firestore:"id" json:"id"`
	Name                string `db:"name" firestore:"name" json:"name"`
	Address             string `db:"address" firestore:"address" json:"address"`
	Status              Status `db:"status" firestore:"status" json:"status"`
	Capacity            int    `db:"capacity" firestore:"capacity" json:"capacity"`
	NumDockedBikes      int    `db:"num_docked_bikes" firestore:"numDockedBikes" json:"numDockedBikes"`
	NumElectricBikes    int    `db:"num_electric_bikes" firestore:"numElectricBikes" json:"numElectricBikes"`
	NumStandardBikes    int    `db:"num_standard_bikes" firestore:"numStandardBikes" json:"numStandardBikes"`
	DockIDs             IDSet  `db:"dock_ids" firestore:"dockIds" json:"dockIds"`
	BikeIDs             IDSet  `db:"bike_ids" firestore:"bikeIds" json:"bikeIds"`
	ReservationHoldTime int    `db:"reservation_hold_time" firestore:"reservationHoldTime" json:"reservationHoldTime"`
}

func (s Station) HasAvailableSpace() bool {
	return s.Status != OutOfService && s.NumDockedBikes < s.Capacity
}

func (s Station) HasBikesAvailable() bool {
	return s.Status != OutOfService && s.NumDockedBikes > 0
}

// AddBike makes id resident and updates the counters.
func (s *Station) AddBike(id string, kind bike.Kind) error {
	if s.BikeIDs.Contains(id) {
		return fmt.Errorf("%w: bike %s already at station %s", fault.ErrConflict, id, s.ID)
	}
	if s.NumDockedBikes >= s.Capacity {
		return fmt.Errorf("%w: station %s is full", fault.ErrInvalidState, s.ID)
	}
	s.BikeIDs = append(s.BikeIDs, id)
	s.NumDockedBikes++
	switch kind {
	case bike.Electric:
		s.NumElectricBikes++
	default:
		s.NumStandardBikes++
	}
	s.RecomputeStatus()
	return nil
}

// RemoveBike drops id from the residents and updates the counters.
func (s *Station) RemoveBike(id string, kind bike.Kind) error {
	i := slices.Index(s.BikeIDs, id)
	if i < 0 {
		return fmt.Errorf("%w: bike %s not at station %s", fault.ErrConflict, id, s.ID)
	}
	s.BikeIDs = slices.Delete(slices.Clone(s.BikeIDs), i, i+1)
	s.NumDockedBikes--
	switch kind {
	case bike.Electric:
		s.NumElectricBikes--
	default:
		s.NumStandardBikes--
	}
	s.RecomputeStatus()
	return nil
}

// RecomputeStatus derives the status from the counters. Out of service is
// left alone; use Reactivate to clear it.
func (s *Station) RecomputeStatus() {
	if s.Status == OutOfService {
		return
	}
	s.Status = derive(s.NumDockedBikes, s.Capacity)
}

func (s *Station) Reactivate() {
	s.Status = derive(s.NumDockedBikes, s.Capacity)
}

func derive(docked, capacity int) Status {
	switch {
	case docked == 0:
		return Empty
	case docked >= capacity:
		return Full
	}
	return Occupied
}

// Check validates the counter and status invariants.
func (s Station) Check() error {
	if s.NumDockedBikes != len(s.BikeIDs) || s.NumDockedBikes != s.NumElectricBikes+s.NumStandardBikes {
		return fmt.Errorf("station %s: docked=%d residents=%d electric=%d standard=%d",
			s.ID, s.NumDockedBikes, len(s.BikeIDs), s.NumElectricBikes, s.NumStandardBikes)
	}
	if s.Status != OutOfService && s.Status != derive(s.NumDockedBikes, s.Capacity) {
		return fmt.Errorf("station %s: status %s with %d/%d docked", s.ID, s.Status, s.NumDockedBikes, s.Capacity)
	}
	return nil
}
