package dock

import (
	"fmt"
	"strings"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
)

type Status string

const (
	Empty        Status = "empty"
	Occupied     Status = "occupied"
	OutOfService Status = "out_of_service"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case Empty, Occupied, OutOfService:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: dock status %q", fault.ErrInvalidArgument, s)
}

type Dock struct {
	ID        string  `db:"id" firestore:"id" json:"id"`
	StationID string  `db:"station_id" firestore:"stationId" json:"stationId"`
	Status    Status  `db:"status" firestore:"status" json:"status"`
	BikeID    *string `db:"bike_id" firestore:"bikeId" json:"bikeId,omitempty"`
	Code      string  `db:"code" firestore:"code" json:"-"`
}

// Attach records bikeID as the occupant. An out-of-service dock keeps its
// status.
func (d *Dock) Attach(bikeID string) {
	d.BikeID = &bikeID
	if d.Status != OutOfService {
		d.Status = Occupied
	}
}

// Detach clears the occupant.
func (d *Dock) Detach() {
	d.BikeID = nil
	if d.Status != OutOfService {
		d.Status = Empty
	}
}

// Reactivate recomputes the status from residency.
func (d *Dock) Reactivate() {
	if d.BikeID != nil {
		d.Status = Occupied
	} else {
		d.Status = Empty
	}
}

// VerifyCode checks an entered access code against the dock's code.
func (d Dock) VerifyCode(entered string) error {
	want := strings.TrimSpace(d.Code)
	if want == "" {
		return fmt.Errorf("%w: dock %s has no access code", fault.ErrInvalidArgument, d.ID)
	}
	got := strings.TrimSpace(entered)
	if got == "" {
		return fmt.Errorf("%w: dock code is required", fault.ErrInvalidArgument)
	}
	if got != want {
		return fmt.Errorf("%w: dock code does not match", fault.ErrNotAuthorized)
	}
	return nil
}

// Check validates that occupancy matches the bike reference. Out-of-service
// docks may hold a bike or not.
func (d Dock) Check() error {
	if d.Status == OutOfService {
		return nil
	}
	if (d.Status == Occupied) != (d.BikeID != nil) {
		return fmt.Errorf("dock %s: status %s with bike=%v", d.ID, d.Status, d.BikeID != nil)
	}
	return nil
}
