package bike

import (
	"fmt"
	"time"

	"github.com/semanticallynull/fleetengine-backend/internal/fault"
)

type Status string

const (
	Available   Status = "available"
	Reserved    Status = "reserved"
	OnTrip      Status = "on_trip"
	Maintenance Status = "maintenance"
	Abandoned   Status = "abandoned"
)

type Kind string

const (
	Standard Kind = "standard"
	Electric Kind = "electric"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Standard, Electric:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: bike kind %q", fault.ErrInvalidArgument, s)
}

type Bike struct {
	ID                string     `db:"id" firestore:"id" json:"id"`
	Status            Status     `db:"status" firestore:"status" json:"status"`
	Kind              Kind       `db:"kind" firestore:"kind" json:"kind"`
	DockID            *string    `db:"dock_id" firestore:"dockId" json:"dockId,omitempty"`
	StationID         *string    `db:"station_id" firestore:"stationId" json:"stationId,omitempty"`
	ReservationExpiry *time.Time `db:"reservation_expiry" firestore:"reservationExpiry" json:"reservationExpiry,omitempty"`
	ReservedBy        *string    `db:"reserved_by" firestore:"reservedBy" json:"reservedBy,omitempty"`
	// ReservationSeq counts the reservations ever placed on the bike and
	// identifies the current one.
	ReservationSeq int64 `db:"reservation_seq" firestore:"reservationSeq" json:"-"`
}

// Docked reports whether the bike is expected to sit in a dock.
func (s Status) Docked() bool {
	return s == Available || s == Reserved || s == Maintenance
}

// Reserve marks the bike as held for riderID until expiry.
func (b *Bike) Reserve(riderID string, expiry time.Time) {
	b.Status = Reserved
	b.ReservationSeq++
	b.ReservedBy = &riderID
	b.ReservationExpiry = &expiry
}

// Release drops any reservation and makes the bike available again.
func (b *Bike) Release() {
	b.Status = Available
	b.ReservedBy = nil
	b.ReservationExpiry = nil
}

// Undock puts the bike on a trip, clearing residency and reservation.
func (b *Bike) Undock() {
	b.Status = OnTrip
	b.DockID = nil
	b.StationID = nil
	b.ReservedBy = nil
	b.ReservationExpiry = nil
}

// Place makes the bike resident at the given dock and station.
func (b *Bike) Place(dockID, stationID string) {
	b.DockID = &dockID
	b.StationID = &stationID
}

// Check validates the reservation and residency invariants.
func (b Bike) Check() error {
	reserved := b.Status == Reserved
	if reserved != (b.ReservedBy != nil) || reserved != (b.ReservationExpiry != nil) {
		return fmt.Errorf("bike %s: status %s with reservedBy=%v expiry=%v",
			b.ID, b.Status, b.ReservedBy != nil, b.ReservationExpiry != nil)
	}
	docked := b.Status.Docked()
	if docked != (b.DockID != nil) || docked != (b.StationID != nil) {
		return fmt.Errorf("bike %s: status %s with dock=%v station=%v",
			b.ID, b.Status, b.DockID != nil, b.StationID != nil)
	}
	return nil
}
