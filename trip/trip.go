package trip

import (
	"database/sql/driver"
	"math"
	"time"

	"github.com/semanticallynull/fleetengine-backend/internal/jsonb"
)

type Status string

const (
	Active    Status = "active"
	Completed Status = "completed"
	Cancelled Status = "cancelled"
	Abandoned Status = "abandoned"
)

type Trip struct {
	ID              string     `db:"id" firestore:"id" json:"id"`
	RiderID         string     `db:"rider_id" firestore:"riderId" json:"riderId"`
	BikeID          string     `db:"bike_id" firestore:"bikeId" json:"bikeId"`
	StartStationID  string     `db:"start_station_id" firestore:"startStationId" json:"startStationId"`
	StartDockID     string     `db:"start_dock_id" firestore:"startDockId" json:"startDockId"`
	EndStationID    *string    `db:"end_station_id" firestore:"endStationId" json:"endStationId,omitempty"`
	EndDockID       *string    `db:"end_dock_id" firestore:"endDockId" json:"endDockId,omitempty"`
	StartTime       time.Time  `db:"start_time" firestore:"startTime" json:"startTime"`
	EndTime         *time.Time `db:"end_time" firestore:"endTime" json:"endTime,omitempty"`
	Status          Status     `db:"status" firestore:"status" json:"status"`
	DurationMinutes int        `db:"duration_minutes" firestore:"durationMinutes" json:"durationMinutes"`
	Bill            *Bill      `db:"bill" firestore:"bill" json:"bill,omitempty"`
}

type BillStatus string

const (
	Pending BillStatus = "pending"
	Paid    BillStatus = "paid"
)

// Bill is the charge attached to a finished trip. Amounts are in cents.
type Bill struct {
	ID       string     `firestore:"id" json:"id"`
	TripID   string     `firestore:"tripId" json:"tripId"`
	RiderID  string     `firestore:"riderId" json:"riderId"`
	BaseCost int64      `firestore:"baseCost" json:"baseCost"`
	Discount int64      `firestore:"discount" json:"discount"`
	Cost     int64      `firestore:"cost" json:"cost"`
	Tax      int64      `firestore:"tax" json:"tax"`
	Total    int64      `firestore:"total" json:"total"`
	Status   BillStatus `firestore:"status" json:"status"`
	IssuedAt time.Time  `firestore:"issuedAt" json:"issuedAt"`
}

func (b *Bill) Scan(src any) error {
	return jsonb.Scan(src, b)
}

func (b Bill) Value() (driver.Value, error) {
	return jsonb.Value(b)
}

// Minutes returns the elapsed time rounded up to whole minutes.
func Minutes(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(math.Ceil(end.Sub(start).Minutes()))
}

// Finish closes the trip with the given terminal status.
func (t *Trip) Finish(status Status, at time.Time) {
	t.Status = status
	t.EndTime = &at
	t.DurationMinutes = Minutes(t.StartTime, at)
}

// Elapsed is the time since start as of now.
func (t Trip) Elapsed(now time.Time) time.Duration {
	return now.Sub(t.StartTime)
}
