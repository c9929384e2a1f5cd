// Package stats derives a rider's usage statistics from their trip history.
// Nothing here is stored; every snapshot is computed fresh.
package stats

import (
	"time"

	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

// Buckets is the number of months and weeks tracked.
const Buckets = 12

type RiderStats struct {
	TripsLastYear      int          `json:"tripsLastYear"`
	MissedReservations int          `json:"missedReservations"`
	SuccessfulClaims   int          `json:"successfulClaims"`
	TripsPerMonth      [Buckets]int `json:"tripsPerMonth"`
	TripsPerWeek       [Buckets]int `json:"tripsPerWeek"`
	ReturnedAllBikes   bool         `json:"returnedAllBikes"`
}

// Compute builds the snapshot as of now. Bucket index 0 is the current
// month or ISO week.
func Compute(trips []trip.Trip, missed rider.Timestamps, now time.Time) RiderStats {
	yearAgo := now.AddDate(-1, 0, 0)
	s := RiderStats{
		ReturnedAllBikes:   true,
		MissedReservations: missed.Since(yearAgo),
	}

	for _, t := range trips {
		start := t.StartTime.In(now.Location())
		inYear := start.After(yearAgo)

		switch t.Status {
		case trip.Active:
			s.ReturnedAllBikes = false
			if inYear {
				s.SuccessfulClaims++
			}
		case trip.Completed:
			if inYear {
				s.TripsLastYear++
				s.SuccessfulClaims++
			}
			if i, ok := monthsAgo(now, start); ok {
				s.TripsPerMonth[i]++
			}
			if i, ok := weeksAgo(now, start); ok {
				s.TripsPerWeek[i]++
			}
		}
	}
	return s
}

func monthsAgo(now, t time.Time) (int, bool) {
	d := (now.Year()*12 + int(now.Month())) - (t.Year()*12 + int(t.Month()))
	return d, d >= 0 && d < Buckets
}

// weeksAgo counts ISO weeks back from now. Weeks from the previous ISO year
// are offset as if that year had 52 weeks; anything older is dropped.
func weeksAgo(now, t time.Time) (int, bool) {
	curYear, curWeek := now.ISOWeek()
	year, week := t.ISOWeek()

	var d int
	switch year {
	case curYear:
		d = curWeek - week
	case curYear - 1:
		d = curWeek + (52 - week)
	default:
		return 0, false
	}
	return d, d >= 0 && d < Buckets
}
