// Package loyalty assigns riders to tiers from their usage statistics.
package loyalty

import (
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/stats"
)

// Policy is the benefit attached to a tier.
type Policy struct {
	DiscountRate     float64 `json:"discountRate"`
	ExtraHoldMinutes int     `json:"extraHoldMinutes"`
}

var policies = [...]Policy{
	rider.NoTier: {DiscountRate: 0, ExtraHoldMinutes: 0},
	rider.Bronze: {DiscountRate: 0.05, ExtraHoldMinutes: 0},
	rider.Silver: {DiscountRate: 0.10, ExtraHoldMinutes: 2},
	rider.Gold:   {DiscountRate: 0.15, ExtraHoldMinutes: 5},
}

func PolicyFor(t rider.Tier) Policy {
	if t < rider.NoTier || t > rider.Gold {
		return policies[rider.NoTier]
	}
	return policies[t]
}

const (
	bronzeMinTrips     = 10
	silverMinClaims    = 5
	silverMonthlyTrips = 6
	silverMonths       = 3
	goldWeeklyTrips    = 6
)

// EligibleFor reports whether s meets the criteria of t, including those of
// every lower tier.
func EligibleFor(t rider.Tier, s stats.RiderStats) bool {
	switch t {
	case rider.NoTier:
		return true
	case rider.Bronze:
		return s.MissedReservations == 0 && s.ReturnedAllBikes && s.TripsLastYear > bronzeMinTrips
	case rider.Silver:
		if !EligibleFor(rider.Bronze, s) || s.SuccessfulClaims < silverMinClaims {
			return false
		}
		for i := 0; i < silverMonths; i++ {
			if s.TripsPerMonth[i] < silverMonthlyTrips {
				return false
			}
		}
		return true
	case rider.Gold:
		if !EligibleFor(rider.Silver, s) {
			return false
		}
		for _, n := range s.TripsPerWeek {
			if n < goldWeeklyTrips {
				return false
			}
		}
		return true
	}
	return false
}

// Evaluate moves from current to the adjacent tier while the criteria allow:
// up while the next tier is met, down while the current one is not.
func Evaluate(current rider.Tier, s stats.RiderStats) rider.Tier {
	if current < rider.NoTier || current > rider.Gold {
		current = rider.NoTier
	}
	if EligibleFor(current, s) {
		for current < rider.Gold && EligibleFor(current+1, s) {
			current++
		}
		return current
	}
	for current > rider.NoTier && !EligibleFor(current, s) {
		current--
	}
	return current
}
