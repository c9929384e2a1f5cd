// Package billing prices finished trips.
package billing

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

// Rate is a per-kind tariff in cents.
type Rate struct {
	Unlock    int64
	PerMinute int64
}

// Rates is the default rate strategy.
type Rates struct {
	Standard       Rate
	Electric       Rate
	AbandonmentFee int64
	TaxRate        float64
}

func DefaultRates() Rates {
	return Rates{
		Standard:       Rate{Unlock: 111, PerMinute: 22},
		Electric:       Rate{Unlock: 111, PerMinute: 33},
		AbandonmentFee: 33300,
		TaxRate:        0.14975,
	}
}

// ComputeBill prices a completed trip. The discount applies to the base
// cost and tax is charged on what remains.
func (r Rates) ComputeBill(t trip.Trip, kind bike.Kind, minutes int, discountRate float64) (trip.Bill, error) {
	if minutes < 0 {
		return trip.Bill{}, fmt.Errorf("%w: negative duration %d", fault.ErrInvalidArgument, minutes)
	}
	if discountRate < 0 || discountRate > 1 {
		return trip.Bill{}, fmt.Errorf("%w: discount rate %v", fault.ErrInvalidArgument, discountRate)
	}

	rate := r.Standard
	if kind == bike.Electric {
		rate = r.Electric
	}
	base := rate.Unlock + rate.PerMinute*int64(minutes)
	discount := round(float64(base) * discountRate)
	return r.bill(t, base, discount), nil
}

// FixedFee prices an abandoned trip. No discount applies.
func (r Rates) FixedFee(t trip.Trip) (trip.Bill, error) {
	return r.bill(t, r.AbandonmentFee, 0), nil
}

func (r Rates) bill(t trip.Trip, base, discount int64) trip.Bill {
	cost := base - discount
	tax := round(float64(cost) * r.TaxRate)
	b := trip.Bill{
		ID:       uuid.NewString(),
		TripID:   t.ID,
		RiderID:  t.RiderID,
		BaseCost: base,
		Discount: discount,
		Cost:     cost,
		Tax:      tax,
		Total:    cost + tax,
		Status:   trip.Pending,
	}
	if t.EndTime != nil {
		b.IssuedAt = *t.EndTime
	}
	return b
}

func round(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
