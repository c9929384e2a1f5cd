package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

func TestComputeBill(t *testing.T) {
	end := time.Date(2026, 4, 2, 9, 12, 0, 0, time.UTC)
	tr := trip.Trip{ID: "T1", RiderID: "R1", EndTime: &end}
	rates := DefaultRates()

	cases := []struct {
		name     string
		kind     bike.Kind
		minutes  int
		discount float64
		want     trip.Bill
	}{
		{"standard no tier", bike.Standard, 12, 0, trip.Bill{BaseCost: 375, Discount: 0, Cost: 375, Tax: 56, Total: 431}},
		{"standard silver", bike.Standard, 12, 0.10, trip.Bill{BaseCost: 375, Discount: 38, Cost: 337, Tax: 50, Total: 387}},
		{"electric gold", bike.Electric, 30, 0.15, trip.Bill{BaseCost: 1101, Discount: 165, Cost: 936, Tax: 140, Total: 1076}},
		{"unlock only", bike.Standard, 0, 0, trip.Bill{BaseCost: 111, Cost: 111, Tax: 17, Total: 128}},
	}
	for _, c := range cases {
		got, err := rates.ComputeBill(tr, c.kind, c.minutes, c.discount)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.name, err)
		}
		if got.BaseCost != c.want.BaseCost || got.Discount != c.want.Discount || got.Cost != c.want.Cost ||
			got.Tax != c.want.Tax || got.Total != c.want.Total {
			t.Errorf("%s: got %+v", c.name, got)
		}
		if got.TripID != "T1" || got.RiderID != "R1" || got.Status != trip.Pending || !got.IssuedAt.Equal(end) || got.ID == "" {
			t.Errorf("%s: unexpected bill metadata %+v", c.name, got)
		}
	}
}

func TestComputeBillRejectsBadInput(t *testing.T) {
	rates := DefaultRates()
	if _, err := rates.ComputeBill(trip.Trip{}, bike.Standard, -1, 0); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for negative minutes, got %v", err)
	}
	if _, err := rates.ComputeBill(trip.Trip{}, bike.Standard, 1, 1.5); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for discount above 1, got %v", err)
	}
}

func TestFixedFeeIgnoresDiscount(t *testing.T) {
	b, err := DefaultRates().FixedFee(trip.Trip{ID: "T1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.BaseCost != 33300 || b.Discount != 0 || b.Tax != 4987 || b.Total != 38287 {
		t.Errorf("unexpected fixed fee bill: %+v", b)
	}
}
