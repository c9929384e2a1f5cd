package acceptance

import (
	"net/http"
	"testing"
	"time"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/trip"
)

func TestOps_RequireBasicAuth(t *testing.T) {
	ts := NewTestServer(t)

	expect(t, ts.POST("/ops/reconcile", nil, nil), http.StatusUnauthorized)
	expect(t, ts.POST("/ops/reconcile", nil, as("alice")), http.StatusUnauthorized)
}

func TestTransfer_MovesBikeBetweenStations(t *testing.T) {
	ts := NewTestServer(t)
	ts.SeedFleet(t)

	expect(t, ts.POST("/reservations", map[string]string{"bikeId": "B1"}, as("alice")), http.StatusCreated)

	w := ts.POST("/ops/transfers", map[string]string{"bikeId": "B1", "sourceDockId": "D1", "destDockId": "D4"}, ops())
	expect(t, w, http.StatusOK)
	var b bike.Bike
	decode(t, w, &b)
	if b.Status != bike.Available || b.StationID == nil || *b.StationID != "S2" {
		t.Errorf("unexpected bike: %+v", b)
	}
	if n := ts.Scheduler.Pending(); n != 0 {
		t.Errorf("expected no pending timers, got %d", n)
	}

	var st stationDetail
	decode(t, ts.GET("/stations/S2", nil), &st)
	if st.NumDockedBikes != 1 || len(st.Bikes) != 1 || st.Status != "occupied" {
		t.Errorf("unexpected station: %+v", st)
	}

	expectError(t, ts.POST("/ops/transfers", map[string]string{"bikeId": "B2", "sourceDockId": "D2", "destDockId": "D4"}, ops()),
		http.StatusConflict, "INVALID_STATE")
	expectError(t, ts.POST("/ops/transfers", map[string]string{"bikeId": "B2", "sourceDockId": "D2", "destDockId": "D2"}, ops()),
		http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestStatusChanges(t *testing.T) {
	ts := NewTestServer(t)
	ts.SeedFleet(t)

	expectError(t, ts.PUT("/ops/stations/S1/status", map[string]string{"status": "closed"}, ops()),
		http.StatusBadRequest, "INVALID_ARGUMENT")
	expectError(t, ts.PUT("/ops/docks/D1/status", map[string]string{"status": "broken"}, ops()),
		http.StatusBadRequest, "INVALID_ARGUMENT")

	w := ts.PUT("/ops/docks/D1/status", map[string]string{"status": "out_of_service"}, ops())
	expect(t, w, http.StatusOK)
	var d dock.Dock
	decode(t, w, &d)
	if d.Status != dock.OutOfService {
		t.Errorf("unexpected dock: %+v", d)
	}
	expectError(t, ts.POST("/reservations", map[string]string{"bikeId": "B1"}, as("alice")),
		http.StatusConflict, "INVALID_STATE")
	expect(t, ts.PUT("/ops/docks/D1/status", map[string]string{"status": "empty"}, ops()), http.StatusOK)

	expect(t, ts.PUT("/ops/stations/S1/status", map[string]string{"status": "out_of_service"}, ops()), http.StatusOK)
	var stations []stationDetail
	decode(t, ts.GET("/stations", nil), &stations)
	for _, st := range stations {
		if st.ID == "S1" && (st.HasBikesAvailable || st.HasAvailableSpace) {
			t.Errorf("out of service station still offered: %+v", st)
		}
	}
	expect(t, ts.PUT("/ops/stations/S1/status", map[string]string{"status": "occupied"}, ops()), http.StatusOK)
	expect(t, ts.POST("/reservations", map[string]string{"bikeId": "B1"}, as("alice")), http.StatusCreated)

	expect(t, ts.POST("/ops/bikes/B2/maintenance", nil, ops()), http.StatusOK)
	expectError(t, ts.POST("/trips", map[string]string{"dockId": "D2", "dockCode": "1234"}, as("bob")),
		http.StatusConflict, "INVALID_STATE")
	expect(t, ts.POST("/ops/bikes/B2/return", nil, ops()), http.StatusOK)
	expect(t, ts.POST("/trips", map[string]string{"dockId": "D2", "dockCode": "1234"}, as("bob")), http.StatusCreated)
}

func TestReconcile_AbandonsOverdueTrip(t *testing.T) {
	ts := NewTestServer(t)
	ts.SeedFleet(t)

	w := ts.POST("/trips", map[string]string{"dockId": "D1", "dockCode": "1234"}, as("alice"))
	expect(t, w, http.StatusCreated)
	var tr trip.Trip
	decode(t, w, &tr)

	ts.Advance(5 * time.Hour)

	var check struct {
		Abandoned      bool    `json:"abandoned"`
		ThresholdHours float64 `json:"thresholdHours"`
	}
	decode(t, ts.GET("/ops/trips/"+tr.ID+"/abandoned", ops()), &check)
	if !check.Abandoned || check.ThresholdHours != 4 {
		t.Errorf("unexpected check: %+v", check)
	}

	var sweep struct {
		Processed int `json:"processed"`
	}
	w = ts.POST("/ops/reconcile", nil, ops())
	expect(t, w, http.StatusOK)
	decode(t, w, &sweep)
	if sweep.Processed != 1 {
		t.Fatalf("expected 1 processed trip, got %d", sweep.Processed)
	}

	var trips []trip.Trip
	decode(t, ts.GET("/trips", as("alice")), &trips)
	if len(trips) != 1 || trips[0].Status != trip.Abandoned || trips[0].Bill == nil || trips[0].Bill.Total != 38287 {
		t.Errorf("unexpected trips: %+v", trips)
	}

	decode(t, ts.POST("/ops/reconcile", nil, ops()), &sweep)
	if sweep.Processed != 0 {
		t.Errorf("expected second sweep to process nothing, got %d", sweep.Processed)
	}
	decode(t, ts.GET("/ops/trips/"+tr.ID+"/abandoned", ops()), &check)
	if check.Abandoned {
		t.Errorf("closed trip reported as overdue")
	}
	expectError(t, ts.GET("/ops/trips/missing/abandoned", ops()), http.StatusNotFound, "NOT_FOUND")

	expect(t, ts.POST("/ops/transfers", map[string]string{"bikeId": "B1", "destDockId": "D3"}, ops()), http.StatusOK)
	expect(t, ts.POST("/reservations", map[string]string{"bikeId": "B1"}, as("bob")), http.StatusCreated)
}

func TestEvaluateTier_DemotesIneligibleRider(t *testing.T) {
	ts := NewTestServer(t)
	ts.SetTier(t, "alice", rider.Silver)
	id := ts.RiderID(t, "alice")

	w := ts.POST("/ops/riders/"+id+"/tier/evaluate", nil, ops())
	expect(t, w, http.StatusOK)
	var change struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	decode(t, w, &change)
	if change.From != "Silver" || change.To != "NoTier" {
		t.Errorf("unexpected change: %+v", change)
	}

	var tier struct {
		Tier string `json:"tier"`
	}
	decode(t, ts.GET("/me/tier", as("alice")), &tier)
	if tier.Tier != "NoTier" {
		t.Errorf("expected NoTier, got %s", tier.Tier)
	}
	expectError(t, ts.POST("/ops/riders/nobody/tier/evaluate", nil, ops()), http.StatusNotFound, "NOT_FOUND")
}
