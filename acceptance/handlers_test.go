package acceptance

import (
	"net/http"
	"testing"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/internal/auth0"
)

type stationDetail struct {
	ID                string      `json:"id"`
	Status            string      `json:"status"`
	NumDockedBikes    int         `json:"numDockedBikes"`
	HasBikesAvailable bool        `json:"hasBikesAvailable"`
	HasAvailableSpace bool        `json:"hasAvailableSpace"`
	Bikes             []bike.Bike `json:"bikes"`
}

func TestHealth(t *testing.T) {
	ts := NewTestServer(t)
	expect(t, ts.GET("/health", nil), http.StatusOK)
}

func TestStations(t *testing.T) {
	ts := NewTestServer(t)
	ts.SeedFleet(t)

	var stations []stationDetail
	decode(t, ts.GET("/stations", nil), &stations)
	if len(stations) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(stations))
	}

	var st stationDetail
	decode(t, ts.GET("/stations/S1", nil), &st)
	if st.NumDockedBikes != 2 || len(st.Bikes) != 2 || !st.HasBikesAvailable || !st.HasAvailableSpace {
		t.Errorf("unexpected station: %+v", st)
	}

	expectError(t, ts.GET("/stations/S9", nil), http.StatusNotFound, "NOT_FOUND")
	expectError(t, ts.POST("/ops/stations", map[string]interface{}{"id": "S1", "capacity": 1}, ops()),
		http.StatusConflict, "CONFLICT")
}

func TestMetrics(t *testing.T) {
	ts := NewTestServer(t)
	ts.GET("/health", nil)
	expect(t, ts.GET("/metrics", nil), http.StatusOK)
}

func TestRiderRegisteredFromUserInfo(t *testing.T) {
	ts := NewTestServer(t)
	ts.Auth0.AddUser("token-alice", &auth0.UserInfo{Sub: "alice", Name: "Alice", Email: "alice@example.com"})

	headers := as("alice")
	headers["Authorization"] = "Bearer token-alice"
	var stats struct {
		TripsLastYear    int  `json:"tripsLastYear"`
		ReturnedAllBikes bool `json:"returnedAllBikes"`
	}
	decode(t, ts.GET("/me/stats", headers), &stats)
	if stats.TripsLastYear != 0 || !stats.ReturnedAllBikes {
		t.Errorf("unexpected stats: %+v", stats)
	}
	expect(t, ts.GET("/me/tier", headers), http.StatusOK)
	if n := ts.Auth0.Lookups(); n != 1 {
		t.Errorf("expected user info to be fetched once at registration, got %d lookups", n)
	}

	r, err := ts.Fleet.RiderByAuth0ID(t.Context(), "alice", nil)
	if err != nil {
		t.Fatalf("failed to load rider: %v", err)
	}
	if r.Name != "Alice" || r.Email != "alice@example.com" {
		t.Errorf("unexpected rider: %+v", r)
	}
}

func TestPaymentsUnavailableWithoutStripe(t *testing.T) {
	ts := NewTestServer(t)
	expect(t, ts.POST("/me/setup-intent", nil, as("alice")), http.StatusNotImplemented)
}
