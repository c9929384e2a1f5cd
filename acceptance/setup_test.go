package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticallynull/fleetengine-backend/api"
	"github.com/semanticallynull/fleetengine-backend/billing"
	"github.com/semanticallynull/fleetengine-backend/fleet"
	"github.com/semanticallynull/fleetengine-backend/internal/auth0"
	"github.com/semanticallynull/fleetengine-backend/internal/o11y"
	"github.com/semanticallynull/fleetengine-backend/loyalty"
	"github.com/semanticallynull/fleetengine-backend/reconcile"
	"github.com/semanticallynull/fleetengine-backend/reservation"
	"github.com/semanticallynull/fleetengine-backend/rider"
	"github.com/semanticallynull/fleetengine-backend/store"
)

const (
	opsUser     = "ops"
	opsPassword = "secret"
)

type TestServer struct {
	Router     *gin.Engine
	Store      *store.Memory
	Fleet      *fleet.Service
	Scheduler  *reservation.Scheduler
	Auth0      *auth0.FakeClient
	Reconciler *reconcile.Reconciler

	mu  sync.Mutex
	now time.Time
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &TestServer{
		Store: store.NewMemory(),
		Auth0: auth0.NewFakeClient(),
		now:   time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	ts.Scheduler = reservation.NewScheduler(logger)
	ts.Scheduler.Start(context.Background())
	t.Cleanup(ts.Scheduler.Stop)

	tiers := loyalty.NewService(ts.Store, logger).WithClock(ts.clock)
	ts.Fleet = fleet.NewService(ts.Store, ts.Scheduler, billing.DefaultRates(), tiers, logger).WithClock(ts.clock)
	ts.Reconciler = reconcile.New(ts.Store, billing.DefaultRates(), tiers, logger).WithClock(ts.clock)

	obs := &o11y.Observability{Logger: logger, Registry: prometheus.NewRegistry()}
	a, err := api.New(ts.Fleet, tiers, ts.Reconciler, ts.Auth0, nil, obs, api.Config{
		OpsUsername:   opsUser,
		OpsPassword:   opsPassword,
		Authenticator: fakeAuthMiddleware(),
	})
	if err != nil {
		t.Fatalf("failed to create api: %v", err)
	}
	ts.Router = a.Router()
	return ts
}

func (ts *TestServer) clock() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.now
}

func (ts *TestServer) Advance(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.now = ts.now.Add(d)
}

// fakeAuthMiddleware trusts the X-User-ID header as the token subject.
func fakeAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			c.Abort()
			return
		}
		claims := &validator.ValidatedClaims{RegisteredClaims: validator.RegisteredClaims{Subject: userID}}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), jwtmiddleware.ContextKey{}, claims))
		c.Next()
	}
}

// as authenticates a request as user.
func as(user string) map[string]string {
	return map[string]string{"X-User-ID": user}
}

func ops() map[string]string {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth(opsUser, opsPassword)
	return map[string]string{"Authorization": req.Header.Get("Authorization")}
}

func (ts *TestServer) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodGet, path, nil, headers)
}

func (ts *TestServer) POST(path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, path, body, headers)
}

func (ts *TestServer) PUT(path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPut, path, body, headers)
}

func (ts *TestServer) DELETE(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodDelete, path, nil, headers)
}

// expect fails the test unless w has the given status.
func expect(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

// expectError fails the test unless w carries the given status and code.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expect(t, w, status)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != code {
		t.Errorf("expected code %s, got %s", code, resp["code"])
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response: %v: %s", err, w.Body.String())
	}
}

// SeedFleet provisions station S1 (capacity 3, 15 minute hold) with docks
// D1 holding B1, D2 holding electric B2 and empty D3, plus station S2
// (capacity 2) with empty docks D4 and D5. Every dock code is 1234.
func (ts *TestServer) SeedFleet(t *testing.T) {
	t.Helper()
	expect(t, ts.POST("/ops/stations", map[string]interface{}{
		"id": "S1", "name": "Central", "capacity": 3, "reservationHoldTime": 15,
	}, ops()), http.StatusCreated)
	expect(t, ts.POST("/ops/stations", map[string]interface{}{
		"id": "S2", "name": "Harbour", "capacity": 2, "reservationHoldTime": 10,
	}, ops()), http.StatusCreated)
	for _, d := range []struct{ id, station string }{{"D1", "S1"}, {"D2", "S1"}, {"D3", "S1"}, {"D4", "S2"}, {"D5", "S2"}} {
		expect(t, ts.POST("/ops/docks", map[string]string{"id": d.id, "stationId": d.station, "code": "1234"}, ops()),
			http.StatusCreated)
	}
	expect(t, ts.POST("/ops/bikes", map[string]string{"id": "B1", "kind": "standard", "dockId": "D1"}, ops()),
		http.StatusCreated)
	expect(t, ts.POST("/ops/bikes", map[string]string{"id": "B2", "kind": "electric", "dockId": "D2"}, ops()),
		http.StatusCreated)
}

// RiderID returns the internal id of the rider behind user, registering them
// if needed.
func (ts *TestServer) RiderID(t *testing.T, user string) string {
	t.Helper()
	r, err := ts.Fleet.RiderByAuth0ID(context.Background(), user, nil)
	if err != nil {
		t.Fatalf("failed to resolve rider: %v", err)
	}
	return r.ID
}

// SetTier overwrites a rider's stored tier.
func (ts *TestServer) SetTier(t *testing.T, user string, tier rider.Tier) {
	t.Helper()
	id := ts.RiderID(t, user)
	err := ts.Store.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		r, err := tx.Rider(ctx, id)
		if err != nil {
			return err
		}
		r.Tier = tier
		return tx.PutRider(ctx, r)
	})
	if err != nil {
		t.Fatalf("failed to set tier: %v", err)
	}
}
