package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/fleetengine-backend/fleet"
	"github.com/semanticallynull/fleetengine-backend/internal/auth0"
	"github.com/semanticallynull/fleetengine-backend/internal/fault"
	"github.com/semanticallynull/fleetengine-backend/internal/middleware"
	"github.com/semanticallynull/fleetengine-backend/internal/o11y"
	"github.com/semanticallynull/fleetengine-backend/loyalty"
	"github.com/semanticallynull/fleetengine-backend/reconcile"
	"github.com/semanticallynull/fleetengine-backend/rider"
)

// Payments manages the Stripe customer behind a rider.
type Payments interface {
	CreateCustomer(ctx context.Context, r rider.Rider) (string, error)
	CustomerSession(ctx context.Context, customerID string) (string, error)
	SetupIntent(ctx context.Context, customerID string) (string, error)
}

type Config struct {
	Auth0Domain string
	Audience    string

	OpsUsername     string
	OpsPassword     string
	MetricsUsername string
	MetricsPassword string

	// Authenticator replaces JWT validation, e.g. in tests. It must leave
	// validated claims in the request context.
	Authenticator gin.HandlerFunc
}

type API struct {
	r        *gin.Engine
	fleet    *fleet.Service
	tiers    *loyalty.Service
	rec      *reconcile.Reconciler
	auth0    auth0.Client
	payments Payments
}

func New(fs *fleet.Service, tiers *loyalty.Service, rec *reconcile.Reconciler, ac auth0.Client,
	payments Payments, obs *o11y.Observability, cfg Config) (*API, error) {
	a := &API{
		r:        gin.New(),
		fleet:    fs,
		tiers:    tiers,
		rec:      rec,
		auth0:    ac,
		payments: payments,
	}

	if cfg.OpsUsername == "" {
		return nil, errors.New("operator credentials are required")
	}
	authn := cfg.Authenticator
	if authn == nil {
		var err error
		authn, err = middleware.Authenticate(cfg.Auth0Domain, cfg.Audience)
		if err != nil {
			return nil, fmt.Errorf("configure authentication: %w", err)
		}
	}

	a.r.Use(gin.Recovery(), middleware.Tracing(), middleware.Logging(obs.Logger), middleware.Metrics(obs.Registry))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.r.GET("/stations", a.stationsHandler)
	a.r.GET("/stations/:id", a.stationHandler)

	metrics := gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{}))
	if cfg.MetricsUsername != "" {
		a.r.GET("/metrics", gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}), metrics)
	} else {
		a.r.GET("/metrics", metrics)
	}

	riders := a.r.Group("/", authn)
	{
		riders.POST("/reservations", a.reserveHandler)
		riders.DELETE("/reservations/:bikeId", a.cancelReservationHandler)
		riders.POST("/reservations/:bikeId/claim", a.claimReservationHandler)
		riders.POST("/trips", a.startTripHandler)
		riders.POST("/trips/end", a.endTripHandler)
		riders.GET("/trips/current", a.currentTripHandler)
		riders.GET("/trips", a.tripsHandler)
		riders.GET("/me/stats", a.statsHandler)
		riders.GET("/me/tier", a.tierHandler)
		riders.POST("/me/customer-session", a.createCustomerSession)
		riders.POST("/me/setup-intent", a.createSetupIntent)
	}

	ops := a.r.Group("/ops", gin.BasicAuth(gin.Accounts{cfg.OpsUsername: cfg.OpsPassword}))
	{
		ops.POST("/stations", a.provisionStationHandler)
		ops.POST("/docks", a.provisionDockHandler)
		ops.POST("/bikes", a.provisionBikeHandler)
		ops.POST("/transfers", a.transferHandler)
		ops.POST("/bikes/:id/maintenance", a.maintenanceHandler)
		ops.POST("/bikes/:id/return", a.returnToServiceHandler)
		ops.PUT("/docks/:id/status", a.dockStatusHandler)
		ops.PUT("/stations/:id/status", a.stationStatusHandler)
		ops.POST("/reconcile", a.reconcileHandler)
		ops.GET("/trips/:id/abandoned", a.abandonedHandler)
		ops.POST("/riders/:id/tier/evaluate", a.evaluateTierHandler)
	}

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// fail writes err as {code, message} with the status for its kind.
func fail(c *gin.Context, err error) {
	status := fault.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		middleware.GetLogger(c).ErrorContext(c, "request failed", "error", err)
		respondError(c, status, "INTERNAL", "internal error")
		return
	}
	respondError(c, status, fault.Kind(err), err.Error())
}

// respondError writes the {code, message} error body and records the code
// for the request log, metrics and span.
func respondError(c *gin.Context, status int, code, message string) {
	middleware.SetErrorCode(c, code)
	c.JSON(status, gin.H{"code": code, "message": message})
}

func badRequest(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
}
