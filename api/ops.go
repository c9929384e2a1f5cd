package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/dock"
	"github.com/semanticallynull/fleetengine-backend/fleet"
	"github.com/semanticallynull/fleetengine-backend/internal/middleware"
	"github.com/semanticallynull/fleetengine-backend/station"
)

type provisionStationRequest struct {
	ID                  string `json:"id" binding:"required"`
	Name                string `json:"name"`
	Address             string `json:"address"`
	Capacity            int    `json:"capacity" binding:"required"`
	ReservationHoldTime int    `json:"reservationHoldTime"`
}

type provisionDockRequest struct {
	ID        string `json:"id" binding:"required"`
	StationID string `json:"stationId" binding:"required"`
	Code      string `json:"code"`
}

type provisionBikeRequest struct {
	ID     string `json:"id" binding:"required"`
	Kind   string `json:"kind" binding:"required"`
	DockID string `json:"dockId" binding:"required"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (a *API) provisionStationHandler(c *gin.Context) {
	var req provisionStationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	st, err := a.fleet.ProvisionStation(c.Request.Context(), station.Station{
		ID:                  req.ID,
		Name:                req.Name,
		Address:             req.Address,
		Capacity:            req.Capacity,
		ReservationHoldTime: req.ReservationHoldTime,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (a *API) provisionDockHandler(c *gin.Context) {
	var req provisionDockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	d, err := a.fleet.ProvisionDock(c.Request.Context(), dock.Dock{ID: req.ID, StationID: req.StationID, Code: req.Code})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (a *API) provisionBikeHandler(c *gin.Context) {
	var req provisionBikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := a.fleet.ProvisionBike(c.Request.Context(), req.ID, bike.Kind(req.Kind), req.DockID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (a *API) transferHandler(c *gin.Context) {
	var req fleet.TransferCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := a.fleet.TransferBike(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) maintenanceHandler(c *gin.Context) {
	b, err := a.fleet.SetMaintenance(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) returnToServiceHandler(c *gin.Context) {
	b, err := a.fleet.ReturnToService(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) dockStatusHandler(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	d, err := a.fleet.SetDockStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (a *API) stationStatusHandler(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	st, err := a.fleet.SetStationStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toStationResponse(st))
}

func (a *API) reconcileHandler(c *gin.Context) {
	n, err := a.rec.Sweep(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	middleware.GetLogger(c).Info("manual abandoned trip sweep", "abandoned", n)
	c.JSON(http.StatusOK, gin.H{"processed": n})
}

func (a *API) abandonedHandler(c *gin.Context) {
	id := c.Param("id")
	abandoned, err := a.rec.IsAbandoned(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tripId":         id,
		"abandoned":      abandoned,
		"thresholdHours": a.rec.Threshold().Hours(),
	})
}

func (a *API) evaluateTierHandler(c *gin.Context) {
	change, err := a.tiers.Reevaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, change)
}
