package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/fleetengine-backend/trip"
)

type reserveRequest struct {
	BikeID string `json:"bikeId" binding:"required"`
}

type claimRequest struct {
	DockCode string `json:"dockCode"`
}

type startTripRequest struct {
	DockID   string `json:"dockId" binding:"required"`
	DockCode string `json:"dockCode"`
}

type endTripRequest struct {
	BikeID string `json:"bikeId" binding:"required"`
	DockID string `json:"dockId" binding:"required"`
}

func (a *API) reserveHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := a.fleet.Reserve(c.Request.Context(), req.BikeID, r.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (a *API) cancelReservationHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}

	b, err := a.fleet.CancelReservation(c.Request.Context(), c.Param("bikeId"), r.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) claimReservationHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	t, err := a.fleet.ClaimReservation(c.Request.Context(), c.Param("bikeId"), r.ID, req.DockCode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (a *API) startTripHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}
	var req startTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	t, err := a.fleet.UndockAvailable(c.Request.Context(), req.DockID, req.DockCode, r.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (a *API) endTripHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}
	var req endTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	t, err := a.fleet.DockBike(c.Request.Context(), req.BikeID, req.DockID, r.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (a *API) currentTripHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}

	t, err := a.fleet.CurrentTrip(c.Request.Context(), r.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (a *API) tripsHandler(c *gin.Context) {
	r, ok := a.currentRider(c)
	if !ok {
		return
	}

	trips, err := a.fleet.Trips(c.Request.Context(), r.ID)
	if err != nil {
		fail(c, err)
		return
	}
	if trips == nil {
		trips = []trip.Trip{}
	}
	c.JSON(http.StatusOK, trips)
}
