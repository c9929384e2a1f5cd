package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/fleetengine-backend/bike"
	"github.com/semanticallynull/fleetengine-backend/station"
)

type stationResponse struct {
	station.Station
	HasBikesAvailable bool `json:"hasBikesAvailable"`
	HasAvailableSpace bool `json:"hasAvailableSpace"`
}

func toStationResponse(st station.Station) stationResponse {
	return stationResponse{
		Station:           st,
		HasBikesAvailable: st.HasBikesAvailable(),
		HasAvailableSpace: st.HasAvailableSpace(),
	}
}

func (a *API) stationsHandler(c *gin.Context) {
	stations, err := a.fleet.Stations(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	resp := make([]stationResponse, 0, len(stations))
	for _, st := range stations {
		resp = append(resp, toStationResponse(st))
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) stationHandler(c *gin.Context) {
	id := c.Param("id")

	st, err := a.fleet.Station(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	bikes, err := a.fleet.StationBikes(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if bikes == nil {
		bikes = []bike.Bike{}
	}

	c.JSON(http.StatusOK, struct {
		stationResponse
		Bikes []bike.Bike `json:"bikes"`
	}{
		stationResponse: toStationResponse(st),
		Bikes:           bikes,
	})
}
