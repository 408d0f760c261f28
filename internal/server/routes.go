package server

import (
	"net/http"
	"time"

	coreactor "github.com/firose-git/autovolt/internal/core/actor"
	"github.com/firose-git/autovolt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)
	e.GET("/active-tracking", s.ActiveTrackingHandler)
	e.GET("/consumption", s.ConsumptionHandler)
	e.GET("/devices/:id", s.DeviceStateHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"version":  versioninfo.Version,
		"revision": versioninfo.Revision,
	})
}

func (s *Server) ActiveTrackingHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetActiveTrackingRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetActiveTrackingResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusInternalServerError, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, response.Entries)
}

// ConsumptionHandler serves ledger range queries. Dates are inclusive
// YYYY-MM-DD bounds; omitted bounds default to today.
func (s *Server) ConsumptionHandler(c echo.Context) error {
	today := domain.LedgerDate(time.Now())
	from := c.QueryParam("from")
	if from == "" {
		from = today
	}
	to := c.QueryParam("to")
	if to == "" {
		to = today
	}

	req := domain.GetConsumptionRequest{
		From:            from,
		To:              to,
		Room:            c.QueryParam("location"),
		GroupByCategory: c.QueryParam("groupBy") == "category",
	}
	if ids := c.QueryParams()["device"]; len(ids) > 0 {
		req.DeviceIds = ids
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, req, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetConsumptionResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return c.String(http.StatusInternalServerError, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, response.Devices)
}

func (s *Server) DeviceStateHandler(c echo.Context) error {
	req := coreactor.GetDeviceStateByIdRequest{DeviceId: c.Param("id")}
	res, err := s.rootContext.RequestFuture(s.masterActor, req, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetDeviceStateResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		if response.GetResponseError() == domain.ErrUnknownDevice {
			return c.String(http.StatusNotFound, response.GetResponseError().Error())
		}
		return c.String(http.StatusInternalServerError, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, response.Device)
}
