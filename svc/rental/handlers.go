package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/txsvc/apikit/api"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/location"
	"github.com/redhat-partner-ecosystem/scootershare/rental"
	"github.com/redhat-partner-ecosystem/scootershare/store"
	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

const (
	// scan images are small, anything above is rejected
	maxScanBody = 1 << 20
)

var (
	errFeedDisabled = errors.New("location feed disabled")
	// errNoFix is returned when a position is needed but neither given nor known
	errNoFix = errors.New("no location fix, send lat and long")
)

// routes registers all endpoints on e
func (a *app) routes(e *echo.Echo) *echo.Echo {
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	e.GET("/", api.DefaultEndpoint)

	e.GET("/api/status", a.statusEndpoint)
	e.GET("/api/zones", a.zonesEndpoint)
	e.GET("/api/map", a.mapEndpoint)
	e.POST("/api/location", a.locationEndpoint)

	e.GET("/api/vehicles", a.listVehiclesEndpoint)
	e.POST("/api/vehicles", a.createVehicleEndpoint)
	e.GET("/api/vehicles/latest", a.latestVehicleEndpoint)
	e.GET("/api/vehicles/:id", a.getVehicleEndpoint)
	e.PUT("/api/vehicles/:id/location", a.updateLocationEndpoint)

	e.POST("/api/scan", a.scanEndpoint)

	e.POST("/api/rental/select/:id", a.selectEndpoint)
	e.POST("/api/rental/start", a.startEndpoint)
	e.POST("/api/rental/end", a.endEndpoint)
	e.POST("/api/rental/end/confirm", a.confirmEndpoint)
	e.POST("/api/rental/end/decline", a.declineEndpoint)
	e.POST("/api/rental/return", a.returnEndpoint)
	e.POST("/api/rental/cancel", a.cancelEndpoint)
	e.GET("/api/rental/audit", a.auditEndpoint)

	return e
}

// errorResponse maps domain errors to HTTP status codes
func errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, rental.ErrGeofence):
		return api.ErrorResponse(c, http.StatusPreconditionFailed, err, "not inside a zone, retry with override=true")
	case errors.Is(err, errNoFix):
		return api.ErrorResponse(c, http.StatusPreconditionFailed, err, "lat,long")
	case errors.Is(err, rental.ErrRemoteWrite):
		return api.ErrorResponse(c, http.StatusServiceUnavailable, err, "retry the return")
	case errors.Is(err, rental.ErrInvalidTransition):
		return api.ErrorResponse(c, http.StatusConflict, err, "")
	case errors.Is(err, store.ErrNotFound):
		return api.ErrorResponse(c, http.StatusNotFound, err, "")
	case errors.Is(err, geo.ErrInvalidCoordinate), errors.Is(err, vehicle.ErrInvalidVehicle):
		return api.ErrorResponse(c, http.StatusBadRequest, err, "")
	case errors.Is(err, errFeedDisabled), errors.Is(err, location.ErrNotSubscribed):
		return api.ErrorResponse(c, http.StatusConflict, err, "")
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return api.ErrorResponse(c, http.StatusInternalServerError, api.ErrInternalError, err.Error())
}

func (a *app) rentalStatus() RentalResponse {
	resp := RentalResponse{
		State:      a.machine.State(),
		EndPending: a.machine.EndPending(),
	}
	if sess, ok := a.machine.Session(); ok {
		resp.Session = &sess
	}
	return resp
}

// coordinate returns lat/long if both are given, the current fix otherwise.
// The fallback coordinate is never used as a position.
func (a *app) coordinate(lat, long *float64) (geo.Coordinate, error) {
	if lat == nil || long == nil {
		c, isReal := a.tracker.Current()
		if !isReal {
			return geo.Coordinate{}, errNoFix
		}
		return c, nil
	}
	return geo.NewCoordinate(*lat, *long)
}

func (a *app) statusEndpoint(c echo.Context) error {
	fix := a.tracker.Fix()
	resp := StatusResponse{
		Coordinate: fix.Coordinate,
		Real:       fix.Real,
		Geofence:   a.cc.Geofence.Load(),
		Engine:     a.engine.Running(),
		State:      a.machine.State(),
		EndPending: a.machine.EndPending(),
		Lookup:     a.scanner.Guard().InFlight(),
	}
	if v, ok := a.machine.Selected(); ok {
		resp.Selected = &v
	}
	if sess, ok := a.machine.Session(); ok {
		resp.Session = &sess
	}
	return api.StandardResponse(c, http.StatusOK, &resp)
}

func (a *app) zonesEndpoint(c echo.Context) error {
	zones := a.catalog.Zones()
	resp := make([]ZoneResponse, len(zones))
	for i, z := range zones {
		resp[i] = ZoneResponse{
			Name:   z.Name,
			Lat:    z.Center.Lat,
			Long:   z.Center.Lon,
			Radius: z.RadiusMeters,
			Expiry: expiryString(z),
			Armed:  a.engine.Armed(z.Name),
		}
	}
	return api.StandardResponse(c, http.StatusOK, resp)
}

func (a *app) mapEndpoint(c echo.Context) error {
	ctx := c.Request().Context()

	center, _ := a.tracker.Current()
	resp := MapResponse{
		Center:   center,
		Zones:    make([]MapCircle, 0, a.catalog.Len()),
		Vehicles: make([]MapMarker, 0),
	}
	for _, z := range a.catalog.Zones() {
		resp.Zones = append(resp.Zones, MapCircle{
			Name:        z.Name,
			Center:      z.Center,
			Radius:      z.RadiusMeters,
			FillColor:   zoneFillColor,
			StrokeColor: zoneStrokeColor,
		})
	}

	vehicles, err := a.vehicles.List(ctx)
	if err != nil {
		// the zones are still worth drawing
		log.Warn().Err(err).Msg("map without vehicles")
		return api.StandardResponse(c, http.StatusOK, &resp)
	}
	for _, v := range vehicles {
		resp.Vehicles = append(resp.Vehicles, MapMarker{
			ID:         v.ID,
			Name:       v.Name,
			Location:   v.Location,
			Coordinate: v.Coordinate,
			PhotoURL:   a.vehicles.PhotoURL(ctx, v.Name),
		})
	}
	return api.StandardResponse(c, http.StatusOK, &resp)
}

func (a *app) locationEndpoint(c echo.Context) error {
	if a.feed == nil {
		return errorResponse(c, errFeedDisabled)
	}

	var req LocationRequest
	if err := c.Bind(&req); err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "lat,long")
	}
	pos, err := geo.NewCoordinate(req.Lat, req.Long)
	if err != nil {
		return errorResponse(c, err)
	}
	if err := a.feed.Push(pos); err != nil {
		return errorResponse(c, err)
	}

	return a.statusEndpoint(c)
}

func (a *app) listVehiclesEndpoint(c echo.Context) error {
	vehicles, err := a.vehicles.List(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return api.StandardResponse(c, http.StatusOK, vehicles)
}

func (a *app) createVehicleEndpoint(c echo.Context) error {
	var req VehicleRequest
	if err := c.Bind(&req); err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "name")
	}
	if strings.TrimSpace(req.Name) == "" {
		return errorResponse(c, fmt.Errorf("%w: missing name", vehicle.ErrInvalidVehicle))
	}
	pos, err := a.coordinate(req.Lat, req.Long)
	if err != nil {
		return errorResponse(c, err)
	}

	v, err := a.vehicles.Create(c.Request().Context(), req.Name, req.Location, pos)
	if err != nil {
		return errorResponse(c, err)
	}
	return api.StandardResponse(c, http.StatusCreated, &v)
}

func (a *app) latestVehicleEndpoint(c echo.Context) error {
	v, err := a.vehicles.Latest(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return api.StandardResponse(c, http.StatusOK, &v)
}

func (a *app) getVehicleEndpoint(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "id")
	}

	v, err := a.vehicles.Get(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return api.StandardResponse(c, http.StatusOK, &v)
}

func (a *app) updateLocationEndpoint(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "id")
	}

	var req VehicleRequest
	if err := c.Bind(&req); err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "location")
	}

	ctx := c.Request().Context()
	// only known vehicles can be moved, Update would create the record
	if _, err := a.vehicles.Get(ctx, id); err != nil {
		return errorResponse(c, err)
	}
	pos, err := a.coordinate(req.Lat, req.Long)
	if err != nil {
		return errorResponse(c, err)
	}
	v, err := a.vehicles.UpdateLocation(ctx, id, req.Location, pos)
	if err != nil {
		return errorResponse(c, err)
	}
	return api.StandardResponse(c, http.StatusOK, &v)
}

func (a *app) scanEndpoint(c echo.Context) error {
	image, err := io.ReadAll(io.LimitReader(c.Request().Body, maxScanBody+1))
	if err != nil {
		return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "image")
	}
	if len(image) > maxScanBody {
		return api.ErrorResponse(c, http.StatusRequestEntityTooLarge, api.ErrInvalidRoute, "image too large")
	}

	if a.scanner.Process(c.Request().Context(), image) {
		return api.StandardResponse(c, http.StatusAccepted, &ScanResponse{Status: scanStarted})
	}
	return api.StandardResponse(c, http.StatusOK, &ScanResponse{Status: scanDropped})
}

func (a *app) selectEndpoint(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "id")
	}

	v, err := a.vehicles.Get(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	if err := a.machine.Select(v); err != nil {
		return errorResponse(c, err)
	}
	return api.StandardResponse(c, http.StatusOK, &v)
}

// override reads ?override=true&reason=...
func override(c echo.Context) (bool, string) {
	ok, _ := strconv.ParseBool(c.QueryParam("override"))
	return ok, c.QueryParam("reason")
}

func (a *app) startEndpoint(c echo.Context) error {
	var sess rental.Session
	var err error

	if ok, reason := override(c); ok {
		sess, err = a.machine.OverrideStartRent(reason)
	} else {
		sess, err = a.machine.StartRent()
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return api.StandardResponse(c, http.StatusOK, &sess)
}

func (a *app) endEndpoint(c echo.Context) error {
	var err error

	if ok, reason := override(c); ok {
		err = a.machine.OverrideRequestEndRent(reason)
	} else {
		err = a.machine.RequestEndRent()
	}
	if err != nil {
		return errorResponse(c, err)
	}
	resp := a.rentalStatus()
	return api.StandardResponse(c, http.StatusOK, &resp)
}

func (a *app) confirmEndpoint(c echo.Context) error {
	if err := a.machine.ConfirmEndRent(); err != nil {
		return errorResponse(c, err)
	}
	resp := a.rentalStatus()
	return api.StandardResponse(c, http.StatusOK, &resp)
}

func (a *app) declineEndpoint(c echo.Context) error {
	if err := a.machine.DeclineEndRent(); err != nil {
		return errorResponse(c, err)
	}
	resp := a.rentalStatus()
	return api.StandardResponse(c, http.StatusOK, &resp)
}

func (a *app) cancelEndpoint(c echo.Context) error {
	if err := a.machine.Cancel(); err != nil {
		return errorResponse(c, err)
	}
	resp := a.rentalStatus()
	return api.StandardResponse(c, http.StatusOK, &resp)
}

// returnEndpoint expects a multipart form with the location label, an
// optional photo and optional lat/long.
func (a *app) returnEndpoint(c echo.Context) error {
	lat, long, err := formCoordinate(c)
	if err != nil {
		return errorResponse(c, err)
	}
	pos, err := a.coordinate(lat, long)
	if err != nil {
		return errorResponse(c, err)
	}

	var photo io.Reader
	fh, err := c.FormFile("photo")
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "photo")
		}
		defer f.Close()
		photo = f
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// no photo
	default:
		return api.ErrorResponse(c, http.StatusBadRequest, api.ErrInvalidRoute, "photo")
	}

	receipt, err := a.machine.CompleteReturn(c.Request().Context(), c.FormValue("location"), pos, photo)
	if err != nil {
		return errorResponse(c, err)
	}
	return api.StandardResponse(c, http.StatusOK, &receipt)
}

func (a *app) auditEndpoint(c echo.Context) error {
	return api.StandardResponse(c, http.StatusOK, a.machine.Audit())
}

func formCoordinate(c echo.Context) (*float64, *float64, error) {
	latStr, longStr := c.FormValue("lat"), c.FormValue("long")
	if latStr == "" || longStr == "" {
		return nil, nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, nil, geo.ErrInvalidCoordinate
	}
	long, err := strconv.ParseFloat(longStr, 64)
	if err != nil {
		return nil, nil, geo.ErrInvalidCoordinate
	}
	return &lat, &long, nil
}
