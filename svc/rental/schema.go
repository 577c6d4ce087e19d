package main

import (
	"fmt"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/geofence"
	"github.com/redhat-partner-ecosystem/scootershare/rental"
	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

const (
	scanStarted = "started"
	scanDropped = "dropped"
)

var (
	// zone colours of the map surface
	zoneFillColor   = argb(125, 255, 72, 0)
	zoneStrokeColor = argb(125, 0, 255, 21)
)

type (
	// VehicleRequest registers a vehicle or moves it. Without lat/long the
	// current tracker coordinate is used.
	VehicleRequest struct {
		Name     string   `json:"name,omitempty"`
		Location string   `json:"location"`
		Lat      *float64 `json:"lat,omitempty"`
		Long     *float64 `json:"long,omitempty"`
	}

	LocationRequest struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"long"`
	}

	StatusResponse struct {
		Coordinate geo.Coordinate   `json:"coordinate"`
		Real       bool             `json:"real"`
		Geofence   geofence.State   `json:"geofence"`
		Engine     bool             `json:"engine"`
		State      rental.State     `json:"state"`
		EndPending bool             `json:"endPending"`
		Selected   *vehicle.Vehicle `json:"selected,omitempty"`
		Session    *rental.Session  `json:"session,omitempty"`
		Lookup     bool             `json:"lookup"`
	}

	RentalResponse struct {
		State      rental.State    `json:"state"`
		EndPending bool            `json:"endPending"`
		Session    *rental.Session `json:"session,omitempty"`
	}

	ZoneResponse struct {
		Name   string  `json:"name"`
		Lat    float64 `json:"lat"`
		Long   float64 `json:"long"`
		Radius float64 `json:"radius"`
		Expiry string  `json:"expiry"`
		Armed  bool    `json:"armed"`
	}

	ScanResponse struct {
		Status string `json:"status"`
	}

	MapCircle struct {
		Name        string         `json:"name"`
		Center      geo.Coordinate `json:"center"`
		Radius      float64        `json:"radius"`
		FillColor   string         `json:"fillColor"`
		StrokeColor string         `json:"strokeColor"`
	}

	MapMarker struct {
		ID         string         `json:"id"`
		Name       string         `json:"name"`
		Location   string         `json:"location"`
		Coordinate geo.Coordinate `json:"coordinate"`
		PhotoURL   string         `json:"photoUrl"`
	}

	MapResponse struct {
		Center   geo.Coordinate `json:"center"`
		Zones    []MapCircle    `json:"zones"`
		Vehicles []MapMarker    `json:"vehicles"`
	}
)

// argb formats a colour as #AARRGGBB
func argb(a, r, g, b uint8) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", a, r, g, b)
}

func expiryString(z geo.Zone) string {
	if !z.Expires() {
		return "never"
	}
	return z.Expiry.String()
}
