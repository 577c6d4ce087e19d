package rental

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/geofence"
	"github.com/redhat-partner-ecosystem/scootershare/store"
	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

type State string

const (
	Idle      State = "IDLE"
	Selected  State = "SELECTED"
	Renting   State = "RENTING"
	Returning State = "RETURNING"
)

type EventType string

const (
	VehicleSelected EventType = "selected"
	RentStarted     EventType = "started"
	EndRequested    EventType = "end_requested"
	EndConfirmed    EventType = "end_confirmed"
	EndDeclined     EventType = "end_declined"
	ReturnCompleted EventType = "returned"
	RentCanceled    EventType = "canceled"
)

var (
	// ErrGeofence is returned when the renter is not inside any zone
	ErrGeofence = errors.New("not inside a rental zone")
	// ErrRemoteWrite is returned when the vehicle record could not be written
	ErrRemoteWrite = errors.New("remote write failed")
	// ErrInvalidTransition is returned for operations the current state does not allow
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotFound is returned for unknown vehicles
	ErrNotFound = store.ErrNotFound
)

type (
	// Session is a running or finished rental
	Session struct {
		ID         string          `json:"id"`
		Vehicle    vehicle.Vehicle `json:"vehicle"`
		StartTime  time.Time       `json:"startTime"`
		Running    bool            `json:"running"`
		Elapsed    time.Duration   `json:"elapsed"`
		Price      int             `json:"price"`
		Overridden bool            `json:"overridden"`
	}

	// Receipt is the result of a completed return
	Receipt struct {
		SessionID     string         `json:"sessionId"`
		VehicleID     string         `json:"vehicleId"`
		VehicleName   string         `json:"vehicleName"`
		StartTime     time.Time      `json:"startTime"`
		EndTime       time.Time      `json:"endTime"`
		Elapsed       time.Duration  `json:"elapsed"`
		Price         int            `json:"price"`
		Location      string         `json:"location"`
		Coordinate    geo.Coordinate `json:"coordinate"`
		PhotoUploaded bool           `json:"photoUploaded"`
		Overridden    bool           `json:"overridden"`
	}

	// AuditEntry records a gate override
	AuditEntry struct {
		Action    string    `json:"action"`
		Reason    string    `json:"reason"`
		SessionID string    `json:"sessionId,omitempty"`
		VehicleID string    `json:"vehicleId"`
		InsideAny bool      `json:"insideAny"`
		Timestamp time.Time `json:"timestamp"`
	}

	// Event is published on every committed transition
	Event struct {
		Type      EventType `json:"type"`
		State     State     `json:"state"`
		Session   *Session  `json:"session,omitempty"`
		Receipt   *Receipt  `json:"receipt,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}

	// Gate provides the geofence state the rent transitions are checked against.
	// coord.Value[geofence.State] implements it.
	Gate interface {
		Load() geofence.State
	}

	// VehicleWriter persists a returned vehicle. vehicle.Repository implements it.
	VehicleWriter interface {
		UpdateLocation(ctx context.Context, id, location string, c geo.Coordinate) (vehicle.Vehicle, error)
		UploadPhoto(ctx context.Context, name string, photo io.Reader) error
	}

	// SelectionStore receives the chosen vehicle. coord.Value[vehicle.Vehicle] implements it.
	SelectionStore interface {
		Store(vehicle.Vehicle)
	}
)
