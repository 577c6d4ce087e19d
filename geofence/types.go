package geofence

import (
	"time"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
)

type Direction string

const (
	Enter Direction = "ENTER"
	Exit  Direction = "EXIT"
	Dwell Direction = "DWELL"
)

type (
	Transition struct {
		Zone      string    `json:"zone"`
		Direction Direction `json:"direction"`
		Timestamp time.Time `json:"timestamp"`
	}

	// State is the geofence status every consumer reads. The engine is its only writer.
	State struct {
		InsideAny      bool       `json:"insideAny"`
		LastTransition Transition `json:"lastTransition"`
	}

	// Event is what the engine publishes on the bus, one per committed transition
	Event struct {
		Transition
		State      State          `json:"state"`
		Coordinate geo.Coordinate `json:"coordinate"`
	}

	// StateStore receives every new State. coord.Value[State] implements it.
	StateStore interface {
		Store(State)
	}
)
