package internal

import "fmt"

type (
	// {"zone":"ITU","direction":"ENTER","insideAny":true,"timestamp":1683137969000,"lat":55.659359,"long":12.591005}

	// GeofenceEvent is the wire format of a committed geofence transition
	GeofenceEvent struct {
		Zone      string  `json:"zone,omitempty"`
		Direction string  `json:"direction,omitempty"`
		InsideAny bool    `json:"insideAny"`
		Timestamp int64   `json:"timestamp"` // ms since epoch
		Lat       float64 `json:"lat,omitempty"`
		Long      float64 `json:"long,omitempty"`
	}

	// {"carid":"scooter-1","eventTime":1683137969,"elev":"0.0","lat":55.659359,"long":12.591005}

	// Coordinates is the location fix a device pushes over MQTT
	Coordinates struct {
		DeviceID  string  `json:"carid"`
		EventTime int64   `json:"eventTime"`
		Elevation string  `json:"elev,omitempty"`
		Lat       float64 `json:"lat"`
		Long      float64 `json:"long"`
	}
)

func (evt *GeofenceEvent) String() string {
	return fmt.Sprintf("%s %s insideAny=%t", evt.Direction, evt.Zone, evt.InsideAny)
}
