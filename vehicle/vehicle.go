package vehicle

import (
	"time"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
)

const (
	// Path is the record store node all vehicles live under
	Path = "scooter"

	// photoKey is where a vehicle photo is kept in the object store, %s is the vehicle name
	photoKey = "Images/%s.jpg"
)

type (
	// Vehicle is a rentable scooter
	Vehicle struct {
		ID         string         `json:"id"`
		Name       string         `json:"name"`
		Location   string         `json:"location"`
		Timestamp  time.Time      `json:"timestamp"`
		Coordinate geo.Coordinate `json:"coordinate"`
	}

	// Record is the stored form of a vehicle
	// {"name":"scooter-1","location":"ITU","timestamp":1683137969000,"latitude":55.659359,"longitude":12.591005}
	Record struct {
		Name      string  `json:"name"`
		Location  string  `json:"location"`
		Timestamp int64   `json:"timestamp"` // ms since epoch
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
)

func (v *Vehicle) Record() Record {
	return Record{
		Name:      v.Name,
		Location:  v.Location,
		Timestamp: v.Timestamp.UnixMilli(),
		Latitude:  v.Coordinate.Lat,
		Longitude: v.Coordinate.Lon,
	}
}

// Empty reports whether no vehicle is set
func (v *Vehicle) Empty() bool {
	return v.ID == ""
}

func FromRecord(id string, r *Record) Vehicle {
	return Vehicle{
		ID:         id,
		Name:       r.Name,
		Location:   r.Location,
		Timestamp:  time.UnixMilli(r.Timestamp),
		Coordinate: geo.Coordinate{Lat: r.Latitude, Lon: r.Longitude},
	}
}

// LocationFields are the fields written when a vehicle is parked
func LocationFields(location string, c geo.Coordinate, ts time.Time) map[string]interface{} {
	return map[string]interface{}{
		"location":  location,
		"timestamp": ts.UnixMilli(),
		"latitude":  c.Lat,
		"longitude": c.Lon,
	}
}
