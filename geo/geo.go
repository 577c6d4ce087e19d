package geo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// earthRadiusMeters is the mean earth radius used by the haversine formula
	earthRadiusMeters = 6371000.0

	// DefaultRadius is the radius every zone of the built-in catalog uses
	DefaultRadius = 30.0
	// DefaultExpiry is how long a zone stays armed after its last transition
	DefaultExpiry = 300 * time.Second
	// NeverExpire marks a zone that never lapses. A zero Expiry does too.
	NeverExpire time.Duration = -1
)

var (
	// ErrInvalidCoordinate is returned for NaN, infinite or out of range values
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrInvalidZone is returned for zones without a name or with a non-positive radius
	ErrInvalidZone = errors.New("invalid zone")
	// ErrDuplicateZone is returned when two zones share a name
	ErrDuplicateZone = errors.New("duplicate zone")
)

type (
	// Coordinate is an immutable (latitude, longitude) pair in degrees
	Coordinate struct {
		Lat float64 `json:"lat" yaml:"lat"`
		Lon float64 `json:"long" yaml:"long"`
	}

	// Zone is a named circular region
	Zone struct {
		Name         string        `json:"name"`
		Center       Coordinate    `json:"center"`
		RadiusMeters float64       `json:"radius"`
		Expiry       time.Duration `json:"expiry"`
	}
)

// NewCoordinate validates lat/lon and returns the coordinate
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, c.Lat, c.Lon)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Distance returns the great-circle distance between a and b in meters
func Distance(a, b Coordinate) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, h)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Offset moves c by north/east meters. Good enough for the short distances used by simulators and tests.
func Offset(c Coordinate, northMeters, eastMeters float64) Coordinate {
	dLat := northMeters / earthRadiusMeters
	dLon := eastMeters / (earthRadiusMeters * math.Cos(toRadians(c.Lat)))
	return Coordinate{
		Lat: c.Lat + toDegrees(dLat),
		Lon: c.Lon + toDegrees(dLon),
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Contains reports whether c lies inside the zone, the border included
func (z Zone) Contains(c Coordinate) bool {
	return Distance(z.Center, c) <= z.RadiusMeters
}

// Expires reports whether the zone lapses at all
func (z Zone) Expires() bool {
	return z.Expiry > 0
}

func (z Zone) Validate() error {
	if z.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidZone)
	}
	if !(z.RadiusMeters > 0) || math.IsInf(z.RadiusMeters, 0) {
		return fmt.Errorf("%w: '%s' radius %v", ErrInvalidZone, z.Name, z.RadiusMeters)
	}
	if err := z.Center.Validate(); err != nil {
		return fmt.Errorf("%w: '%s': %v", ErrInvalidZone, z.Name, err)
	}
	return nil
}

// Fix is a coordinate as reported by a location source. Real is false for the
// fallback coordinate used when no provider is available.
type Fix struct {
	Coordinate Coordinate `json:"coordinate"`
	Real       bool       `json:"real"`
	Timestamp  time.Time  `json:"timestamp"`
}
