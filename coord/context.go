package coord

import (
	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/geofence"
	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

// Context is the coordination context shared by the tracker, the geofence
// engine and the rental machine. It is created once by the service and
// injected, there are no package level singletons.
type Context struct {
	// Location is written by location.Tracker only
	Location *Value[geo.Fix]
	// Geofence is written by geofence.Engine only
	Geofence *Value[geofence.State]
	// Vehicle is written by rental.Machine only
	Vehicle *Value[vehicle.Vehicle]
}

// New returns a context with empty snapshots
func New() *Context {
	return &Context{
		Location: &Value[geo.Fix]{},
		Geofence: &Value[geofence.State]{},
		Vehicle:  &Value[vehicle.Vehicle]{},
	}
}
