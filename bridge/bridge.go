// Package bridge forwards committed geofence transitions from the in-process
// bus to external brokers.
package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/eventbus"
	"github.com/redhat-partner-ecosystem/scootershare/geofence"
	"github.com/redhat-partner-ecosystem/scootershare/internal"
)

const (
	// SendTimeout bounds a single broker write
	SendTimeout = 5 * time.Second
)

// Sink delivers one geofence event to a broker
type Sink interface {
	Send(ctx context.Context, evt *internal.GeofenceEvent) error
	Name() string
}

// ToWire maps a bus event to its wire format
func ToWire(evt geofence.Event) internal.GeofenceEvent {
	return internal.GeofenceEvent{
		Zone:      evt.Zone,
		Direction: string(evt.Direction),
		InsideAny: evt.State.InsideAny,
		Timestamp: evt.Timestamp.UnixMilli(),
		Lat:       evt.Coordinate.Lat,
		Long:      evt.Coordinate.Lon,
	}
}

// Attach subscribes sink to bus. Failed sends are logged and dropped, the
// engine never waits for a broker.
func Attach(bus *eventbus.Bus[geofence.Event], sink Sink) *eventbus.Subscription[geofence.Event] {
	return bus.Subscribe(nil, func(evt geofence.Event) {
		wire := ToWire(evt)

		ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
		defer cancel()

		if err := sink.Send(ctx, &wire); err != nil {
			log.Warn().Err(err).Str("sink", sink.Name()).Str("zone", wire.Zone).Msg("forward failed")
			return
		}
		log.Trace().Str("sink", sink.Name()).Str("evt", wire.String()).Msg("forwarded")
	})
}
