package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/txsvc/stdlib/v2"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/internal"
	"github.com/redhat-partner-ecosystem/scootershare/location"
)

const (
	// expected ENV variables
	DEVICE_ID     = "device_id"
	ZONE          = "zone"
	MQTT_HOST     = "mqtt_host"
	MQTT_PROTOCOL = "mqtt_protocol"
	MQTT_PORT     = "mqtt_port"
	MQTT_USER     = "mqtt_user"
	MQTT_PASSWORD = "mqtt_password"
	INTERVAL      = "interval"
	WALK_DISTANCE = "walk_distance"

	defaultDevice = "scooter-1"

	// by default the walk goes this far out of the zone and back
	walkDistance = 1000.0
	walkSteps    = 10
)

var (
	// internal stuff
	shutdown bool = false
)

func init() {
	// setup logging
	internal.SetLogLevel()
	internal.TraceMqtt()

	// setup shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		shutdown = true
		log.Warn().Msg("shutting down")
	}()
}

func main() {
	device := stdlib.GetString(DEVICE_ID, defaultDevice)

	zone, ok := geo.DefaultCatalog().Lookup(stdlib.GetString(ZONE, "ITU"))
	if !ok {
		log.Fatal().Str("zone", stdlib.GetString(ZONE, "ITU")).Msg("unknown zone")
	}

	host := stdlib.GetString(MQTT_HOST, "")
	if host == "" {
		log.Fatal().Err(fmt.Errorf("missing env MQTT_HOST")).Msg("aborting")
	}

	cl := internal.CreateMqttClient(
		stdlib.GetString(MQTT_PROTOCOL, "tcp"),
		host,
		stdlib.GetString(MQTT_PORT, "1883"),
		fmt.Sprintf("%s-simulator", device),
		stdlib.GetString(MQTT_USER, ""),
		stdlib.GetString(MQTT_PASSWORD, ""),
	)
	if token := cl.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg(token.Error().Error())
	}
	defer cl.Disconnect(250)

	interval := location.DefaultInterval
	if d, err := time.ParseDuration(stdlib.GetString(INTERVAL, "")); err == nil && d > 0 {
		interval = d
	}

	distance := internal.GetFloat(WALK_DISTANCE, walkDistance)
	if distance <= zone.RadiusMeters {
		log.Warn().Float64("distance", distance).Float64("radius", zone.RadiusMeters).Msg("walk stays inside the zone")
	}

	simulate(cl, device, walk(zone.Center, walkSteps, distance), interval)
}

// simulate publishes the route in a loop until shutdown
func simulate(cl mqtt.Client, device string, route []geo.Coordinate, interval time.Duration) {
	topic := fmt.Sprintf(location.LocationTopic, device)
	log.Info().Str("device", device).Str("topic", topic).Int("points", len(route)).Msg("simulating scooter")

	tick := 0
	for !shutdown {
		fix := drive(device, tick, route)

		payload, _ := json.Marshal(&fix)
		if token := cl.Publish(topic, internal.AtLeastOnce, false, payload); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("device", device).Msg("publish failed")
		}
		log.Debug().Str("device", device).Float64("lat", fix.Lat).Float64("long", fix.Long).Msg(fmt.Sprintf("fix #%d", tick))

		tick++
		time.Sleep(interval)
	}

	log.Warn().Str("device", device).Msg("stopping simulation")
}

// walk returns a route from center straight north to distance meters and back
func walk(center geo.Coordinate, steps int, distance float64) []geo.Coordinate {
	route := make([]geo.Coordinate, 0, 2*steps)
	for i := 0; i <= steps; i++ {
		route = append(route, geo.Offset(center, distance*float64(i)/float64(steps), 0))
	}
	for i := steps - 1; i > 0; i-- {
		route = append(route, route[i])
	}
	return route
}

func drive(device string, tick int, route []geo.Coordinate) internal.Coordinates {
	c := route[tick%len(route)]
	return internal.Coordinates{
		DeviceID:  device,
		EventTime: stdlib.Now(),
		Elevation: "0.0",
		Lat:       c.Lat,
		Long:      c.Lon,
	}
}
