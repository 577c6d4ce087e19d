package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/txsvc/stdlib/v2"

	"github.com/redhat-partner-ecosystem/scootershare/internal"
)

const (
	// expected ENV variables
	CLIENT_ID          = "client_id"
	GROUP_ID           = "group_id"
	SOURCE_TOPIC       = "source_topic"
	KAFKA_SERVICE      = "kafka_service"
	KAFKA_SERVICE_PORT = "kafka_service_port"
	KAFKA_AUTO_OFFSET  = "auto_offset"
)

var (
	// metrics collectors
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootershare_geofence_events_received_total",
		Help: "The number of geofence events read from the topic, by direction",
	}, []string{"direction"})

	eventsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scootershare_geofence_events_malformed_total",
		Help: "The number of messages that could not be decoded",
	})
)

func init() {
	// setup logging
	internal.SetLogLevel()
}

// newConsumer creates the consumer from the environment
func newConsumer() (*kafka.Consumer, error) {
	clientID := stdlib.GetString(CLIENT_ID, "geofence-listener-svc")
	groupID := stdlib.GetString(GROUP_ID, "geofence-listener")
	autoOffset := stdlib.GetString(KAFKA_AUTO_OFFSET, "end") // smallest, earliest, beginning, largest, latest, end

	// kafka setup
	kafkaService := stdlib.GetString(KAFKA_SERVICE, "")
	if kafkaService == "" {
		return nil, fmt.Errorf("missing env KAFKA_SERVICE")
	}
	kafkaServer := fmt.Sprintf("%s:%s", kafkaService, stdlib.GetString(KAFKA_SERVICE_PORT, "9092"))

	// https://github.com/edenhill/librdkafka/blob/master/CONFIGURATION.md
	return kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       kafkaServer,
		"client.id":               clientID,
		"group.id":                groupID,
		"connections.max.idle.ms": 0,
		"auto.offset.reset":       autoOffset,
		"broker.address.family":   "v4",
	})
}

func main() {
	clientID := stdlib.GetString(CLIENT_ID, "geofence-listener-svc")
	sourceTopic := stdlib.GetString(SOURCE_TOPIC, "geofence")

	kc, err := newConsumer()
	if err != nil {
		log.Fatal().Err(err).Msg(err.Error())
	}

	// prometheus endpoint setup
	internal.StartPrometheusListener()

	// setup shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down")
		kc.Close()
		os.Exit(0)
	}()

	// subscribe
	if err = kc.SubscribeTopics(strings.Split(sourceTopic, ","), nil); err != nil {
		log.Fatal().Err(err).Msg(err.Error())
	}

	log.Info().Str("source", sourceTopic).Str("clientid", clientID).Msg("start listening")

	for {
		msg, err := kc.ReadMessage(-1)
		if err != nil {
			// The client will automatically try to recover from all errors.
			log.Error().Err(err).Msg("consumer error")
			continue
		}

		evt, err := decodeEvent(msg.Value)
		if err != nil {
			eventsMalformed.Inc()
			log.Warn().Err(err).Str("partition", msg.TopicPartition.String()).Msg("malformed event")
			continue
		}
		handleEvent(&evt)
	}
}

func decodeEvent(data []byte) (internal.GeofenceEvent, error) {
	var evt internal.GeofenceEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, err
	}
	if evt.Direction == "" {
		return evt, fmt.Errorf("missing direction")
	}
	return evt, nil
}

func handleEvent(evt *internal.GeofenceEvent) {
	eventsReceived.WithLabelValues(evt.Direction).Inc()
	log.Info().Str("zone", evt.Zone).Str("direction", evt.Direction).Bool("insideAny", evt.InsideAny).Int64("ts", evt.Timestamp).Msg("geofence event")
}
