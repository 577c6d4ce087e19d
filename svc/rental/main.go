package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/txsvc/apikit"
	"github.com/txsvc/stdlib/v2"

	"github.com/redhat-partner-ecosystem/scootershare/api/firebase"
	"github.com/redhat-partner-ecosystem/scootershare/api/storage"
	"github.com/redhat-partner-ecosystem/scootershare/bridge"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/internal"
	"github.com/redhat-partner-ecosystem/scootershare/location"
	"github.com/redhat-partner-ecosystem/scootershare/store"
	"github.com/redhat-partner-ecosystem/scootershare/store/memory"
	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

const (
	// expected ENV variables
	CLIENT_ID = "client_id"
	DEVICE_ID = "device_id"

	ZONES_FILE        = "zones_file"
	LOITERING_DELAY   = "loitering_delay"
	LOCATION_INTERVAL = "location_interval"
	LOCATION_PROVIDER = "location_provider" // feed or mqtt

	MQTT_HOST     = "mqtt_host"
	MQTT_PROTOCOL = "mqtt_protocol"
	MQTT_PORT     = "mqtt_port"
	MQTT_USER     = "mqtt_user"
	MQTT_PASSWORD = "mqtt_password"

	REDIS_ADDR     = "redis_addr"
	REDIS_PASSWORD = "redis_password"
	CACHE_TTL      = "cache_ttl"

	KAFKA_SERVICE      = "kafka_service"
	KAFKA_SERVICE_PORT = "kafka_service_port"
	GEOFENCE_TOPIC     = "geofence_topic"

	RABBITMQ_URL = "rabbitmq_url"

	FALLBACK_PHOTO_URL = "fallback_photo_url"

	providerMQTT = "mqtt"
)

var (
	rentalApp *app
)

func init() {
	// a local .env file is optional
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file")
	}

	// setup logging
	internal.SetLogLevel()
	internal.TraceMqtt()
}

func main() {
	a, err := bootstrap()
	if err != nil {
		log.Fatal().Err(err).Msg(err.Error())
	}
	rentalApp = a

	if err := rentalApp.start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg(err.Error())
	}

	// prometheus endpoint setup
	internal.StartPrometheusListener()

	// start the http listener
	svc, err := apikit.New(setup, shutdown)
	if err != nil {
		log.Fatal().Err(err).Msg(err.Error())
	}
	svc.Listen("")
}

// bootstrap creates the app from the environment
func bootstrap() (*app, error) {
	ctx := context.Background()

	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	vehicles, err := newRepository(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider()
	if err != nil {
		return nil, err
	}

	a := newApp(catalog, provider, vehicles, appConfig{
		Interval:       duration(LOCATION_INTERVAL, location.DefaultInterval),
		LoiteringDelay: duration(LOITERING_DELAY, 0),
	})

	if err := attachBridges(a); err != nil {
		a.stop()
		return nil, err
	}
	return a, nil
}

func loadCatalog() (*geo.Catalog, error) {
	path := stdlib.GetString(ZONES_FILE, "")
	if path == "" {
		return geo.DefaultCatalog(), nil
	}

	catalog, err := geo.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", path).Int("zones", catalog.Len()).Msg("zones loaded")
	return catalog, nil
}

// newRepository uses firebase if configured and the in-memory stores otherwise
func newRepository(ctx context.Context) (*vehicle.Repository, error) {
	var records store.RecordStore
	var objects store.ObjectStore

	if stdlib.GetString(firebase.FirebaseDatabaseURL, "") != "" {
		db, err := firebase.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		records = db

		if bucket, err := storage.NewClient(ctx); err != nil {
			log.Warn().Err(err).Msg("no object store, photos disabled")
		} else {
			objects = bucket
		}
	} else {
		log.Warn().Msg("no record store configured, using memory")
		records = memory.NewRecordStore()
		objects = memory.NewObjectStore()
	}

	opts := []vehicle.RepositoryOption{
		vehicle.WithFallbackPhoto(stdlib.GetString(FALLBACK_PHOTO_URL, vehicle.DefaultPhotoURL)),
	}

	if addr := stdlib.GetString(REDIS_ADDR, ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: stdlib.GetString(REDIS_PASSWORD, ""),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("redis not reachable, cache misses until it is")
		}
		opts = append(opts, vehicle.WithCache(vehicle.NewRedisCache(rdb, duration(CACHE_TTL, vehicle.DefaultCacheTTL))))
	}

	return vehicle.NewRepository(records, objects, opts...), nil
}

func newProvider() (location.Provider, error) {
	if stdlib.GetString(LOCATION_PROVIDER, "") != providerMQTT {
		return location.NewFeed(), nil
	}

	host := stdlib.GetString(MQTT_HOST, "")
	if host == "" {
		return nil, fmt.Errorf("missing env MQTT_HOST")
	}
	client := internal.CreateMqttClient(
		stdlib.GetString(MQTT_PROTOCOL, "tcp"),
		host,
		stdlib.GetString(MQTT_PORT, "1883"),
		stdlib.GetString(CLIENT_ID, "scootershare-rental-svc"),
		stdlib.GetString(MQTT_USER, ""),
		stdlib.GetString(MQTT_PASSWORD, ""),
	)
	return location.NewMQTTProvider(client, stdlib.GetString(DEVICE_ID, location.AnyDevice)), nil
}

func attachBridges(a *app) error {
	if kafkaService := stdlib.GetString(KAFKA_SERVICE, ""); kafkaService != "" {
		kafkaServer := fmt.Sprintf("%s:%s", kafkaService, stdlib.GetString(KAFKA_SERVICE_PORT, "9092"))

		p, err := bridge.NewKafkaProducer(kafkaServer, stdlib.GetString(CLIENT_ID, "scootershare-rental-svc"))
		if err != nil {
			return err
		}
		go bridge.LogDeliveries(p.Events())

		a.attach(bridge.NewKafkaSink(p, stdlib.GetString(GEOFENCE_TOPIC, "geofence")))
		a.onClose(func() {
			p.Flush(1000)
			p.Close()
		})
	}

	if url := stdlib.GetString(RABBITMQ_URL, ""); url != "" {
		conn, ch, err := bridge.DialRabbit(url)
		if err != nil {
			return err
		}
		sink, err := bridge.NewRabbitSink(ch)
		if err != nil {
			conn.Close()
			return err
		}

		a.attach(sink)
		a.onClose(func() {
			ch.Close()
			conn.Close()
		})
	}
	return nil
}

// duration parses a Go duration from env, def if missing or malformed
func duration(env string, def time.Duration) time.Duration {
	s := stdlib.GetString(env, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Err(err).Str("env", env).Msg("invalid duration, using default")
		return def
	}
	return d
}

// http endpoint setup

func setup() *echo.Echo {
	return rentalApp.routes(echo.New())
}

func shutdown(ctx context.Context, a *apikit.App) error {
	rentalApp.stop()
	return nil
}
