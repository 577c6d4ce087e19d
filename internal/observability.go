package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/txsvc/stdlib/v2"
)

const (
	PROMETHEUS_HOST         = "prometheus_host"
	PROMETHEUS_METRICS_PATH = "prometheus_metrics_path"
)

var (
	GeofenceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootershare_geofence_transitions_total",
		Help: "The number of committed geofence transitions",
	}, []string{"zone", "direction"})

	GeofenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scootershare_geofence_errors_total",
		Help: "The number of location source errors seen by the geofence engine",
	})

	ScanSubmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootershare_scan_submits_total",
		Help: "Scan detections handed to the lookup guard, by outcome",
	}, []string{"outcome"})

	Lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootershare_lookups_total",
		Help: "Completed vehicle lookups, by result",
	}, []string{"result"})

	RentOverrides = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootershare_rent_overrides_total",
		Help: "Geofence gate overrides, by action",
	}, []string{"action"})

	RentalsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scootershare_rentals_completed_total",
		Help: "The number of completed rentals",
	})

	RemoteWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scootershare_remote_write_failures_total",
		Help: "The number of failed record store writes",
	})

	BusDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scootershare_bus_deliveries_total",
		Help: "The number of events delivered to bus subscribers",
	})
)

func StartPrometheusListener() {
	// prometheus endpoint setup
	promHost := stdlib.GetString(PROMETHEUS_HOST, "0.0.0.0:2112")
	promMetricsPath := stdlib.GetString(PROMETHEUS_METRICS_PATH, "/metrics")

	// start the metrics listener
	go func() {
		log.Debug().Str("host", promHost).Str("path", promMetricsPath).Msg("start metrics")

		mux := http.NewServeMux()
		mux.Handle(promMetricsPath, promhttp.Handler())
		if err := http.ListenAndServe(promHost, mux); err != nil {
			log.Error().Err(err).Msg("metrics listener stopped")
		}
	}()
}
