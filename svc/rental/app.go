package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/bridge"
	"github.com/redhat-partner-ecosystem/scootershare/coord"
	"github.com/redhat-partner-ecosystem/scootershare/eventbus"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/geofence"
	"github.com/redhat-partner-ecosystem/scootershare/internal"
	"github.com/redhat-partner-ecosystem/scootershare/location"
	"github.com/redhat-partner-ecosystem/scootershare/rental"
	"github.com/redhat-partner-ecosystem/scootershare/scan"
	"github.com/redhat-partner-ecosystem/scootershare/vehicle"
)

type (
	// app owns the coordination context and every component wired to it
	app struct {
		cc       *coord.Context
		catalog  *geo.Catalog
		zoneBus  *eventbus.Bus[geofence.Event]
		rentBus  *eventbus.Bus[rental.Event]
		engine   *geofence.Engine
		tracker  *location.Tracker
		feed     *location.Feed // nil unless fixes are pushed over HTTP
		vehicles *vehicle.Repository
		machine  *rental.Machine
		scanner  *scan.Scanner

		cfg     appConfig
		subs    []func()
		closers []func()

		// retry keeps starting the tracker while the provider is unavailable
		cancelRetry context.CancelFunc
		retrying    sync.WaitGroup
	}

	appConfig struct {
		Interval       time.Duration
		LoiteringDelay time.Duration
		// RetryInterval is the first delay before the tracker is started again
		RetryInterval time.Duration
		// Now replaces time.Now in the geofence engine
		Now func() time.Time
	}
)

func newApp(catalog *geo.Catalog, provider location.Provider, vehicles *vehicle.Repository, cfg appConfig) *app {
	a := &app{
		cc:       coord.New(),
		catalog:  catalog,
		zoneBus:  eventbus.New[geofence.Event](),
		rentBus:  eventbus.New[rental.Event](),
		vehicles: vehicles,
		cfg:      cfg,
	}
	if a.cfg.RetryInterval <= 0 {
		a.cfg.RetryInterval = time.Second
	}
	if feed, ok := provider.(*location.Feed); ok {
		a.feed = feed
	}

	// zones stay armed while fixes arrive
	opts := []geofence.Option{geofence.WithLoiteringDelay(cfg.LoiteringDelay), geofence.WithRearm()}
	if cfg.Now != nil {
		opts = append(opts, geofence.WithClock(cfg.Now))
	}
	a.engine = geofence.NewEngine(catalog, a.zoneBus, a.cc.Geofence, opts...)
	a.tracker = location.NewTracker(provider, a.engine, a.cc.Location, cfg.Interval)
	a.machine = rental.NewMachine(a.cc.Geofence, vehicles, rental.WithBus(a.rentBus), rental.WithSelectionStore(a.cc.Vehicle))
	a.scanner = scan.NewScanner(scan.TextDecoder{}, vehicles, a.machine)

	// rental lifecycle log
	sub := a.rentBus.Subscribe(nil, func(evt rental.Event) {
		l := log.Info().Str("type", string(evt.Type)).Str("state", string(evt.State))
		if evt.Session != nil {
			l = l.Str("session", evt.Session.ID).Str("vehicle", evt.Session.Vehicle.ID)
		}
		if evt.Receipt != nil {
			l = l.Str("session", evt.Receipt.SessionID).Int("price", evt.Receipt.Price).Str("elapsed", internal.Duration(evt.Receipt.Elapsed, 1).String())
		}
		l.Msg("rental event")
	})
	a.subs = append(a.subs, sub.Unsubscribe)

	return a
}

// attach forwards geofence events to sink until the app stops
func (a *app) attach(sink bridge.Sink) {
	sub := bridge.Attach(a.zoneBus, sink)
	a.subs = append(a.subs, sub.Unsubscribe)
	log.Info().Str("sink", sink.Name()).Msg("geofence events forwarded")
}

// onClose registers cleanup that runs after all components stopped
func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// start arms the zones and subscribes to location updates. A denied location
// permission is not fatal, the tracker publishes the fallback coordinate. An
// unavailable provider is retried in the background until the app stops.
func (a *app) start(ctx context.Context) error {
	a.engine.Start()

	err := a.tracker.Start(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, location.ErrPermissionDenied):
		log.Warn().Err(err).Msg("continuing without location permission")
		return nil
	case errors.Is(err, location.ErrUnavailable):
		retryCtx, cancel := context.WithCancel(context.Background())
		a.cancelRetry = cancel
		a.retrying.Add(1)
		go func() {
			defer a.retrying.Done()
			a.retryTracker(retryCtx)
		}()
		return nil
	}
	return err
}

// retryTracker starts the tracker with exponential backoff
func (a *app) retryTracker(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.RetryInterval
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	op := func() error {
		err := a.tracker.Start(ctx)
		if err != nil && !errors.Is(err, location.ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Str("retry", next.String()).Msg("location provider unavailable")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("giving up on location updates")
		}
		return
	}
	log.Info().Msg("location provider available again")
}

func (a *app) stop() {
	if a.cancelRetry != nil {
		a.cancelRetry()
		a.retrying.Wait()
	}
	a.tracker.Stop()
	a.engine.Stop()
	a.scanner.Close()
	a.machine.Close()

	for _, unsubscribe := range a.subs {
		unsubscribe()
	}
	a.zoneBus.Close()
	a.rentBus.Close()

	for _, fn := range a.closers {
		fn()
	}
	log.Info().Msg("rental service stopped")
}
