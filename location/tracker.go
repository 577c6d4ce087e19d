package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/coord"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
)

const (
	// DefaultInterval is the update interval requested from the provider
	DefaultInterval = 5 * time.Second
	// MinInterval is the smallest interval a provider is asked for
	MinInterval = 1 * time.Second
)

var (
	// ErrPermissionDenied is returned when the provider may not deliver fixes
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrUnavailable is returned when the provider can not be reached right now.
	// Unlike ErrPermissionDenied, a later Start may succeed.
	ErrUnavailable = errors.New("location provider unavailable")

	// Fallback is used as current coordinate when no real fix is available.
	// Callers must check Fix.Real before relying on it.
	Fallback = geo.Coordinate{Lat: 25.025885, Lon: -78.035889}
)

type (
	// Provider is a source of location fixes
	Provider interface {
		// CheckPermission returns an error wrapping ErrPermissionDenied if no fixes can be
		// delivered, or ErrUnavailable if the source is temporarily out of reach
		CheckPermission(ctx context.Context) error
		// Subscribe starts delivering fixes no faster than interval
		Subscribe(ctx context.Context, interval time.Duration, onFix func(geo.Fix), onError func(error)) error
		// Unsubscribe stops deliveries. It must be safe to call after a failed Subscribe.
		Unsubscribe() error
	}

	// Sink consumes fixes and provider errors, e.g. the geofence engine
	Sink interface {
		OnLocation(geo.Fix)
		HandleError(error)
	}

	// Tracker owns the current coordinate. It is the only writer.
	Tracker struct {
		provider Provider
		sink     Sink
		interval time.Duration
		current  *coord.Value[geo.Fix]

		mu      sync.Mutex
		started bool
		// active is read by provider callbacks without taking mu
		active atomic.Bool
	}
)

// NewTracker creates a stopped tracker. current receives every fix and may be
// shared through coord.Context; nil creates a private value.
func NewTracker(provider Provider, sink Sink, current *coord.Value[geo.Fix], interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	if current == nil {
		current = &coord.Value[geo.Fix]{}
	}
	current.Store(geo.Fix{Coordinate: Fallback, Timestamp: time.Now()})

	return &Tracker{
		provider: provider,
		sink:     sink,
		interval: interval,
		current:  current,
	}
}

// Start subscribes to the provider. Without permission the fallback coordinate
// is published and an error wrapping ErrPermissionDenied is returned; the
// tracker counts as started in that case so that Stop cleans up. An error
// wrapping ErrUnavailable leaves the tracker stopped, Start may be retried.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}
	t.started = true
	t.active.Store(true)

	if err := t.provider.CheckPermission(ctx); err != nil {
		if !t.current.Load().Real {
			fix := geo.Fix{Coordinate: Fallback, Timestamp: time.Now()}
			t.current.Store(fix)
			if t.sink != nil {
				t.sink.OnLocation(fix)
			}
		}

		if errors.Is(err, ErrUnavailable) {
			t.started = false
			t.active.Store(false)
			log.Warn().Err(err).Str("fallback", Fallback.String()).Msg("location provider unavailable, using fallback")
			return fmt.Errorf("location.Tracker.Start: %w", err)
		}

		log.Warn().Err(err).Str("fallback", Fallback.String()).Msg("no location permission, using fallback")
		if errors.Is(err, ErrPermissionDenied) {
			return fmt.Errorf("location.Tracker.Start: %w", err)
		}
		return fmt.Errorf("location.Tracker.Start: %w: %w", ErrPermissionDenied, err)
	}

	if err := t.provider.Subscribe(ctx, t.interval, t.onFix, t.onError); err != nil {
		log.Error().Err(err).Msg("location subscribe failed")
		return fmt.Errorf("location.Tracker.Start: %w", err)
	}

	log.Info().Str("interval", t.interval.String()).Msg("location updates started")
	return nil
}

// Stop unsubscribes from the provider. Calling it on a stopped tracker is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}
	t.started = false
	t.active.Store(false)

	if err := t.provider.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("location unsubscribe failed")
		return
	}
	log.Info().Msg("location updates stopped")
}

// Current returns the last known coordinate and whether it is a real fix
func (t *Tracker) Current() (geo.Coordinate, bool) {
	fix := t.current.Load()
	return fix.Coordinate, fix.Real
}

// Fix returns the last known fix
func (t *Tracker) Fix() geo.Fix {
	return t.current.Load()
}

func (t *Tracker) Interval() time.Duration {
	return t.interval
}

func (t *Tracker) onFix(fix geo.Fix) {
	if !t.active.Load() {
		return
	}
	if err := fix.Coordinate.Validate(); err != nil {
		t.onError(err)
		return
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}
	fix.Real = true

	t.current.Store(fix)
	if t.sink != nil {
		t.sink.OnLocation(fix)
	}
}

func (t *Tracker) onError(err error) {
	if !t.active.Load() {
		return
	}
	if t.sink != nil {
		t.sink.HandleError(err)
		return
	}
	log.Warn().Err(err).Msg("location error")
}
