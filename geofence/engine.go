package geofence

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/eventbus"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
	"github.com/redhat-partner-ecosystem/scootershare/internal"
)

type (
	Engine struct {
		// LoiteringDelay enables DWELL transitions when > 0. Set it before Start.
		LoiteringDelay time.Duration
		// Rearm renews every zone on each evaluated coordinate, lapsed ones included
		Rearm bool

		catalog *geo.Catalog
		zoneDef []geo.Zone
		bus     *eventbus.Bus[Event]
		store   StateStore
		now     func() time.Time

		mu      sync.Mutex
		running bool
		zones   []zoneState
		state   State
	}

	zoneState struct {
		armed       bool
		armedUntil  time.Time // ignored for zones that never expire
		inside      bool
		insideSince time.Time
		dwelled     bool
	}

	Option func(*Engine)
)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLoiteringDelay enables DWELL transitions
func WithLoiteringDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.LoiteringDelay = d
	}
}

// WithRearm keeps zones armed for as long as coordinates arrive
func WithRearm() Option {
	return func(e *Engine) {
		e.Rearm = true
	}
}

// NewEngine creates a stopped engine. bus and store may be nil.
func NewEngine(catalog *geo.Catalog, bus *eventbus.Bus[Event], store StateStore, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		zoneDef: catalog.Zones(),
		bus:     bus,
		store:   store,
		now:     time.Now,
	}
	e.zones = make([]zoneState, len(e.zoneDef))

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start arms every zone of the catalog and resets the recorded membership
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for i, z := range e.zoneDef {
		e.zones[i] = zoneState{
			armed:      true,
			armedUntil: now.Add(z.Expiry),
		}
	}
	e.running = true
	e.state = State{}
	e.commitState()

	log.Info().Int("zones", len(e.zoneDef)).Msg("geofences added")
}

// Stop disarms every zone. The last state stays readable.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false

	for i, z := range e.zoneDef {
		e.zones[i].armed = false
		log.Debug().Str("zone", z.Name).Msg("geofence removed")
	}
	log.Info().Int("zones", len(e.zoneDef)).Msg("geofences removed")
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// State returns the current geofence state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Armed reports whether the named zone still produces transitions
func (e *Engine) Armed(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for i, z := range e.zoneDef {
		if z.Name == name {
			return e.armedAt(i, now)
		}
	}
	return false
}

// OnLocation feeds a location fix into the engine
func (e *Engine) OnLocation(fix geo.Fix) {
	e.Evaluate(fix.Coordinate)
}

// HandleError records a location source failure. The previous state stays in effect.
func (e *Engine) HandleError(err error) {
	internal.GeofenceErrors.Inc()

	e.mu.Lock()
	insideAny := e.state.InsideAny
	e.mu.Unlock()

	log.Warn().Err(err).Bool("insideAny", insideAny).Msg("location error, keeping last geofence state")
}

// Evaluate checks c against every armed zone in catalog order and returns the
// committed transitions. Zones whose membership did not change produce nothing.
func (e *Engine) Evaluate(c geo.Coordinate) []Transition {
	if err := c.Validate(); err != nil {
		e.HandleError(err)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}

	now := e.now()
	var transitions []Transition

	for i, z := range e.zoneDef {
		if e.Rearm {
			e.renew(i, now)
		}
		if !e.armedAt(i, now) {
			continue
		}
		zs := &e.zones[i]

		inside := z.Contains(c)
		var dir Direction

		switch {
		case inside && !zs.inside:
			dir = Enter
			zs.insideSince = now
			zs.dwelled = false
		case !inside && zs.inside:
			dir = Exit
		case inside && e.LoiteringDelay > 0 && !zs.dwelled && now.Sub(zs.insideSince) >= e.LoiteringDelay:
			dir = Dwell
			zs.dwelled = true
		default:
			continue
		}

		zs.inside = inside
		// every transition re-arms the zone
		zs.armedUntil = now.Add(z.Expiry)

		tr := Transition{Zone: z.Name, Direction: dir, Timestamp: now}
		transitions = append(transitions, tr)

		e.commit(tr, c)
	}

	return transitions
}

// armedAt disarms a zone whose arming window lapsed. Callers hold e.mu.
func (e *Engine) armedAt(i int, now time.Time) bool {
	zs := &e.zones[i]
	if !zs.armed {
		return false
	}
	z := e.zoneDef[i]
	if z.Expires() && now.After(zs.armedUntil) {
		zs.armed = false
		log.Info().Str("zone", z.Name).Msg("geofence expired")
		return false
	}
	return true
}

// renew extends the arming window of zone i. A lapsed zone keeps its last
// membership, so leaving it while lapsed still yields EXIT. Callers hold e.mu.
func (e *Engine) renew(i int, now time.Time) {
	zs := &e.zones[i]
	z := e.zoneDef[i]
	if !zs.armed || (z.Expires() && now.After(zs.armedUntil)) {
		log.Info().Str("zone", z.Name).Msg("geofence re-armed")
	}
	zs.armed = true
	zs.armedUntil = now.Add(z.Expiry)
}

// commit updates the state after a single transition and publishes it. Callers hold e.mu.
func (e *Engine) commit(tr Transition, c geo.Coordinate) {
	insideAny := e.state.InsideAny
	if tr.Direction != Dwell {
		insideAny = false
		for _, zs := range e.zones {
			if zs.inside {
				insideAny = true
				break
			}
		}
	}

	e.state = State{
		InsideAny:      insideAny,
		LastTransition: tr,
	}
	e.commitState()

	internal.GeofenceTransitions.WithLabelValues(tr.Zone, string(tr.Direction)).Inc()

	switch tr.Direction {
	case Dwell:
		log.Info().Str("zone", tr.Zone).Str("dir", string(tr.Direction)).Msg("dwelling in zone")
	default:
		log.Info().Str("zone", tr.Zone).Str("dir", string(tr.Direction)).Bool("insideAny", insideAny).Msg("geofence transition")
	}

	if e.bus != nil {
		e.bus.Publish(Event{Transition: tr, State: e.state, Coordinate: c})
	}
}

func (e *Engine) commitState() {
	if e.store != nil {
		e.store.Store(e.state)
	}
}

func (e *Engine) Catalog() *geo.Catalog {
	return e.catalog
}
