package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/internal"
)

// DefaultLookupTimeout bounds a single lookup
const DefaultLookupTimeout = 10 * time.Second

type (
	// LookupFunc resolves a decoded scan value
	LookupFunc func(ctx context.Context, key string) error

	// Guard runs at most one lookup at a time. A scanner re-fires the same
	// detection every frame, submits during a lookup are dropped.
	Guard struct {
		lookup  LookupFunc
		timeout time.Duration

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup

		inFlight atomic.Bool
		// gen identifies the current lookup so a late release of an older one is a no-op
		gen atomic.Uint64
	}
)

func NewGuard(lookup LookupFunc, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Guard{
		lookup:  lookup,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit starts a lookup for key unless one is in flight. It returns false
// if the submit was dropped.
func (g *Guard) Submit(key string) bool {
	release, ok := g.acquire()
	if !ok {
		internal.ScanSubmits.WithLabelValues("dropped").Inc()
		log.Trace().Str("key", key).Msg("lookup in flight, scan dropped")
		return false
	}
	internal.ScanSubmits.WithLabelValues("started").Inc()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer release()

		ctx, cancel := context.WithTimeout(g.ctx, g.timeout)
		defer cancel()

		if err := g.lookup(ctx, key); err != nil {
			internal.Lookups.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("key", key).Msg("lookup failed")
			return
		}
		internal.Lookups.WithLabelValues("ok").Inc()
	}()

	return true
}

// InFlight reports whether a lookup is running
func (g *Guard) InFlight() bool {
	return g.inFlight.Load()
}

// Wait blocks until the running lookup, if any, completed
func (g *Guard) Wait() {
	g.wg.Wait()
}

// Close cancels a running lookup and waits for it. Later submits still work
// but their lookups see a canceled context.
func (g *Guard) Close() {
	g.cancel()
	g.wg.Wait()
}

// acquire marks the guard busy. The returned release may be called any number
// of times, only the first call of the current lookup resets the guard.
func (g *Guard) acquire() (func(), bool) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return nil, false
	}
	gen := g.gen.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			if g.gen.Load() == gen {
				g.inFlight.Store(false)
			}
		})
	}, true
}
