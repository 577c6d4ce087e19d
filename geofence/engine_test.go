package geofence

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redhat-partner-ecosystem/scootershare/eventbus"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
)

var itu = geo.Coordinate{Lat: 55.659359, Lon: 12.591005}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2023, 5, 3, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) Store(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) Last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func ituCatalog(t *testing.T) *geo.Catalog {
	c, err := geo.NewCatalog(geo.Zone{Name: "ITU", Center: itu, RadiusMeters: 30, Expiry: geo.DefaultExpiry})
	require.NoError(t, err)
	return c
}

func TestITUScenario(t *testing.T) {
	bus := eventbus.New[Event]()
	defer bus.Close()

	events := make(chan Event, 10)
	bus.Subscribe(nil, func(evt Event) { events <- evt })

	rec := &stateRecorder{}
	e := NewEngine(ituCatalog(t), bus, rec)
	e.Start()

	tr := e.Evaluate(itu)
	require.Len(t, tr, 1)
	assert.Equal(t, "ITU", tr[0].Zone)
	assert.Equal(t, Enter, tr[0].Direction)
	assert.True(t, e.State().InsideAny)
	assert.True(t, rec.Last().InsideAny)

	far := geo.Offset(itu, 1000, 0)
	tr = e.Evaluate(far)
	require.Len(t, tr, 1)
	assert.Equal(t, Exit, tr[0].Direction)
	assert.False(t, e.State().InsideAny)

	// unchanged membership emits nothing
	assert.Empty(t, e.Evaluate(far))
	assert.Empty(t, e.Evaluate(geo.Offset(itu, 2000, 0)))

	for _, dir := range []Direction{Enter, Exit} {
		select {
		case evt := <-events:
			assert.Equal(t, dir, evt.Direction)
			assert.Equal(t, dir == Enter, evt.State.InsideAny)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	select {
	case evt := <-events:
		t.Fatalf("unexpected event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInsideAnyIsOrOfMemberships(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	var zones []geo.Zone
	for i := 0; i < 6; i++ {
		zones = append(zones, geo.Zone{
			Name:         string(rune('A' + i)),
			Center:       geo.Offset(itu, rnd.Float64()*200-100, rnd.Float64()*200-100),
			RadiusMeters: 20 + rnd.Float64()*40,
			Expiry:       geo.NeverExpire,
		})
	}

	walk := make([]geo.Coordinate, 200)
	for i := range walk {
		walk[i] = geo.Offset(itu, rnd.Float64()*300-150, rnd.Float64()*300-150)
	}

	// adding zones one by one can only turn insideAny on, never off
	var prev []bool
	for n := 1; n <= len(zones); n++ {
		cat, err := geo.NewCatalog(zones[:n]...)
		require.NoError(t, err)

		e := NewEngine(cat, nil, nil)
		e.Start()

		cur := make([]bool, len(walk))
		for i, c := range walk {
			e.Evaluate(c)

			expected := false
			for _, z := range zones[:n] {
				expected = expected || z.Contains(c)
			}
			assert.Equal(t, expected, e.State().InsideAny)
			cur[i] = e.State().InsideAny

			if prev != nil && prev[i] {
				assert.True(t, cur[i], "zone count %d, step %d", n, i)
			}
		}
		prev = cur
	}
}

func TestCatalogOrder(t *testing.T) {
	a := geo.Zone{Name: "A", Center: itu, RadiusMeters: 30, Expiry: geo.NeverExpire}
	b := geo.Zone{Name: "B", Center: geo.Offset(itu, 500, 0), RadiusMeters: 30, Expiry: geo.NeverExpire}
	cat, err := geo.NewCatalog(b, a)
	require.NoError(t, err)

	e := NewEngine(cat, nil, nil)
	e.Start()

	e.Evaluate(b.Center)
	tr := e.Evaluate(a.Center)
	require.Len(t, tr, 2)
	assert.Equal(t, Transition{Zone: "B", Direction: Exit, Timestamp: tr[0].Timestamp}, tr[0])
	assert.Equal(t, "A", tr[1].Zone)
	assert.Equal(t, Enter, tr[1].Direction)
	assert.True(t, e.State().InsideAny)
	assert.Equal(t, "A", e.State().LastTransition.Zone)
}

func TestExpiry(t *testing.T) {
	clock := newClock()
	e := NewEngine(ituCatalog(t), nil, nil, WithClock(clock.Now))
	e.Start()

	require.Len(t, e.Evaluate(itu), 1)

	// a transition re-arms the zone
	clock.Advance(4 * time.Minute)
	require.Len(t, e.Evaluate(geo.Offset(itu, 100, 0)), 1)
	clock.Advance(4 * time.Minute)
	require.Len(t, e.Evaluate(itu), 1)
	assert.True(t, e.Armed("ITU"))

	// the arming window lapses without transitions
	clock.Advance(geo.DefaultExpiry + time.Second)
	assert.Empty(t, e.Evaluate(geo.Offset(itu, 100, 0)))
	assert.False(t, e.Armed("ITU"))
	assert.True(t, e.State().InsideAny)

	// Start re-arms
	e.Start()
	assert.True(t, e.Armed("ITU"))
	assert.Len(t, e.Evaluate(itu), 1)
}

func TestRearm(t *testing.T) {
	clock := newClock()
	e := NewEngine(geo.DefaultCatalog(), nil, nil, WithClock(clock.Now), WithRearm())
	e.Start()

	// outside every zone for longer than the arming window
	assert.Empty(t, e.Evaluate(geo.Offset(itu, 1000, 0)))
	clock.Advance(geo.DefaultExpiry + time.Second)
	assert.False(t, e.Armed("ITU"))

	tr := e.Evaluate(itu)
	require.Len(t, tr, 1)
	assert.Equal(t, Enter, tr[0].Direction)
	assert.True(t, e.State().InsideAny)
	assert.True(t, e.Armed("ITU"))

	// staying inside keeps the zone armed, leaving still exits
	clock.Advance(geo.DefaultExpiry + time.Second)
	assert.Empty(t, e.Evaluate(itu))
	clock.Advance(geo.DefaultExpiry + time.Second)
	tr = e.Evaluate(geo.Offset(itu, 1000, 0))
	require.Len(t, tr, 1)
	assert.Equal(t, Exit, tr[0].Direction)
	assert.False(t, e.State().InsideAny)
}

func TestZeroExpiryNeverLapses(t *testing.T) {
	clock := newClock()
	cat, err := geo.NewCatalog(geo.Zone{Name: "ITU", Center: itu, RadiusMeters: 30})
	require.NoError(t, err)

	e := NewEngine(cat, nil, nil, WithClock(clock.Now))
	e.Start()

	clock.Advance(time.Hour)
	assert.True(t, e.Armed("ITU"))
	assert.Len(t, e.Evaluate(itu), 1)
}

func TestNeverExpire(t *testing.T) {
	clock := newClock()
	cat, err := geo.NewCatalog(geo.Zone{Name: "ITU", Center: itu, RadiusMeters: 30, Expiry: geo.NeverExpire})
	require.NoError(t, err)

	e := NewEngine(cat, nil, nil, WithClock(clock.Now))
	e.Start()

	clock.Advance(24 * time.Hour)
	assert.Len(t, e.Evaluate(itu), 1)
}

func TestDwell(t *testing.T) {
	clock := newClock()
	e := NewEngine(ituCatalog(t), nil, nil, WithClock(clock.Now), WithLoiteringDelay(time.Minute))
	e.Start()

	require.Len(t, e.Evaluate(itu), 1)

	clock.Advance(30 * time.Second)
	assert.Empty(t, e.Evaluate(itu))

	clock.Advance(31 * time.Second)
	tr := e.Evaluate(itu)
	require.Len(t, tr, 1)
	assert.Equal(t, Dwell, tr[0].Direction)
	assert.True(t, e.State().InsideAny)

	// only once per stay
	clock.Advance(time.Minute)
	assert.Empty(t, e.Evaluate(itu))
}

func TestStoppedEngineIgnoresUpdates(t *testing.T) {
	e := NewEngine(ituCatalog(t), nil, nil)
	assert.Empty(t, e.Evaluate(itu))

	e.Start()
	e.Evaluate(itu)
	e.Stop()
	e.Stop()

	assert.False(t, e.Running())
	assert.False(t, e.Armed("ITU"))
	assert.Empty(t, e.Evaluate(geo.Offset(itu, 1000, 0)))
	assert.True(t, e.State().InsideAny)
}

func TestHandleErrorKeepsState(t *testing.T) {
	e := NewEngine(ituCatalog(t), nil, nil)
	e.Start()
	e.Evaluate(itu)

	e.HandleError(errors.New("provider unavailable"))
	assert.True(t, e.State().InsideAny)

	// invalid coordinates are treated as errors
	assert.Empty(t, e.Evaluate(geo.Coordinate{Lat: 200, Lon: 0}))
	assert.True(t, e.State().InsideAny)
}

func TestOnLocation(t *testing.T) {
	e := NewEngine(ituCatalog(t), nil, nil)
	e.Start()

	e.OnLocation(geo.Fix{Coordinate: itu, Real: true})
	assert.True(t, e.State().InsideAny)
	assert.Equal(t, "ITU", e.State().LastTransition.Zone)
}
