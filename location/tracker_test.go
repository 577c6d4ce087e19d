package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redhat-partner-ecosystem/scootershare/coord"
	"github.com/redhat-partner-ecosystem/scootershare/geo"
)

var itu = geo.Coordinate{Lat: 55.659359, Lon: 12.591005}

type fakeProvider struct {
	permissionErr error
	subscribeErr  error

	mu           sync.Mutex
	interval     time.Duration
	onFix        func(geo.Fix)
	onError      func(error)
	subscribes   int
	unsubscribes int
}

func (p *fakeProvider) CheckPermission(ctx context.Context) error {
	return p.permissionErr
}

func (p *fakeProvider) Subscribe(ctx context.Context, interval time.Duration, onFix func(geo.Fix), onError func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribes++
	p.interval = interval
	if p.subscribeErr != nil {
		return p.subscribeErr
	}
	p.onFix = onFix
	p.onError = onError
	return nil
}

func (p *fakeProvider) Unsubscribe() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsubscribes++
	return nil
}

func (p *fakeProvider) emit(c geo.Coordinate) {
	p.mu.Lock()
	fn := p.onFix
	p.mu.Unlock()
	fn(geo.Fix{Coordinate: c, Timestamp: time.Now()})
}

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	fn(err)
}

type fakeSink struct {
	mu     sync.Mutex
	fixes  []geo.Fix
	errors []error
}

func (s *fakeSink) OnLocation(fix geo.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixes = append(s.fixes, fix)
}

func (s *fakeSink) HandleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func TestTrackerFallbackBeforeStart(t *testing.T) {
	tr := NewTracker(&fakeProvider{}, nil, nil, 0)

	c, isReal := tr.Current()
	assert.Equal(t, Fallback, c)
	assert.False(t, isReal)
	assert.Equal(t, DefaultInterval, tr.Interval())
}

func TestTrackerIntervalFloor(t *testing.T) {
	p := &fakeProvider{}
	tr := NewTracker(p, nil, nil, 10*time.Millisecond)
	assert.Equal(t, MinInterval, tr.Interval())

	require.NoError(t, tr.Start(context.TODO()))
	assert.Equal(t, MinInterval, p.interval)
}

func TestTrackerLastWriteWins(t *testing.T) {
	p := &fakeProvider{}
	sink := &fakeSink{}
	shared := coord.New()

	tr := NewTracker(p, sink, shared.Location, time.Second)
	require.NoError(t, tr.Start(context.TODO()))

	p.emit(geo.Offset(itu, 100, 0))
	p.emit(itu)

	c, isReal := tr.Current()
	assert.Equal(t, itu, c)
	assert.True(t, isReal)
	assert.Equal(t, itu, shared.Location.Load().Coordinate)
	assert.Len(t, sink.fixes, 2)
}

func TestTrackerErrorsGoToSink(t *testing.T) {
	p := &fakeProvider{}
	sink := &fakeSink{}

	tr := NewTracker(p, sink, nil, time.Second)
	require.NoError(t, tr.Start(context.TODO()))
	p.emit(itu)

	p.fail(errors.New("gps lost"))
	p.emit(geo.Coordinate{Lat: 100, Lon: 0})

	assert.Len(t, sink.errors, 2)
	c, _ := tr.Current()
	assert.Equal(t, itu, c)
}

func TestTrackerPermissionDenied(t *testing.T) {
	p := &fakeProvider{permissionErr: ErrPermissionDenied}
	sink := &fakeSink{}

	tr := NewTracker(p, sink, nil, time.Second)
	err := tr.Start(context.TODO())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 0, p.subscribes)

	c, isReal := tr.Current()
	assert.Equal(t, Fallback, c)
	assert.False(t, isReal)
	require.Len(t, sink.fixes, 1)
	assert.False(t, sink.fixes[0].Real)

	tr.Stop()
	assert.Equal(t, 1, p.unsubscribes)
}

func TestTrackerRetryWhenUnavailable(t *testing.T) {
	p := &fakeProvider{permissionErr: fmt.Errorf("%w: broker down", ErrUnavailable)}
	sink := &fakeSink{}

	tr := NewTracker(p, sink, nil, time.Second)
	err := tr.Start(context.TODO())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 0, p.subscribes)
	_, isReal := tr.Current()
	assert.False(t, isReal)

	// the broker came back
	p.permissionErr = nil
	require.NoError(t, tr.Start(context.TODO()))
	assert.Equal(t, 1, p.subscribes)

	p.emit(itu)
	c, isReal := tr.Current()
	assert.Equal(t, itu, c)
	assert.True(t, isReal)

	tr.Stop()
	assert.Equal(t, 1, p.unsubscribes)
}

func TestTrackerStopAfterFailedSubscribe(t *testing.T) {
	p := &fakeProvider{subscribeErr: errors.New("broker down")}

	tr := NewTracker(p, nil, nil, time.Second)
	assert.Error(t, tr.Start(context.TODO()))

	tr.Stop()
	assert.Equal(t, 1, p.unsubscribes)
}

func TestTrackerStopIdempotent(t *testing.T) {
	p := &fakeProvider{}
	sink := &fakeSink{}

	tr := NewTracker(p, sink, nil, time.Second)
	tr.Stop()
	assert.Equal(t, 0, p.unsubscribes)

	require.NoError(t, tr.Start(context.TODO()))
	require.NoError(t, tr.Start(context.TODO()))
	assert.Equal(t, 1, p.subscribes)

	tr.Stop()
	tr.Stop()
	assert.Equal(t, 1, p.unsubscribes)

	// late callbacks are ignored
	p.emit(itu)
	assert.Empty(t, sink.fixes)
}

func TestFeed(t *testing.T) {
	f := NewFeed()
	assert.ErrorIs(t, f.Push(itu), ErrNotSubscribed)

	sink := &fakeSink{}
	tr := NewTracker(f, sink, nil, time.Second)
	require.NoError(t, tr.Start(context.TODO()))

	require.NoError(t, f.Push(itu))
	require.NoError(t, f.Fail(errors.New("boom")))
	c, isReal := tr.Current()
	assert.Equal(t, itu, c)
	assert.True(t, isReal)
	assert.Len(t, sink.errors, 1)

	tr.Stop()
	assert.ErrorIs(t, f.Push(itu), ErrNotSubscribed)
}

func TestDenied(t *testing.T) {
	tr := NewTracker(Denied{}, nil, nil, time.Second)
	assert.ErrorIs(t, tr.Start(context.TODO()), ErrPermissionDenied)
	tr.Stop()
}
