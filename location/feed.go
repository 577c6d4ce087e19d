package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redhat-partner-ecosystem/scootershare/geo"
)

var ErrNotSubscribed = errors.New("location feed not subscribed")

// Feed is a Provider whose fixes are pushed by the application, e.g. from an
// HTTP endpoint. It always grants permission.
type Feed struct {
	mu      sync.Mutex
	onFix   func(geo.Fix)
	onError func(error)
}

func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) CheckPermission(ctx context.Context) error {
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, interval time.Duration, onFix func(geo.Fix), onError func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.onFix = onFix
	f.onError = onError
	return nil
}

func (f *Feed) Unsubscribe() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.onFix = nil
	f.onError = nil
	return nil
}

// Push delivers a fix to the subscriber
func (f *Feed) Push(c geo.Coordinate) error {
	f.mu.Lock()
	onFix := f.onFix
	f.mu.Unlock()

	if onFix == nil {
		return ErrNotSubscribed
	}
	onFix(geo.Fix{Coordinate: c, Real: true, Timestamp: time.Now()})
	return nil
}

// Fail delivers a provider error to the subscriber
func (f *Feed) Fail(err error) error {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()

	if onError == nil {
		return ErrNotSubscribed
	}
	onError(err)
	return nil
}

// Denied is a Provider without permission, used when no location source is configured
type Denied struct{}

func (Denied) CheckPermission(ctx context.Context) error {
	return ErrPermissionDenied
}

func (Denied) Subscribe(ctx context.Context, interval time.Duration, onFix func(geo.Fix), onError func(error)) error {
	return ErrPermissionDenied
}

func (Denied) Unsubscribe() error {
	return nil
}
