// Package coord holds the process-wide shared state as whole-value snapshots.
//
// Each value has a single writer; readers always see a complete value, never a
// partially updated one.
package coord

import (
	"sync/atomic"
)

// Value is an atomically swapped snapshot of T
type Value[T any] struct {
	p atomic.Pointer[T]
}

// NewValue returns a Value holding v
func NewValue[T any](v T) *Value[T] {
	val := &Value[T]{}
	val.Store(v)
	return val
}

// Load returns the current snapshot, or the zero value when nothing was stored yet
func (v *Value[T]) Load() T {
	if p := v.p.Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Store replaces the snapshot
func (v *Value[T]) Store(val T) {
	v.p.Store(&val)
}

// Swap replaces the snapshot and returns the previous one
func (v *Value[T]) Swap(val T) T {
	if p := v.p.Swap(&val); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Update applies fn to the current snapshot until the swap succeeds
func (v *Value[T]) Update(fn func(T) T) T {
	for {
		old := v.p.Load()
		var cur T
		if old != nil {
			cur = *old
		}
		next := fn(cur)
		if v.p.CompareAndSwap(old, &next) {
			return next
		}
	}
}
