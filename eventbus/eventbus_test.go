package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func collect(t *testing.T, ch <-chan int, n int) []int {
	t.Helper()

	out := make([]int, 0, n)
	timeout := time.After(waitFor)
	for len(out) < n {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-timeout:
			t.Fatalf("received %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	a := make(chan int, 100)
	b := make(chan int, 100)
	bus.Subscribe(nil, func(v int) { a <- v })
	bus.Subscribe(nil, func(v int) { b <- v })

	for i := 0; i < 100; i++ {
		assert.Equal(t, 2, bus.Publish(i))
	}

	expected := make([]int, 100)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, collect(t, a, 100))
	assert.Equal(t, expected, collect(t, b, 100))
}

func TestPublishDoesNotBlock(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	release := make(chan struct{})
	got := make(chan int, 10)
	bus.Subscribe(nil, func(v int) {
		<-release
		got <- v
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("publish blocked on a slow handler")
	}

	close(release)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, collect(t, got, 10))
}

func TestFilter(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	even := make(chan int, 10)
	bus.Subscribe(func(v int) bool { return v%2 == 0 }, func(v int) { even <- v })

	for i := 0; i < 6; i++ {
		bus.Publish(i)
	}
	assert.Equal(t, []int{0, 2, 4}, collect(t, even, 3))
}

func TestNoReplay(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	assert.Equal(t, 0, bus.Publish(1))

	got := make(chan int, 10)
	bus.Subscribe(nil, func(v int) { got <- v })
	bus.Publish(2)

	assert.Equal(t, []int{2}, collect(t, got, 1))
	select {
	case v := <-got:
		t.Fatalf("unexpected event %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeFromHandler(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	var mu sync.Mutex
	var seen []int

	var sub *Subscription[int]
	ready := make(chan struct{})
	sub = bus.Subscribe(nil, func(v int) {
		<-ready
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
		sub.Unsubscribe()
		sub.Unsubscribe() // idempotent
	})
	close(ready)

	bus.Publish(1)
	bus.Publish(2)

	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription did not stop")
	}
	assert.False(t, sub.Active())
	assert.Equal(t, 0, bus.Len())
	assert.Equal(t, 0, bus.Publish(3))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1}, seen)
}

func TestSubscribeFromHandler(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	inner := make(chan int, 10)
	subscribed := make(chan struct{})
	var once sync.Once

	bus.Subscribe(nil, func(v int) {
		once.Do(func() {
			bus.Subscribe(nil, func(v int) { inner <- v })
			close(subscribed)
		})
	})

	bus.Publish(1)
	<-subscribed
	bus.Publish(2)

	assert.Equal(t, []int{2}, collect(t, inner, 1))
}

func TestFilterMaySubscribe(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	got := make(chan int, 10)
	var late *Subscription[int]
	var sub *Subscription[int]
	sub = bus.Subscribe(func(v int) bool {
		if v == 1 {
			late = bus.Subscribe(nil, func(v int) { got <- v * 10 })
			sub.Unsubscribe()
			return false
		}
		return true
	}, func(v int) { got <- v })

	published := make(chan int)
	go func() { published <- bus.Publish(1) }()

	select {
	case n := <-published:
		assert.Equal(t, 0, n)
	case <-time.After(waitFor):
		t.Fatal("publish blocked in filter")
	}

	require.NotNil(t, late)
	assert.False(t, sub.Active())
	assert.Equal(t, 1, bus.Publish(2))
	assert.Equal(t, []int{20}, collect(t, got, 1))
}

func TestClose(t *testing.T) {
	bus := New[int]()

	sub := bus.Subscribe(nil, func(int) {})
	require.True(t, sub.Active())

	bus.Close()
	bus.Close()

	assert.False(t, sub.Active())
	assert.Equal(t, 0, bus.Publish(1))

	late := bus.Subscribe(nil, func(int) {})
	assert.False(t, late.Active())
	late.Unsubscribe()
}
