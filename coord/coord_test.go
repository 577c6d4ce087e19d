package coord

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pair struct {
	A, B int
}

func TestValueZero(t *testing.T) {
	var v Value[pair]
	assert.Equal(t, pair{}, v.Load())

	assert.Equal(t, pair{}, v.Swap(pair{1, 1}))
	assert.Equal(t, pair{1, 1}, v.Load())
}

func TestValueStoreLoad(t *testing.T) {
	v := NewValue(pair{1, 2})
	assert.Equal(t, pair{1, 2}, v.Load())

	v.Store(pair{3, 4})
	assert.Equal(t, pair{3, 4}, v.Load())
}

func TestValueWholeSnapshots(t *testing.T) {
	v := NewValue(pair{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			v.Store(pair{i, i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p := v.Load()
			assert.Equal(t, p.A, p.B)
		}
	}()
	wg.Wait()
}

func TestValueUpdate(t *testing.T) {
	v := NewValue(0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v.Update(func(n int) int { return n + 1 })
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, v.Load())
}
