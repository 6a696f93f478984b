package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharded_BasicOperations(t *testing.T) {
	c := NewSharded[uint64, []byte](1024*1024, byteCost, nil)

	c.Set(4096, []byte("test data"))
	got, ok := c.Get(4096)
	require.True(t, ok)
	assert.Equal(t, "test data", string(got))

	_, ok = c.Get(999)
	assert.False(t, ok)

	c.Remove(4096)
	_, ok = c.Get(4096)
	assert.False(t, ok)
}

func TestSharded_DisabledWhenZeroCapacity(t *testing.T) {
	c := NewSharded[uint64, []byte](0, byteCost, nil)
	assert.Nil(t, c)

	c.Set(1, []byte("x"))
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.False(t, c.Update(1, func(b []byte) []byte { return b }))
	c.Invalidate(func(uint64) bool { return true })
	c.Purge()

	hits, misses := c.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Size())
}

func TestSharded_Distribution(t *testing.T) {
	c := NewSharded[uint64, []byte](64*1024*1024, byteCost, nil)

	data := make([]byte, 1024)
	for i := range 1000 {
		c.Set(uint64(i*4096), data)
	}

	nonEmpty := 0
	for _, s := range c.shards {
		if s.Len() > 0 {
			nonEmpty++
		}
	}
	assert.Greater(t, nonEmpty, 30)
	assert.Equal(t, 1000, c.Len())
	assert.Equal(t, int64(1000*1024), c.Size())
}

func TestSharded_Concurrent(t *testing.T) {
	c := NewSharded[int, int](1<<20, nil, nil)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 1000 {
				k := g*1000 + i
				c.Set(k, k)
				v, ok := c.Get(k)
				if assert.True(t, ok) {
					assert.Equal(t, k, v)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 8000, c.Len())
}

func TestSharded_Invalidate(t *testing.T) {
	c := NewSharded[int, int](1<<20, nil, nil)
	for i := range 100 {
		c.Set(i, i)
	}

	c.Invalidate(func(k int) bool { return k < 50 })
	assert.Equal(t, 50, c.Len())

	_, ok := c.Get(10)
	assert.False(t, ok)
	_, ok = c.Get(60)
	assert.True(t, ok)
}
