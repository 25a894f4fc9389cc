package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharded_Basic(t *testing.T) {
	s := NewSharded[int]()

	_, ok := s.Get("a")
	assert.False(t, ok)

	s.Put("a", 1)
	s.Put("b", 2)
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, s.Len())

	old, ok := s.Delete("a")
	require.True(t, ok)
	assert.Equal(t, 1, old)
	_, ok = s.Delete("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestSharded_DeleteIf(t *testing.T) {
	s := NewSharded[int]()
	s.Put("a", 1)

	_, ok := s.DeleteIf("a", func(v int) bool { return v > 1 })
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	v, ok := s.DeleteIf("a", func(v int) bool { return v == 1 })
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 0, s.Len())

	_, ok = s.DeleteIf("missing", func(int) bool { return true })
	assert.False(t, ok)
}

func TestSharded_RangeAllowsMutation(t *testing.T) {
	s := NewSharded[int]()
	for i := 0; i < 100; i++ {
		s.Put(fmt.Sprintf("k%d", i), i)
	}

	seen := 0
	s.Range(func(key string, v int) bool {
		seen++
		if v%2 == 0 {
			s.Delete(key)
		}
		return true
	})
	assert.Equal(t, 100, seen)
	assert.Equal(t, 50, s.Len())

	stopped := 0
	s.Range(func(string, int) bool {
		stopped++
		return false
	})
	assert.Equal(t, 1, stopped)
}

func TestSharded_Concurrent(t *testing.T) {
	s := NewSharded[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				s.Put(key, i)
				s.Get(key)
				s.Range(func(string, int) bool { return true })
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 1600, s.Len())
}
