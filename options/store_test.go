package options

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetKnownOption(t *testing.T) {
	s := NewStore(Defaults())

	require.NoError(t, s.Set(PositionLimit, 200))

	v, ok := s.Get(PositionLimit)
	require.True(t, ok)
	assert.Equal(t, 200.0, v)
}

func TestSetUnknownOptionIsRejected(t *testing.T) {
	s := NewStore(Defaults())
	before := s.Snapshot()

	err := s.Set("bogus", 1)
	require.ErrorIs(t, err, ErrInvalidOption)

	_, ok := s.Get("bogus")
	assert.False(t, ok)
	assert.Equal(t, before, s.Snapshot())
}

func TestDefaults(t *testing.T) {
	s := NewStore(Defaults())

	limit, ok := s.Get(PositionLimit)
	require.True(t, ok)
	assert.Equal(t, 100.0, limit)

	qty, ok := s.Get(OrderQuantity)
	require.True(t, ok)
	assert.Equal(t, 50.0, qty)

	assert.Equal(t, []Name{OrderQuantity, PositionLimit}, s.Names())
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(Defaults())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.Set(OrderQuantity, float64(i*1000+j))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = s.Get(OrderQuantity)
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	_, ok := s.Get(OrderQuantity)
	assert.True(t, ok)
	assert.Len(t, s.Snapshot(), 2, fmt.Sprintf("unexpected names: %v", s.Snapshot()))
}
