package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campkit/enrollment"
)

type countingChecker struct {
	calls int
	err   error
	avail enrollment.Availability
}

func (c *countingChecker) CheckAvailability(context.Context, string) (enrollment.Availability, error) {
	c.calls++
	return c.avail, c.err
}

func TestCacheServesRepeatedLookups(t *testing.T) {
	inner := &countingChecker{avail: enrollment.Availability{Available: true, Remaining: 4}}
	c := NewCache(inner, Config{Size: 8, TTL: time.Minute})

	for i := 0; i < 3; i++ {
		a, err := c.CheckAvailability(context.Background(), "trip-1")
		require.NoError(t, err)
		assert.Equal(t, 4, a.Remaining)
	}
	assert.Equal(t, 1, inner.calls)

	c.Invalidate("trip-1")
	_, _ = c.CheckAvailability(context.Background(), "trip-1")
	assert.Equal(t, 2, inner.calls)
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	inner := &countingChecker{err: errors.New("backend down")}
	c := NewCache(inner, Config{})

	_, err := c.CheckAvailability(context.Background(), "trip-1")
	assert.Error(t, err)
	_, err = c.CheckAvailability(context.Background(), "trip-1")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, c.Len())
}

func TestCacheEntriesExpire(t *testing.T) {
	inner := &countingChecker{avail: enrollment.Availability{Available: true, Remaining: 1}}
	c := NewCache(inner, Config{Size: 8, TTL: 20 * time.Millisecond})

	_, _ = c.CheckAvailability(context.Background(), "trip-1")
	time.Sleep(60 * time.Millisecond)
	_, _ = c.CheckAvailability(context.Background(), "trip-1")
	assert.Equal(t, 2, inner.calls)
}
