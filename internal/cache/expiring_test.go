package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

var errRefresh = errors.New("refresh failed")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type value struct {
	id      int
	expired bool
}

func isExpired(v *value) bool {
	return v.expired
}

func counting(calls *atomic.Int32, v *value) func(context.Context) (*value, bool, error) {
	return func(context.Context) (*value, bool, error) {
		calls.Add(1)

		return v, true, nil
	}
}

func TestExpiringCache_HitDoesNotRefresh(t *testing.T) {
	t.Parallel()

	c := cache.New[string](isExpired)
	ctx := context.Background()

	var calls atomic.Int32

	first, ok, err := c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: 1}), false)
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: 2}), false)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, int32(1), calls.Load())
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())
}

func TestExpiringCache_ForceRefreshAlwaysRefreshes(t *testing.T) {
	t.Parallel()

	c := cache.New[string](isExpired)
	ctx := context.Background()

	var calls atomic.Int32

	for i := range 3 {
		got, ok, err := c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: i}), true)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, got.id)
	}

	assert.Equal(t, int32(3), calls.Load())
}

func TestExpiringCache_ExpiredValueIsReplaced(t *testing.T) {
	t.Parallel()

	c := cache.New[string](isExpired)
	ctx := context.Background()

	var calls atomic.Int32

	_, _, err := c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: 1, expired: true}), false)
	require.NoError(t, err)

	got, ok, err := c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: 2}), false)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 2, got.id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExpiringCache_MissDropsStaleEntry(t *testing.T) {
	t.Parallel()

	c := cache.New[string](isExpired)
	ctx := context.Background()

	var calls atomic.Int32

	_, _, err := c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: 1, expired: true}), false)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	got, ok, err := c.GetOrRefresh(ctx, "k", func(context.Context) (*value, bool, error) {
		return nil, false, nil
	}, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, 0, c.Len())
}

func TestExpiringCache_RefreshErrorInstallsNothing(t *testing.T) {
	t.Parallel()

	c := cache.New[string](isExpired)
	ctx := context.Background()

	_, ok, err := c.GetOrRefresh(ctx, "k", func(context.Context) (*value, bool, error) {
		return &value{id: 1}, true, errRefresh
	}, false)
	require.ErrorIs(t, err, errRefresh)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	var calls atomic.Int32

	_, _, err = c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: 2}), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExpiringCache_InvalidateAndPeek(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := cache.New[string](isExpired, cache.WithNow(func() time.Time { return now }))
	ctx := context.Background()

	_, ok, storedAt := peek(c, "k")
	assert.False(t, ok)
	assert.True(t, storedAt.IsZero())

	var calls atomic.Int32

	_, _, err := c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: 7}), false)
	require.NoError(t, err)

	got, ok, storedAt := peek(c, "k")
	require.True(t, ok)
	assert.Equal(t, 7, got.id)
	assert.Equal(t, now, storedAt)

	c.Invalidate("k")
	assert.Equal(t, 0, c.Len())

	_, _, err = c.GetOrRefresh(ctx, "k", counting(&calls, &value{id: 8}), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func peek(c *cache.ExpiringCache[string, *value], key string) (*value, bool, time.Time) {
	v, storedAt, ok := c.Peek(key)

	return v, ok, storedAt
}

func TestExpiringCache_ConcurrentCallersRefreshOnce(t *testing.T) {
	t.Parallel()

	c := cache.New[string](isExpired)
	ctx := context.Background()

	var calls atomic.Int32

	refresh := func(context.Context) (*value, bool, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)

		return &value{id: 1}, true, nil
	}

	results := make([]*value, 32)

	var group errgroup.Group

	for i := range results {
		group.Go(func() error {
			got, _, err := c.GetOrRefresh(ctx, "shared", refresh, false)
			results[i] = got

			return err
		})
	}

	require.NoError(t, group.Wait())
	assert.Equal(t, int32(1), calls.Load())

	for _, got := range results {
		assert.Same(t, results[0], got)
	}
}

func TestExpiringCache_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	c := cache.New[string](isExpired)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})

	var group errgroup.Group

	group.Go(func() error {
		_, _, err := c.GetOrRefresh(ctx, "slow", func(context.Context) (*value, bool, error) {
			close(started)
			<-release

			return &value{id: 1}, true, nil
		}, false)

		return err
	})

	<-started

	var calls atomic.Int32

	done := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrRefresh(ctx, "fast", counting(&calls, &value{id: 2}), false)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("refresh of an unrelated key blocked")
	}

	close(release)
	require.NoError(t, group.Wait())
	assert.Equal(t, 2, c.Len())
}
