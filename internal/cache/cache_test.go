package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auction-client/internal/domain"
	"auction-client/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() *Cache {
	c := New(RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, logger.NewNop())
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func countingFetcher(value interface{}) (Fetcher, *int32) {
	var calls int32
	return func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return value, nil
	}, &calls
}

func TestFirstReadBlocksThenPopulates(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("A1")
	fetcher, calls := countingFetcher("server value")

	res := c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Minute})
	require.NoError(t, res.Err)
	assert.Equal(t, "server value", res.Value)

	// A second read before staleness elapses serves the cache, no new call.
	res = c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Minute})
	assert.Equal(t, "server value", res.Value)
	assert.False(t, res.Loading)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestConcurrentFirstReadsShareOneFetch(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("A1")

	release := make(chan struct{})
	var calls int32
	fetcher := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Minute})
		}(i)
	}

	// Give the goroutines time to pile onto the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, 42, res.Value)
	}
}

func TestStaleWhileRevalidate(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("A1")

	var serve atomic.Value
	serve.Store("v1")
	fetcher := func(ctx context.Context) (interface{}, error) {
		return serve.Load(), nil
	}

	res := c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Millisecond})
	assert.Equal(t, "v1", res.Value)

	serve.Store("v2")
	time.Sleep(5 * time.Millisecond)

	// Stale read still serves the last known value immediately.
	res = c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Millisecond})
	assert.Equal(t, "v1", res.Value)

	require.Eventually(t, func() bool {
		v, ok := c.Peek(key)
		return ok && v == "v2"
	}, time.Second, time.Millisecond)
}

func TestRetriesTransientFailures(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("A1")

	var calls int32
	fetcher := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, &domain.APIError{Status: 503, Message: "try later"}
		}
		return "ok", nil
	}

	res := c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Minute})
	require.NoError(t, res.Err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("missing")

	var calls int32
	fetcher := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &domain.APIError{Status: 404, Message: "no such auction"}
	}

	res := c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Minute})
	require.Error(t, res.Err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReadFailureKeepsLastGoodValue(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("A1")

	fail := atomic.Bool{}
	fetcher := func(ctx context.Context) (interface{}, error) {
		if fail.Load() {
			return nil, &domain.APIError{Status: 500, Message: "down"}
		}
		return "good", nil
	}

	res := c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Millisecond})
	assert.Equal(t, "good", res.Value)

	fail.Store(true)
	time.Sleep(5 * time.Millisecond)
	res = c.Get(context.Background(), key, fetcher, Options{StaleAfter: time.Millisecond})
	assert.Equal(t, "good", res.Value, "failed revalidation must not evict the value")
}

func TestInvalidateIsIdempotentPerInflightFetch(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("A1")
	c.Set(key, "cached")
	c.Subscribe(key)
	defer c.Unsubscribe(key)

	release := make(chan struct{})
	var calls int32
	c.Register(key, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "fresh", nil
	}, Options{StaleAfter: time.Minute})

	c.Invalidate(key)
	c.Invalidate(key)
	close(release)

	require.Eventually(t, func() bool {
		v, ok := c.Peek(key)
		return ok && v == "fresh"
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "two invalidations must share one refetch")
}

func TestInvalidateWithoutReadersDefersRefetch(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("A1")
	c.Set(key, "cached")

	var calls int32
	c.Register(key, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "fresh", nil
	}, Options{StaleAfter: time.Minute})

	c.Invalidate(key)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no reader, no eager refetch")

	// The next read finds the entry stale and refetches.
	res := c.Get(context.Background(), key, nil, Options{})
	assert.Equal(t, "cached", res.Value)
	require.Eventually(t, func() bool {
		v, _ := c.Peek(key)
		return v == "fresh"
	}, time.Second, time.Millisecond)
}

func TestResultDiscardedAfterInvalidationWithNoReaders(t *testing.T) {
	c := newTestCache()
	key := KeyAuction("A1")
	c.Set(key, "authoritative")

	release := make(chan struct{})
	c.Register(key, func(ctx context.Context) (interface{}, error) {
		<-release
		return "from abandoned poll", nil
	}, Options{StaleAfter: time.Minute})

	c.Refresh(key)
	c.Invalidate(key) // a more authoritative source superseded the fetch
	close(release)

	time.Sleep(20 * time.Millisecond)
	v, ok := c.Peek(key)
	require.True(t, ok)
	assert.Equal(t, "authoritative", v)
}

func TestPurgeAll(t *testing.T) {
	c := newTestCache()
	c.Set(KeyUser(), "me")
	c.Set(KeyAuction("A1"), "a1")

	c.PurgeAll()

	_, ok := c.Peek(KeyUser())
	assert.False(t, ok)
	_, ok = c.Peek(KeyAuction("A1"))
	assert.False(t, ok)
}

func TestKeysWithPrefix(t *testing.T) {
	c := newTestCache()
	c.Set(KeyAuctions("open", 1, 20), "page1")
	c.Set(KeyAuctions("open", 2, 20), "page2")
	c.Set(KeyAuction("A1"), "a1")

	keys := c.KeysWithPrefix(KeyAuctionsPrefix())
	assert.Len(t, keys, 2)
	for _, k := range keys {
		assert.True(t, k.HasPrefix(KeyAuctionsPrefix()))
	}
}
