package reputation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[int64]CachedVerdict
	ttl     time.Duration
	now     func() time.Time
	getErr  error
}

func newFakeCache(ttl time.Duration, now func() time.Time) *fakeCache {
	return &fakeCache{entries: make(map[int64]CachedVerdict), ttl: ttl, now: now}
}

func (f *fakeCache) Get(_ context.Context, userID int64) (CachedVerdict, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return CachedVerdict{}, false, f.getErr
	}
	v, ok := f.entries[userID]
	if !ok || f.now().Sub(v.CheckedAt) >= f.ttl {
		return CachedVerdict{}, false, nil
	}
	return v, true, nil
}

func (f *fakeCache) Put(_ context.Context, userID int64, v CachedVerdict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[userID] = v
	return nil
}

type countingLookup struct {
	calls   int64
	flagged bool
	err     error
	delay   time.Duration
}

func (c *countingLookup) IsFlagged(_ context.Context, _ int64) (bool, error) {
	atomic.AddInt64(&c.calls, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.flagged, c.err
}

func TestCheckerCachesWithinTTL(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return current }
	defer func() { nowFunc = time.Now }()

	cache := newFakeCache(10*time.Minute, func() time.Time { return current })
	lookup := &countingLookup{flagged: true}
	checker := NewChecker(cache, lookup)

	res, err := checker.Check(context.Background(), 42)
	assert.NoError(t, err)
	assert.True(t, res.Flagged)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 1, lookup.calls)

	// Second check inside the TTL hits the cache.
	current = current.Add(9 * time.Minute)
	res, err = checker.Check(context.Background(), 42)
	assert.NoError(t, err)
	assert.True(t, res.Flagged)
	assert.True(t, res.FromCache)
	assert.EqualValues(t, 1, lookup.calls)

	// Past the TTL the remote is consulted again.
	current = current.Add(2 * time.Minute)
	res, err = checker.Check(context.Background(), 42)
	assert.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 2, lookup.calls)
}

func TestCheckerCachesCleanResults(t *testing.T) {
	current := time.Now()
	cache := newFakeCache(10*time.Minute, func() time.Time { return current })
	lookup := &countingLookup{flagged: false}
	checker := NewChecker(cache, lookup)

	res, err := checker.Check(context.Background(), 7)
	assert.NoError(t, err)
	assert.False(t, res.Flagged)

	res, err = checker.Check(context.Background(), 7)
	assert.NoError(t, err)
	assert.False(t, res.Flagged)
	assert.True(t, res.FromCache)
	assert.EqualValues(t, 1, lookup.calls)
}

func TestCheckerDoesNotCacheFailures(t *testing.T) {
	cache := newFakeCache(10*time.Minute, time.Now)
	lookup := &countingLookup{err: errors.New("cas down")}
	checker := NewChecker(cache, lookup)

	_, err := checker.Check(context.Background(), 9)
	assert.Error(t, err)
	_, err = checker.Check(context.Background(), 9)
	assert.Error(t, err)
	assert.EqualValues(t, 2, lookup.calls)
	assert.Empty(t, cache.entries)
}

func TestCheckerCoalescesConcurrentMisses(t *testing.T) {
	cache := newFakeCache(10*time.Minute, time.Now)
	lookup := &countingLookup{flagged: true, delay: 50 * time.Millisecond}
	checker := NewChecker(cache, lookup)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := checker.Check(context.Background(), 100)
			assert.NoError(t, err)
			assert.True(t, res.Flagged)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, lookup.calls, "concurrent misses for one user collapse into one lookup")
}

func TestCheckerDegradesOnCacheError(t *testing.T) {
	cache := newFakeCache(10*time.Minute, time.Now)
	cache.getErr = errors.New("redis down")
	lookup := &countingLookup{flagged: true}
	checker := NewChecker(cache, lookup)

	res, err := checker.Check(context.Background(), 5)
	assert.NoError(t, err)
	assert.True(t, res.Flagged)
	assert.EqualValues(t, 1, lookup.calls)
}

func TestClientIsFlagged(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		flagged bool
	}{
		{"record found", `{"ok":true,"result":{"offenses":3}}`, true},
		{"no record", `{"ok":false,"description":"Record not found."}`, false},
		{"ok without result", `{"ok":true,"result":null}`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/check", r.URL.Path)
				assert.Equal(t, "42", r.URL.Query().Get("user_id"))
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, 5*time.Second)
			flagged, err := client.IsFlagged(context.Background(), 42)
			assert.NoError(t, err)
			assert.Equal(t, tc.flagged, flagged)
		})
	}
}

func TestClientReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.IsFlagged(context.Background(), 42)
	assert.Error(t, err)
}
