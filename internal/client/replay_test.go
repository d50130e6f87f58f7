package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"replay/crumbs/internal/config"
	"replay/crumbs/internal/domain"
	"replay/crumbs/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.ReplayAPIConfig {
	return config.ReplayAPIConfig{
		Organization:         "acme",
		Project:              "web",
		Token:                "secret",
		Timeout:              5,
		HTTPRetries:          0,
		MaxRequestsPerSecond: 1000,
		CircuitBreakerDelay:  60,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) ReplayClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewReplayClient(testConfig(), upstream.NewHostSupplier(context.Background(), srv.URL, nil))
}

func TestGetReplay(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/0/projects/acme/web/replays/abc/", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"abc","started_at":"2023-11-14T22:13:20Z","count_urls":7}}`))
	})

	replay, err := c.GetReplay(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, "abc", replay.ID)
	assert.Equal(t, "web", replay.ProjectSlug)
	assert.Equal(t, int64(1700000000000), replay.StartedAt)
	assert.Equal(t, 7, replay.Count)
}

func TestGetReplay_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetReplay(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrReplayNotFound)
}

func TestGetBreadcrumbs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/0/projects/acme/web/replays/abc/recording-segments/", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("download"))
		w.Write([]byte(recordingFixture))
	})

	crumbs, err := c.GetBreadcrumbs(context.Background(), "abc")
	require.NoError(t, err)
	assert.Len(t, crumbs, 3)
}

func TestFetch_RateLimitOpensCircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetReplay(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker activated")

	_, err = c.GetReplay(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_RateLimitFailsOverToMirror(t *testing.T) {
	limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/0/" {
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer limited.Close()

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"abc"}}`))
	}))
	defer mirror.Close()

	hosts := upstream.NewHostSupplier(context.Background(), limited.URL, []string{mirror.URL})
	require.Equal(t, 2, hosts.Len())

	c := NewReplayClient(testConfig(), hosts)

	replay, err := c.GetReplay(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", replay.ID)
	assert.Zero(t, replay.StartedAt)
}

// pinnedSupplier hands out the same host on every Get, as happens when
// concurrent requests advance the shared round-robin between a request and
// its failover.
type pinnedSupplier struct {
	upstream.HostSupplier
	host string
}

func (p pinnedSupplier) Get() string { return p.host }

func TestFetch_FailoverSkipsLimitedHost(t *testing.T) {
	var limitedCalls atomic.Int32
	limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/0/" {
			return
		}
		limitedCalls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer limited.Close()

	var mirrorCalls atomic.Int32
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/0/" {
			return
		}
		mirrorCalls.Add(1)
		w.Write([]byte(`{"data":{"id":"abc"}}`))
	}))
	defer mirror.Close()

	hosts := upstream.NewHostSupplier(context.Background(), limited.URL, []string{mirror.URL})
	require.Equal(t, 2, hosts.Len())

	c := NewReplayClient(testConfig(), pinnedSupplier{HostSupplier: hosts, host: limited.URL})

	for i := 0; i < 3; i++ {
		replay, err := c.GetReplay(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", replay.ID)
	}
	assert.Equal(t, int32(3), limitedCalls.Load())
	assert.Equal(t, int32(3), mirrorCalls.Load())
}
