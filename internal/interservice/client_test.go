package interservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "finditnow-auth/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAuth is a stand-in for the auth service's token endpoint.
type fakeAuth struct {
	secret    string
	hits      atomic.Int64
	expiresIn int
	delay     time.Duration
}

func (f *fakeAuth) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}

		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("order-service:"+f.secret))
		if r.Header.Get("Authorization") != expected {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		expiresIn := f.expiresIn
		if expiresIn == 0 {
			expiresIn = 60
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"accessToken": fmt.Sprintf("token-%d", f.hits.Load()),
			"expiresIn":   expiresIn,
		})
	}
}

func newTestClient(t *testing.T, authURL, downstreamURL string, cache ResponseCache) *Client {
	t.Helper()
	return New(
		"order-service",
		"order-secret",
		authURL,
		func(string) string { return downstreamURL },
		cache,
		zap.NewNop(),
	)
}

func TestCallReusesCachedToken(t *testing.T) {
	auth := &fakeAuth{secret: "order-secret"}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	var seenTokens []string
	var mu sync.Mutex
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seenTokens = append(seenTokens, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer downstream.Close()

	client := newTestClient(t, authSrv.URL, downstream.URL, nil)

	for i := 0; i < 3; i++ {
		resp, err := client.Call(context.Background(), "delivery-service", "/orders", http.MethodGet, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	assert.Equal(t, int64(1), auth.hits.Load(), "token must be fetched once and reused")
	for _, tok := range seenTokens {
		assert.Equal(t, "Bearer token-1", tok)
	}
}

func TestConcurrentCallsShareTokenFetch(t *testing.T) {
	auth := &fakeAuth{secret: "order-secret", delay: 100 * time.Millisecond}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer downstream.Close()

	client := newTestClient(t, authSrv.URL, downstream.URL, nil)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Call(context.Background(), "delivery-service", "/orders", http.MethodGet, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), auth.hits.Load(), "concurrent callers for one audience share a single fetch")
}

func TestCallRetriesOnceOnRejection(t *testing.T) {
	auth := &fakeAuth{secret: "order-secret"}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	var downstreamHits atomic.Int64
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if downstreamHits.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer downstream.Close()

	client := newTestClient(t, authSrv.URL, downstream.URL, nil)

	resp, err := client.Call(context.Background(), "delivery-service", "/orders", http.MethodGet, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, int64(2), downstreamHits.Load(), "rejected call retried exactly once")
	assert.Equal(t, int64(2), auth.hits.Load(), "rejection must evict and refetch the token")
}

func TestCallSecondRejectionSurfaces(t *testing.T) {
	auth := &fakeAuth{secret: "order-secret"}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	var downstreamHits atomic.Int64
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downstreamHits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer downstream.Close()

	client := newTestClient(t, authSrv.URL, downstream.URL, nil)

	resp, err := client.Call(context.Background(), "delivery-service", "/orders", http.MethodGet, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "second rejection returned, not retried")
	assert.Equal(t, int64(2), downstreamHits.Load())
}

func TestCallBadCredentials(t *testing.T) {
	auth := &fakeAuth{secret: "different-secret"}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	client := newTestClient(t, authSrv.URL, "http://unused", nil)

	_, err := client.Call(context.Background(), "delivery-service", "/orders", http.MethodGet, nil)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestTokenEndpointFailureIsInternal(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"database unavailable"}`))
	}))
	defer authSrv.Close()

	client := newTestClient(t, authSrv.URL, "http://unused", nil)

	_, err := client.Call(context.Background(), "delivery-service", "/orders", http.MethodGet, nil)
	assert.ErrorIs(t, err, xerrors.ErrInternal, "a failing token endpoint is an infrastructure error")
	assert.NotErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestExpiringTokenIsNotReused(t *testing.T) {
	auth := &fakeAuth{secret: "order-secret", expiresIn: 10} // inside the 15s margin
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer downstream.Close()

	client := newTestClient(t, authSrv.URL, downstream.URL, nil)

	for i := 0; i < 2; i++ {
		_, err := client.Call(context.Background(), "delivery-service", "/orders", http.MethodGet, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(2), auth.hits.Load(), "token within the safety margin must be refetched")
}

// memoryCache is an in-process ResponseCache.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) GetAPICache(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return data, nil
}

func (m *memoryCache) PutAPICache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func TestCallCachedServesFromCache(t *testing.T) {
	auth := &fakeAuth{secret: "order-secret"}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	var downstreamHits atomic.Int64
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downstreamHits.Add(1)
		w.Write([]byte(`{"items":[1,2,3]}`))
	}))
	defer downstream.Close()

	client := newTestClient(t, authSrv.URL, downstream.URL, newMemoryCache())

	first, err := client.CallCached(context.Background(), "shop-service", "/catalog", nil, time.Minute)
	require.NoError(t, err)
	second, err := client.CallCached(context.Background(), "shop-service", "/catalog", nil, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int64(1), downstreamHits.Load(), "second GET must be served from cache")
}

func TestCallCachedSkipsCacheOnError(t *testing.T) {
	auth := &fakeAuth{secret: "order-secret"}
	authSrv := httptest.NewServer(auth.handler())
	defer authSrv.Close()

	var downstreamHits atomic.Int64
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downstreamHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer downstream.Close()

	client := newTestClient(t, authSrv.URL, downstream.URL, newMemoryCache())

	for i := 0; i < 2; i++ {
		resp, err := client.CallCached(context.Background(), "shop-service", "/catalog", nil, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	}

	assert.Equal(t, int64(2), downstreamHits.Load(), "non-2xx responses must not be cached")
}
