package requestcache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alfreddev/cachify/cache"
	"github.com/alfreddev/cachify/clock"
	"github.com/alfreddev/cachify/config"
	"github.com/alfreddev/cachify/store"
	"github.com/rs/zerolog"
)

func testPolicy() config.RequestCacheConfig {
	return config.RequestCacheConfig{
		Mode:                        "Exact",
		DefaultDuration:             time.Minute,
		CacheableMethods:            []string{"GET", "POST"},
		CacheableStatusCodes:        []int{200},
		AllowedRequestContentTypes:  []string{"application/json"},
		AllowedResponseContentTypes: []string{"application/json"},
		IncludeBody:                 true,
		MaxRequestBodySizeBytes:     64 * 1024,
		MaxResponseBodySizeBytes:    1024 * 1024,
		RespectRequestCacheControl:  true,
		RespectResponseCacheControl: true,
		EnableResponseBuffering:     true,
		ResponseHeaders: config.ResponseHeaderConfig{
			Enabled:           true,
			CacheStatusHeader: "X-Cachify-Cache",
			CacheStaleHeader:  "X-Cachify-Cache-Stale",
			SimilarityHeader:  "X-Cachify-Cache-Similarity",
			CacheKeyHeader:    "X-Cachify-Cache-Key",
		},
	}
}

func newTestMiddleware(t *testing.T, policy config.RequestCacheConfig) (*Middleware, *clock.Manual) {
	t.Helper()
	mc := clock.NewManual(time.Unix(0, 0))
	l1 := store.NewMemoryStore(0, mc)
	l2 := store.NewMemoryStore(0, mc)
	facadeOpts := cache.DefaultFacadeOptions()
	facadeOpts.Resilience.FailSafeMaxDuration = time.Minute
	facade := cache.New(l1, l2, facadeOpts, zerolog.Nop(), cache.WithClock(mc))
	return New(facade, policy, config.SimilarityConfig{}, nil, zerolog.Nop(), nil, mc), mc
}

func TestMiddlewareCachesSecondIdenticalRequest(t *testing.T) {
	m, _ := newTestMiddleware(t, testPolicy())

	calls := 0
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	handler := m.Handler(downstream)

	req1 := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	rw1 := httptest.NewRecorder()
	handler.ServeHTTP(rw1, req1)

	if rw1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw1.Code)
	}
	if rw1.Header().Get("X-Cachify-Cache") != "MISS" {
		t.Fatalf("expected MISS on first request, got %q", rw1.Header().Get("X-Cachify-Cache"))
	}

	req2 := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	rw2 := httptest.NewRecorder()
	handler.ServeHTTP(rw2, req2)

	if rw2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw2.Code)
	}
	if rw2.Header().Get("X-Cachify-Cache") != "HIT" {
		t.Fatalf("expected HIT on second request, got %q", rw2.Header().Get("X-Cachify-Cache"))
	}
	if rw2.Body.String() != rw1.Body.String() {
		t.Fatalf("expected identical body on cache hit, got %q vs %q", rw2.Body.String(), rw1.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected downstream invoked once, got %d", calls)
	}
}

func TestMiddlewareSkipsIneligibleMethod(t *testing.T) {
	m, _ := newTestMiddleware(t, testPolicy())

	calls := 0
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	handler := m.Handler(downstream)

	req := httptest.NewRequest(http.MethodDelete, "/items/1", nil)
	rw := httptest.NewRecorder()
	handler.ServeHTTP(rw, req)

	if calls != 1 {
		t.Fatalf("expected downstream invoked for ineligible method, got %d", calls)
	}
	if rw.Header().Get("X-Cachify-Cache") != "" {
		t.Fatalf("expected no cache header for ineligible request, got %q", rw.Header().Get("X-Cachify-Cache"))
	}
}

func TestMiddlewareRespectsRequestCacheControlNoStore(t *testing.T) {
	m, _ := newTestMiddleware(t, testPolicy())

	calls := 0
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	handler := m.Handler(downstream)

	req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set("Cache-Control", "no-store")
	rw := httptest.NewRecorder()
	handler.ServeHTTP(rw, req)

	if calls != 1 {
		t.Fatalf("expected downstream invoked once for no-store request, got %d", calls)
	}

	// A second identical request (still no-store) must not have been cached.
	rw2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req2.Header.Set("Cache-Control", "no-store")
	handler.ServeHTTP(rw2, req2)
	if calls != 2 {
		t.Fatalf("expected downstream invoked again, got %d calls", calls)
	}
}

func TestMiddlewareDistinguishesQueryParameters(t *testing.T) {
	m, _ := newTestMiddleware(t, testPolicy())

	calls := 0
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"q":"` + r.URL.Query().Get("q") + `"}`))
	})
	handler := m.Handler(downstream)

	req1 := httptest.NewRequest(http.MethodGet, "/search?q=a", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req1)
	req2 := httptest.NewRequest(http.MethodGet, "/search?q=b", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req2)

	if calls != 2 {
		t.Fatalf("expected distinct query strings to produce distinct cache keys, got %d calls", calls)
	}
}

func TestMiddlewareStaleAfterDurationElapses(t *testing.T) {
	policy := testPolicy()
	policy.DefaultDuration = 10 * time.Second
	m, mc := newTestMiddleware(t, policy)

	calls := 0
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	handler := m.Handler(downstream)

	req1 := httptest.NewRequest(http.MethodGet, "/x", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	mc.Advance(20 * time.Second)

	req2 := httptest.NewRequest(http.MethodGet, "/x", nil)
	rw2 := httptest.NewRecorder()
	handler.ServeHTTP(rw2, req2)

	if rw2.Header().Get("X-Cachify-Cache-Stale") != "true" {
		t.Fatalf("expected stale entry to be served after duration elapses, got header %q", rw2.Header().Get("X-Cachify-Cache-Stale"))
	}
}
