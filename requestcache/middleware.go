package requestcache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfreddev/cachify/cache"
	"github.com/alfreddev/cachify/clock"
	"github.com/alfreddev/cachify/config"
	"github.com/alfreddev/cachify/observability"
	"github.com/alfreddev/cachify/similarity"
	"github.com/rs/zerolog"
)

type idempotenceKey struct{}

// Middleware is the HTTP request-cache workflow: it
// wraps a handler, and for eligible requests either renders a cache hit
// directly or lets the request through and buffers the response for
// storage.
type Middleware struct {
	facade   *cache.Facade
	policy   config.RequestCacheConfig
	simCfg   config.SimilarityConfig
	resolver PolicyResolver

	index           *similarity.Index
	embeddingScorer similarity.EmbeddingScorer

	clock   clock.Clock
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New constructs a request-cache Middleware. index may be nil when
// simCfg.Enabled is false.
func New(facade *cache.Facade, policy config.RequestCacheConfig, simCfg config.SimilarityConfig, index *similarity.Index, logger zerolog.Logger, metrics *observability.Metrics, c clock.Clock) *Middleware {
	if c == nil {
		c = clock.Real{}
	}
	return &Middleware{
		facade:  facade,
		policy:  policy,
		simCfg:  simCfg,
		index:   index,
		clock:   c,
		logger:  logger.With().Str("component", "requestcache").Logger(),
		metrics: metrics,
	}
}

// WithPolicyResolver installs a per-endpoint policy resolver.
func (m *Middleware) WithPolicyResolver(r PolicyResolver) *Middleware {
	m.resolver = r
	return m
}

// WithEmbeddingScorer installs an optional pluggable similarity scorer.
func (m *Middleware) WithEmbeddingScorer(s similarity.EmbeddingScorer) *Middleware {
	m.embeddingScorer = s
	return m
}

// Handler wraps next with the request-cache workflow.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Value(idempotenceKey{}) != nil {
			next.ServeHTTP(w, r)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), idempotenceKey{}, true))

		policy := m.policy
		if m.resolver != nil {
			if override := m.resolver(r.Method, r.URL.Path); override != nil {
				policy = ResolvePolicy(m.policy, override)
			}
		}

		if !eligible(policy, r) {
			next.ServeHTTP(w, r)
			return
		}

		if strings.EqualFold(policy.Mode, "Similarity") && m.simCfg.Enabled && m.index != nil {
			m.handleSimilarity(w, r, next, policy)
			return
		}
		m.handleExact(w, r, next, policy)
	})
}

func (m *Middleware) handleExact(w http.ResponseWriter, r *http.Request, next http.Handler, policy config.RequestCacheConfig) {
	ctx := r.Context()

	bodyHashHex := ""
	if policy.IncludeBody {
		sum, ok, err := hashRequestBody(r, policy.MaxRequestBodySizeBytes)
		if err != nil || !ok {
			// Body hashing sentinel (too large, or a read error): disable
			// caching for this request without failing it.
			next.ServeHTTP(w, r)
			return
		}
		bodyHashHex = hex.EncodeToString(sum[:])
	}

	key := deriveExactKey(r.Method, r.URL.Path, r.URL.Query(), r.Header, policy.VaryByHeaders, policy.LowercasePath, bodyHashHex, policy.IncludeBody)

	if res, err := m.facade.Get(ctx, key); err == nil && res != nil {
		if entry, decErr := decodeStoredEntry(res.Value); decErr == nil {
			m.renderHit(w, r, entry, res.Stale || entry.stale(m.clock.Now()), 0, false, key, policy)
			return
		}
	}

	m.setMissHeaders(w, key, policy)

	rec := newRecorder(w, policy.MaxResponseBodySizeBytes)
	next.ServeHTTP(rec, r)

	m.store(ctx, key, rec, policy.DefaultDuration, policy)
}

func (m *Middleware) store(ctx context.Context, key string, rec *recorder, duration time.Duration, policy config.RequestCacheConfig) {
	if !rec.wroteHeader || rec.overflowed {
		return
	}
	if !policy.EnableResponseBuffering {
		return
	}
	if !responseCacheable(policy, rec.status, rec.header) {
		return
	}

	entry := StoredEntry{
		StatusCode:  rec.status,
		Body:        append([]byte(nil), rec.buf.Bytes()...),
		Headers:     filterDenylistedHeaders(rec.header),
		ContentType: rec.header.Get("Content-Type"),
		CachedAt:    m.clock.Now(),
		Duration:    duration,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		m.logger.Debug().Err(err).Str("key", key).Msg("request-cache entry encode failed")
		return
	}
	ttl := duration
	if err := m.facade.Set(ctx, key, payload, &cache.EntryOptions{TTL: &ttl}); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("request-cache set failed")
	}
}

func decodeStoredEntry(raw []byte) (StoredEntry, error) {
	var entry StoredEntry
	err := json.Unmarshal(raw, &entry)
	return entry, err
}

func (m *Middleware) renderHit(w http.ResponseWriter, r *http.Request, entry StoredEntry, stale bool, score float64, hasScore bool, key string, policy config.RequestCacheConfig) {
	entry.applyHeaders(w)
	if policy.ResponseHeaders.Enabled {
		h := w.Header()
		h.Set(policy.ResponseHeaders.CacheStatusHeader, "HIT")
		h.Set(policy.ResponseHeaders.CacheStaleHeader, strconv.FormatBool(stale))
		if hasScore {
			h.Set(policy.ResponseHeaders.SimilarityHeader, fmt.Sprintf("%.3f", score))
		}
		if policy.ResponseHeaders.IncludeCacheKey {
			h.Set(policy.ResponseHeaders.CacheKeyHeader, key)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Body)))
	w.WriteHeader(entry.StatusCode)
	if !strings.EqualFold(r.Method, http.MethodHead) {
		_, _ = w.Write(entry.Body)
	}
}

func (m *Middleware) setMissHeaders(w http.ResponseWriter, key string, policy config.RequestCacheConfig) {
	if !policy.ResponseHeaders.Enabled {
		return
	}
	h := w.Header()
	h.Set(policy.ResponseHeaders.CacheStatusHeader, "MISS")
	h.Set(policy.ResponseHeaders.CacheStaleHeader, "false")
	if policy.ResponseHeaders.IncludeCacheKey {
		h.Set(policy.ResponseHeaders.CacheKeyHeader, key)
	}
}
