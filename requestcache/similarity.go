package requestcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/alfreddev/cachify/cache"
	"github.com/alfreddev/cachify/config"
	"github.com/alfreddev/cachify/similarity"
)

// onlyIfCostlySatisfied reports whether any only_if_costly predicate header
// carries a truthy value, gating the (more expensive) similarity probe to
// requests the operator has marked worth the cost.
// An empty predicate list is vacuously satisfied.
func onlyIfCostlySatisfied(r *http.Request, predicates []string) bool {
	if len(predicates) == 0 {
		return true
	}
	for _, name := range predicates {
		v := strings.ToLower(strings.TrimSpace(r.Header.Get(name)))
		if v != "" && v != "false" && v != "0" {
			return true
		}
	}
	return false
}

func requiredHeadersPresent(r *http.Request, required []string) bool {
	for _, name := range required {
		if r.Header.Get(name) == "" {
			return false
		}
	}
	return true
}

func (m *Middleware) handleSimilarity(w http.ResponseWriter, r *http.Request, next http.Handler, policy config.RequestCacheConfig) {
	ctx := r.Context()

	body, ok, err := readRequestBody(r, policy.MaxRequestBodySizeBytes)
	if err != nil || !ok {
		next.ServeHTTP(w, r)
		return
	}

	canonical, err := similarity.Canonicalize(r.Header.Get("Content-Type"), body, m.simCfg.IgnoredJSONFields)
	if err != nil {
		// CanonicalizationFailure: disable similarity caching for
		// this request, don't fail it.
		next.ServeHTTP(w, r)
		return
	}

	payload := canonicalComponents(r.Method, r.URL.Path, r.URL.Query(), r.Header, policy.VaryByHeaders, policy.LowercasePath, canonical, true)
	if m.simCfg.MaxCanonicalLength > 0 && len(payload) > m.simCfg.MaxCanonicalLength {
		next.ServeHTTP(w, r)
		return
	}

	sum := sha256.Sum256([]byte(payload))
	canonicalKey := "http:req:sim:" + hex.EncodeToString(sum[:])
	hashPrefix := binary.LittleEndian.Uint64(sum[:8])
	sig := similarity.Sign(canonical, m.simCfg.MaxTokens)

	if res, err := m.facade.Get(ctx, canonicalKey); err == nil && res != nil {
		if entry, decErr := decodeStoredEntry(res.Value); decErr == nil {
			m.recordSimilarityHit(1.0)
			m.renderHit(w, r, entry, res.Stale || entry.stale(m.clock.Now()), 1.0, true, canonicalKey, policy)
			return
		}
	}

	if onlyIfCostlySatisfied(r, m.simCfg.OnlyIfCostly) && requiredHeadersPresent(r, m.simCfg.RequiredHeaders) {
		candidates := m.index.GetCandidates(sig.Value, m.simCfg.MaxCandidates)
		m.recordSimilarityCandidates(len(candidates))
		if best, bestScore, found := pickBest(sig.Value, nil, candidates, m.embeddingScorer); found && bestScore >= m.simCfg.MinSimilarity {
			if res, err := m.facade.Get(ctx, best.Key); err == nil && res != nil {
				if entry, decErr := decodeStoredEntry(res.Value); decErr == nil {
					m.recordSimilarityHit(bestScore)
					m.renderHit(w, r, entry, res.Stale || entry.stale(m.clock.Now()), bestScore, true, best.Key, policy)
					return
				}
			}
			// The index pointed at an entry the cache no longer has.
			m.index.Remove(best.Key)
		}
	}

	m.recordSimilarityMiss()
	m.setMissHeaders(w, canonicalKey, policy)

	rec := newRecorder(w, policy.MaxResponseBodySizeBytes)
	next.ServeHTTP(rec, r)

	if m.storeSimilarity(ctx, canonicalKey, rec, policy) {
		m.index.AddOrUpdate(similarity.Entry{
			Key:        canonicalKey,
			Signature:  sig.Value,
			TokenCount: sig.TokenCount,
			HashPrefix: hashPrefix,
			CachedAt:   m.clock.Now(),
		})
	}
}

func pickBest(reqSig uint64, reqEmbedding []float32, candidates []similarity.Entry, scorer similarity.EmbeddingScorer) (similarity.Entry, float64, bool) {
	var best similarity.Entry
	bestScore := -1.0
	found := false
	for _, c := range candidates {
		score := similarity.ScoreCandidate(reqSig, reqEmbedding, c, scorer)
		if score > bestScore {
			best, bestScore, found = c, score, true
		}
	}
	return best, bestScore, found
}

func (m *Middleware) storeSimilarity(ctx context.Context, key string, rec *recorder, policy config.RequestCacheConfig) bool {
	if !rec.wroteHeader || rec.overflowed || !policy.EnableResponseBuffering {
		return false
	}
	if !responseCacheable(policy, rec.status, rec.header) {
		return false
	}
	entry := StoredEntry{
		StatusCode:  rec.status,
		Body:        append([]byte(nil), rec.buf.Bytes()...),
		Headers:     filterDenylistedHeaders(rec.header),
		ContentType: rec.header.Get("Content-Type"),
		CachedAt:    m.clock.Now(),
		Duration:    policy.DefaultDuration,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		m.logger.Debug().Err(err).Str("key", key).Msg("similarity entry encode failed")
		return false
	}
	ttl := policy.DefaultDuration
	if err := m.facade.Set(ctx, key, payload, &cache.EntryOptions{TTL: &ttl}); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("similarity set failed")
		return false
	}
	return true
}

func (m *Middleware) recordSimilarityHit(score float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.SimilarityHit.Inc()
	m.metrics.SimilarityBestScore.Observe(score)
}

func (m *Middleware) recordSimilarityCandidates(candidates int) {
	if m.metrics != nil {
		m.metrics.SimilarityCandidates.Observe(float64(candidates))
	}
}

func (m *Middleware) recordSimilarityMiss() {
	if m.metrics != nil {
		m.metrics.SimilarityMiss.Inc()
	}
}
