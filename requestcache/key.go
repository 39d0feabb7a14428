package requestcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// hashRequestBody streams r.Body through SHA-256 up to maxBytes+1 bytes,
// then rewinds r.Body so downstream handlers still see the full content.
// ok is false when the body exceeds maxBytes; callers treat that as a
// sentinel that aborts caching for this request without failing it.
func hashRequestBody(r *http.Request, maxBytes int64) (sum [32]byte, ok bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return sum, true, nil
	}
	var buf bytes.Buffer
	h := sha256.New()
	limited := io.LimitReader(r.Body, maxBytes+1)
	n, copyErr := io.Copy(io.MultiWriter(h, &buf), limited)
	orig := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf.Bytes()), orig), orig}
	if copyErr != nil {
		return sum, false, copyErr
	}
	if n > maxBytes {
		return sum, false, nil
	}
	copy(sum[:], h.Sum(nil))
	return sum, true, nil
}

func sortedQueryPairs(query url.Values) []string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		vals := append([]string(nil), query[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, k+"="+v)
		}
	}
	return pairs
}

func sortedVaryHeaders(header http.Header, varyBy []string) []string {
	names := append([]string(nil), varyBy...)
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		vals := header.Values(name)
		trimmed := make([]string, 0, len(vals))
		for _, v := range vals {
			trimmed = append(trimmed, strings.TrimSpace(v))
		}
		parts = append(parts, strings.ToLower(name)+"="+strings.Join(trimmed, ","))
	}
	return parts
}

// canonicalComponents builds the ordered, '|'-delimited component list
// shared by exact-mode key derivation and similarity-mode canonical key
// derivation: method, path (optionally lowercased), sorted query pairs,
// sorted vary-by header values, and an optional trailing body component.
func canonicalComponents(method, path string, query url.Values, header http.Header, varyBy []string, lowercasePath bool, body string, includeBody bool) string {
	if lowercasePath {
		path = strings.ToLower(path)
	}
	parts := []string{
		method,
		path,
		strings.Join(sortedQueryPairs(query), "&"),
		strings.Join(sortedVaryHeaders(header, varyBy), "&"),
	}
	if includeBody {
		parts = append(parts, body)
	}
	return strings.Join(parts, "|")
}

// deriveExactKey computes the exact-mode cache key: SHA-256 of the
// canonical component string, hex-encoded and prefixed "http:req:".
func deriveExactKey(method, path string, query url.Values, header http.Header, varyBy []string, lowercasePath bool, bodyHashHex string, includeBody bool) string {
	payload := canonicalComponents(method, path, query, header, varyBy, lowercasePath, bodyHashHex, includeBody)
	sum := sha256.Sum256([]byte(payload))
	return "http:req:" + hex.EncodeToString(sum[:])
}
