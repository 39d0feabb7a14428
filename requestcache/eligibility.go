package requestcache

import (
	"net/http"
	"strings"

	"github.com/alfreddev/cachify/config"
)

func methodAllowed(policy config.RequestCacheConfig, method string) bool {
	for _, m := range policy.CacheableMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func pathAllowed(policy config.RequestCacheConfig, path string) bool {
	for _, p := range policy.ExcludedPaths {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	if len(policy.IncludedPaths) == 0 {
		return true
	}
	for _, p := range policy.IncludedPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func baseContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

func contentTypeAllowed(allowed []string, contentType string) bool {
	if len(allowed) == 0 {
		return true
	}
	ct := baseContentType(contentType)
	for _, a := range allowed {
		if strings.EqualFold(a, ct) {
			return true
		}
	}
	return false
}

func cacheControlBlocks(value string) bool {
	cc := strings.ToLower(value)
	return strings.Contains(cc, "no-store") || strings.Contains(cc, "no-cache") || strings.Contains(cc, "private")
}

// eligible runs the request-side eligibility pipeline: method, path, request content type, authentication, and
// request Cache-Control.
func eligible(policy config.RequestCacheConfig, r *http.Request) bool {
	if !methodAllowed(policy, r.Method) {
		return false
	}
	if !pathAllowed(policy, r.URL.Path) {
		return false
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !contentTypeAllowed(policy.AllowedRequestContentTypes, ct) {
		return false
	}
	if r.Header.Get("Authorization") != "" && !policy.CacheAuthenticatedResponses {
		return false
	}
	if policy.RespectRequestCacheControl && cacheControlBlocks(r.Header.Get("Cache-Control")) {
		return false
	}
	return true
}

// responseCacheable runs the response-side eligibility pipeline: status code, response content type, Set-Cookie, and
// response Cache-Control.
func responseCacheable(policy config.RequestCacheConfig, statusCode int, header http.Header) bool {
	allowed := false
	for _, c := range policy.CacheableStatusCodes {
		if c == statusCode {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if !contentTypeAllowed(policy.AllowedResponseContentTypes, header.Get("Content-Type")) {
		return false
	}
	if !policy.AllowSetCookieResponses && header.Get("Set-Cookie") != "" {
		return false
	}
	if policy.RespectResponseCacheControl && cacheControlBlocks(header.Get("Cache-Control")) {
		return false
	}
	return true
}
