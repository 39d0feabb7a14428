// Package requestcache implements the HTTP request-cache workflow: eligibility checks, exact-mode key derivation, response buffering,
// and the similarity-mode lookup/write-back path built on the similarity
// package.
package requestcache

import (
	"time"

	"github.com/alfreddev/cachify/config"
)

// PolicyOverride carries a per-endpoint override over the global request-
// cache policy, set via endpoint metadata or a per-call argument. Only the
// fields set (non-nil) replace the global value; a non-nil empty slice
// replaces the global list with an empty one. Everything else is inherited.
type PolicyOverride struct {
	Mode                        *string
	Duration                    *time.Duration
	CacheableMethods            []string
	CacheableStatusCodes        []int
	AllowedRequestContentTypes  []string
	AllowedResponseContentTypes []string
	IncludedPaths               []string
	ExcludedPaths               []string
	VaryByHeaders               []string
	IncludeBody                 *bool
	CacheAuthenticatedResponses *bool
	RespectRequestCacheControl  *bool
	RespectResponseCacheControl *bool
	AllowSetCookieResponses     *bool
}

// ResolvePolicy merges override over global, returning the effective policy
// for one request.
func ResolvePolicy(global config.RequestCacheConfig, override *PolicyOverride) config.RequestCacheConfig {
	resolved := global
	if override == nil {
		return resolved
	}
	if override.Mode != nil {
		resolved.Mode = *override.Mode
	}
	if override.Duration != nil {
		resolved.DefaultDuration = *override.Duration
	}
	if override.CacheableMethods != nil {
		resolved.CacheableMethods = override.CacheableMethods
	}
	if override.CacheableStatusCodes != nil {
		resolved.CacheableStatusCodes = override.CacheableStatusCodes
	}
	if override.AllowedRequestContentTypes != nil {
		resolved.AllowedRequestContentTypes = override.AllowedRequestContentTypes
	}
	if override.AllowedResponseContentTypes != nil {
		resolved.AllowedResponseContentTypes = override.AllowedResponseContentTypes
	}
	if override.IncludedPaths != nil {
		resolved.IncludedPaths = override.IncludedPaths
	}
	if override.ExcludedPaths != nil {
		resolved.ExcludedPaths = override.ExcludedPaths
	}
	if override.VaryByHeaders != nil {
		resolved.VaryByHeaders = override.VaryByHeaders
	}
	if override.IncludeBody != nil {
		resolved.IncludeBody = *override.IncludeBody
	}
	if override.CacheAuthenticatedResponses != nil {
		resolved.CacheAuthenticatedResponses = *override.CacheAuthenticatedResponses
	}
	if override.RespectRequestCacheControl != nil {
		resolved.RespectRequestCacheControl = *override.RespectRequestCacheControl
	}
	if override.RespectResponseCacheControl != nil {
		resolved.RespectResponseCacheControl = *override.RespectResponseCacheControl
	}
	if override.AllowSetCookieResponses != nil {
		resolved.AllowSetCookieResponses = *override.AllowSetCookieResponses
	}
	return resolved
}

// PolicyResolver looks up a per-endpoint override for a request. A nil
// resolver (or one returning nil) leaves the global policy untouched.
type PolicyResolver func(method, path string) *PolicyOverride
