package cache

import "strings"

// BuildKey joins the optional namespace prefix, optional region, and the
// caller's key with ':'. Keys are opaque beyond
// that; equality is byte-exact.
func BuildKey(prefix, region, key string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if region != "" {
		parts = append(parts, region)
	}
	parts = append(parts, key)
	return strings.Join(parts, ":")
}
