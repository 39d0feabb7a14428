// Package similarity implements the near-duplicate request-cache mode:
// canonicalization, SimHash fingerprinting, an LSH-banded LRU index, and
// hamming-distance scoring.
package similarity

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"unicode"
)

// DefaultIgnoredJSONFields lists the JSON object keys skipped during
// canonicalization by default: id, timestamp, created_at, updated_at.
var DefaultIgnoredJSONFields = []string{"id", "timestamp", "created_at", "updated_at"}

// ErrCanonicalizationFailed is returned when the body cannot be
// canonicalized; callers disable
// similarity mode for the request rather than failing it.
var ErrCanonicalizationFailed = errors.New("similarity: canonicalization failed")

// Canonicalize produces the comparison string for body given its content
// type. JSON content types are parsed and
// re-emitted with keys in ascending order, skipping ignoredFields; any
// other content type is Unicode-lowercased with whitespace runs collapsed.
func Canonicalize(contentType string, body []byte, ignoredFields []string) (string, error) {
	if isJSON(contentType) {
		var v any
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return "", ErrCanonicalizationFailed
		}
		if _, err := dec.Token(); err != io.EOF {
			return "", ErrCanonicalizationFailed
		}
		ignored := make(map[string]struct{}, len(ignoredFields))
		for _, f := range ignoredFields {
			ignored[f] = struct{}{}
		}
		var buf bytes.Buffer
		writeCanonicalJSON(&buf, v, ignored)
		return buf.String(), nil
	}

	lower := []rune(strings.ToLower(string(body)))
	var out strings.Builder
	lastWasSpace := false
	for _, r := range lower {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				out.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		out.WriteRune(r)
	}
	return strings.TrimSpace(out.String()), nil
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

func writeCanonicalJSON(buf *bytes.Buffer, v any, ignored map[string]struct{}) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			if _, skip := ignored[k]; skip {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(k)
			buf.WriteByte(':')
			writeCanonicalJSON(buf, val[k], ignored)
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalJSON(buf, e, ignored)
		}
		buf.WriteByte(']')
	case string:
		buf.WriteString(val)
	case nil:
		buf.WriteString("null")
	default:
		// numbers (json.Number, kept as their raw text) and booleans.
		raw, _ := json.Marshal(val)
		buf.Write(raw)
	}
}
