package requestcache

import (
	"bytes"
	"io"
	"net/http"
)

// readRequestBody reads up to maxBytes+1 bytes of r.Body and rewinds it for
// downstream handlers, mirroring hashRequestBody's rewind discipline. ok is
// false when the body exceeds maxBytes.
func readRequestBody(r *http.Request, maxBytes int64) (body []byte, ok bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true, nil
	}
	var buf bytes.Buffer
	limited := io.LimitReader(r.Body, maxBytes+1)
	n, copyErr := io.Copy(&buf, limited)
	orig := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf.Bytes()), orig), orig}
	if copyErr != nil {
		return nil, false, copyErr
	}
	if n > maxBytes {
		return nil, false, nil
	}
	return buf.Bytes(), true, nil
}
