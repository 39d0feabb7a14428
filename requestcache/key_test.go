package requestcache

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestDeriveExactKeyIsStableAcrossQueryOrdering(t *testing.T) {
	q1, _ := url.ParseQuery("b=2&a=1")
	q2, _ := url.ParseQuery("a=1&b=2")

	h := http.Header{}
	k1 := deriveExactKey("GET", "/items", q1, h, nil, false, "", false)
	k2 := deriveExactKey("GET", "/items", q2, h, nil, false, "", false)

	if k1 != k2 {
		t.Fatalf("expected query order not to affect key, got %q vs %q", k1, k2)
	}
}

func TestDeriveExactKeyDiffersByPath(t *testing.T) {
	h := http.Header{}
	k1 := deriveExactKey("GET", "/items/1", nil, h, nil, false, "", false)
	k2 := deriveExactKey("GET", "/items/2", nil, h, nil, false, "", false)

	if k1 == k2 {
		t.Fatalf("expected distinct paths to produce distinct keys")
	}
}

func TestDeriveExactKeyLowercasePathOption(t *testing.T) {
	h := http.Header{}
	k1 := deriveExactKey("GET", "/Items", nil, h, nil, true, "", false)
	k2 := deriveExactKey("GET", "/items", nil, h, nil, true, "", false)

	if k1 != k2 {
		t.Fatalf("expected LowercasePath to fold case, got %q vs %q", k1, k2)
	}
}

func TestDeriveExactKeyVariesOnVaryByHeader(t *testing.T) {
	h1 := http.Header{"Accept-Language": []string{"en"}}
	h2 := http.Header{"Accept-Language": []string{"fr"}}

	k1 := deriveExactKey("GET", "/items", nil, h1, []string{"Accept-Language"}, false, "", false)
	k2 := deriveExactKey("GET", "/items", nil, h2, []string{"Accept-Language"}, false, "", false)

	if k1 == k2 {
		t.Fatalf("expected distinct vary-by header values to produce distinct keys")
	}
}

func TestDeriveExactKeyHasExpectedPrefix(t *testing.T) {
	k := deriveExactKey("GET", "/items", nil, http.Header{}, nil, false, "", false)
	if !strings.HasPrefix(k, "http:req:") {
		t.Fatalf("expected http:req: prefix, got %q", k)
	}
}

func TestHashRequestBodyRewindsBody(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatalf("unexpected error building request: %v", err)
	}

	sum, ok, err := hashRequestBody(req, 1024)
	if err != nil || !ok {
		t.Fatalf("expected successful hash, got ok=%v err=%v", ok, err)
	}
	if sum == ([32]byte{}) {
		t.Fatalf("expected non-zero hash sum")
	}

	body := make([]byte, 7)
	n, _ := req.Body.Read(body)
	if string(body[:n]) != `{"a":1}` {
		t.Fatalf("expected body rewound for downstream read, got %q", body[:n])
	}
}

func TestHashRequestBodyOverSizeLimitIsNotOK(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":12345}`))
	if err != nil {
		t.Fatalf("unexpected error building request: %v", err)
	}

	_, ok, err := hashRequestBody(req, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected oversized body to report ok=false")
	}
}
