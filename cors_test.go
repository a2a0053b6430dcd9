// cors_test.go
package main

import (
	"net/http"
	"testing"
)

func TestAddCORSHeaders(t *testing.T) {
	h := http.Header{}
	addCORSHeaders(h)

	if got := h.Get("access-control-allow-origin"); got != "*" {
		t.Errorf("access-control-allow-origin = %q, want *", got)
	}
	if got := h.Get("access-control-allow-methods"); got == "" {
		t.Error("expected access-control-allow-methods to be set")
	}
	allowed := h.Get("access-control-allow-headers")
	for _, want := range []string{"x-provider", "x-api-key", "anthropic-version", "x-aws-session-token"} {
		if !contains(allowed, want) {
			t.Errorf("access-control-allow-headers missing %q: %q", want, allowed)
		}
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
