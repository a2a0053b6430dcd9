// strategy_test.go
package main

import "testing"

func TestIsStreamRequested(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		accept string
		want   bool
	}{
		{"stream true in body", []byte(`{"stream":true}`), "", true},
		{"stream false in body", []byte(`{"stream":false}`), "", false},
		{"no stream field", []byte(`{"model":"gpt-4"}`), "", false},
		{"accept header forces stream", []byte(`{}`), "text/event-stream", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isStreamRequested(tt.body, tt.accept); got != tt.want {
				t.Errorf("isStreamRequested() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFramingFromContentType(t *testing.T) {
	if framingFromContentType(true) != FramingSSE {
		t.Error("expected SSE framing when streaming requested")
	}
	if framingFromContentType(false) != FramingJSON {
		t.Error("expected JSON framing when streaming not requested")
	}
}
