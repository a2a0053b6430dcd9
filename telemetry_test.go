// telemetry_test.go
package main

import (
	"net/http"
	"testing"
	"time"
)

func TestNewRequestMetricsCapturesRequestShape(t *testing.T) {
	req := &ProxyRequest{
		ID:       "req-1",
		Provider: ProviderOpenAI,
		Path:     "chat/completions",
		Method:   http.MethodPost,
		Body:     []byte(`{"model":"gpt-4"}`),
		Headers: http.Header{
			"Authorization": []string{"Bearer secret-token"},
			"X-Project-Id":  []string{"proj-1"},
			"X-User-Id":     []string{"user-1"},
		},
		StartTime: time.Now(),
	}

	m := NewRequestMetrics(req)

	if m.RequestID != "req-1" || m.Provider != ProviderOpenAI {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.RequestSize != len(req.Body) {
		t.Errorf("RequestSize = %d, want %d", m.RequestSize, len(req.Body))
	}
	if m.Tracking.ProjectID != "proj-1" || m.Tracking.UserID != "user-1" {
		t.Errorf("unexpected tracking: %+v", m.Tracking)
	}
	if auth := m.Headers["authorization"]; auth == "Bearer secret-token" {
		t.Error("expected authorization header to be obfuscated before storage")
	}
}

func TestAppendChunkTruncatesAtCap(t *testing.T) {
	m := &RequestMetrics{}
	for i := 0; i < maxStreamedChunks+5; i++ {
		m.AppendChunk(map[string]interface{}{"i": i})
	}

	if len(m.StreamedData) != maxStreamedChunks {
		t.Errorf("StreamedData len = %d, want %d", len(m.StreamedData), maxStreamedChunks)
	}
	if !m.Truncated {
		t.Error("expected Truncated true once cap is exceeded")
	}
}

func TestFinalizeSetsStatusAndError(t *testing.T) {
	m := &RequestMetrics{startedAt: time.Now().Add(-10 * time.Millisecond)}
	m.Finalize("error", ErrUnknownProvider)

	if m.Status != "error" {
		t.Errorf("Status = %q, want error", m.Status)
	}
	if m.ErrorType != string(ErrUnknownProvider) {
		t.Errorf("ErrorType = %q, want %q", m.ErrorType, ErrUnknownProvider)
	}
	if m.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", m.ErrorCount)
	}
	if m.Latency <= 0 {
		t.Error("expected Latency to be set")
	}
}

func TestFinalizeSuccessLeavesErrorFieldsZero(t *testing.T) {
	m := &RequestMetrics{startedAt: time.Now()}
	m.Finalize("success", "")

	if m.ErrorCount != 0 || m.ErrorType != "" {
		t.Errorf("expected no error fields set, got ErrorCount=%d ErrorType=%q", m.ErrorCount, m.ErrorType)
	}
}

func TestToOtelLogRecordAssemblesDocument(t *testing.T) {
	m := &RequestMetrics{
		RequestID:    "req-1",
		Provider:     ProviderAnthropic,
		Model:        "claude-3",
		Status:       "success",
		RequestBody:  []byte(`{"model":"claude-3"}`),
		ResponseBody: []byte(`{"id":"resp-1"}`),
	}
	resource := OtelResource{ServiceName: "ai-inference-gateway"}

	rec := m.ToOtelLogRecord(resource)

	if rec.Name != "ai_gateway_request_log" {
		t.Errorf("Name = %q", rec.Name)
	}
	if rec.Attributes.ID != "req-1" || rec.Attributes.Provider != "anthropic" {
		t.Errorf("unexpected attributes: %+v", rec.Attributes)
	}
	if rec.Attributes.Response.Body["id"] != "resp-1" {
		t.Errorf("unexpected response body: %+v", rec.Attributes.Response.Body)
	}
	if rec.Attributes.Metadata.Status != "success" {
		t.Errorf("Metadata.Status = %q", rec.Attributes.Metadata.Status)
	}
}
