// telemetry.go
package main

import (
	"net/http"
	"strings"
	"time"
)

// NewRequestMetrics creates the accumulator for one request, owned
// exclusively by the engine goroutine driving it until Finalize hands it to
// the collector.
func NewRequestMetrics(req *ProxyRequest) *RequestMetrics {
	return &RequestMetrics{
		RequestID:   req.ID,
		Provider:    req.Provider,
		Path:        req.Path,
		Method:      req.Method,
		RequestSize: len(req.Body),
		RequestBody: req.Body,
		Tracking:    trackingFromHeaders(req.Headers),
		Headers:     flattenHeaders(ObfuscateHeaders(req.Headers)),
		startedAt:   req.StartTime,
	}
}

// flattenHeaders collapses http.Header's []string values to the single
// value telemetry records want (multi-valued headers are rare on these
// request paths and the first value is the one that matters for auth).
func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

// trackingFromHeaders extracts the optional client-supplied correlation
// headers used to group related requests in telemetry.
func trackingFromHeaders(h interface{ Get(string) string }) TrackingIDs {
	return TrackingIDs{
		ProjectID:      h.Get("x-project-id"),
		OrganisationID: h.Get("x-organisation-id"),
		UserID:         h.Get("x-user-id"),
		ExperimentID:   h.Get("x-experiment-id"),
	}
}

// maxStreamedChunks bounds telemetry tap capture so a pathological stream
// can never grow the record without limit; beyond this, capture is
// truncated but the client-facing stream is unaffected.
const maxStreamedChunks = 10000

// AppendChunk records one decoded chunk into StreamedData, honoring the
// truncation cap.
func (m *RequestMetrics) AppendChunk(chunk map[string]interface{}) {
	if m.Truncated {
		return
	}
	if len(m.StreamedData) >= maxStreamedChunks {
		m.Truncated = true
		return
	}
	m.StreamedData = append(m.StreamedData, chunk)
}

// Finalize stamps the terminal status/error fields and latency, making the
// record immutable in spirit (callers must not mutate it after this).
func (m *RequestMetrics) Finalize(status string, errType ErrorType) {
	m.Status = status
	if errType != "" {
		m.ErrorType = string(errType)
		m.ErrorCount = 1
	}
	m.Latency = time.Since(m.startedAt)
}

// ToOtelLogRecord builds the exported document from the finalized metrics.
func (m *RequestMetrics) ToOtelLogRecord(resource OtelResource) OtelLogRecord {
	var respBody map[string]interface{}
	if m.ResponseBody != nil {
		respBody = jsonToMap(m.ResponseBody)
	}

	return OtelLogRecord{
		Timestamp: time.Now().UTC(),
		Resource:  resource,
		Name:      "ai_gateway_request_log",
		Attributes: OtelAttributes{
			ID:           m.RequestID,
			OrgID:        m.Tracking.OrganisationID,
			UserID:       m.Tracking.UserID,
			ProjectID:    m.Tracking.ProjectID,
			ExperimentID: m.Tracking.ExperimentID,
			Provider:     string(m.Provider),
			Model:        m.Model,
			Request:      jsonToMap(m.RequestBody),
			Response: OtelResponse{
				Body:         respBody,
				StreamedData: m.StreamedData,
			},
			Metadata: OtelMetadata{
				Latency:            m.Latency.Milliseconds(),
				ProviderLatency:    m.ProviderLatency.Milliseconds(),
				InputTokens:        m.Tokens.Input,
				OutputTokens:       m.Tokens.Output,
				TotalTokens:        m.Tokens.Total,
				Cost:               m.Cost,
				Status:             m.Status,
				Path:               m.Path,
				Method:             m.Method,
				RequestSize:        m.RequestSize,
				ResponseSize:       m.ResponseSize,
				StatusCode:         m.GatewayStatus,
				ProviderStatusCode: m.ProviderStatus,
				ErrorCount:         m.ErrorCount,
				ErrorType:          m.ErrorType,
				ProviderErrorCount: m.ProviderErrorCount,
				ProviderErrorType:  m.ProviderErrorType,
				ProviderRequestID:  m.ProviderRequestID,
				Truncated:          m.Truncated,
				Headers:            m.Headers,
			},
		},
	}
}
