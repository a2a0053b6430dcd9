// types.go
package main

import (
	"net/http"
	"time"
)

// ProviderID identifies a supported upstream inference provider.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGroq      ProviderID = "groq"
	ProviderFireworks ProviderID = "fireworks"
	ProviderTogether  ProviderID = "together"
	ProviderBedrock   ProviderID = "bedrock"
)

// Framing tells the streaming engine how to parse an upstream response body.
type Framing string

const (
	FramingJSON           Framing = "json"
	FramingSSE            Framing = "sse"
	FramingAWSEventStream Framing = "aws_event_stream"
)

// ProxyRequest is the inbound request after the router has parsed it.
type ProxyRequest struct {
	ID        string
	Provider  ProviderID
	Method    string
	Path      string // full request path, e.g. "/v1/chat/completions"
	Headers   http.Header
	Body      []byte
	StartTime time.Time
}

// RewrittenRequest is what a ProviderStrategy produces for the engine to send upstream.
type RewrittenRequest struct {
	URL     string
	Method  string
	Headers http.Header
	Body    []byte
}

// TokenUsage holds extracted token counts. Fields are nil when not present in
// the provider payload -- an absent count stays absent, never zero.
type TokenUsage struct {
	Input  *int64
	Output *int64
	Total  *int64
}

// TrackingIDs carries the optional caller-supplied correlation headers.
type TrackingIDs struct {
	ProjectID      string
	OrganisationID string
	UserID         string
	ExperimentID   string
}

// RequestMetrics is the mutable accumulator for one request's telemetry.
// It is owned exclusively by the engine goroutine driving the request until
// handed to the collector, at which point it becomes immutable.
type RequestMetrics struct {
	RequestID          string
	Provider           ProviderID
	Model              string
	Path               string
	Method             string
	RequestSize        int
	ResponseSize       int
	ProviderStatus     int
	GatewayStatus      int
	Latency            time.Duration
	ProviderLatency    time.Duration
	Tokens             TokenUsage
	Cost               *float64
	Status             string // "success" | "error" | "aborted"
	ErrorType          string
	ErrorCount         int
	ProviderErrorType  string
	ProviderErrorCount int
	ProviderRequestID  string
	Tracking           TrackingIDs

	RequestBody  []byte
	ResponseBody []byte
	StreamedData []map[string]interface{}
	Truncated    bool

	// Headers is the obfuscated snapshot of the inbound request's headers
	// (see ObfuscateHeaders), kept for telemetry so a record shows which
	// auth scheme a call used without ever carrying the raw credential.
	Headers map[string]string

	startedAt time.Time
}

// OtelLogRecord is the document handed to every registered exporter.
type OtelLogRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	Resource   OtelResource   `json:"resource"`
	Name       string         `json:"name"`
	Attributes OtelAttributes `json:"attributes"`
}

type OtelResource struct {
	ServiceName           string `json:"service.name"`
	ServiceVersion        string `json:"service.version"`
	DeploymentEnvironment string `json:"deployment.environment"`
}

type OtelAttributes struct {
	ID           string `json:"id"`
	ThreadID     string `json:"thread_id,omitempty"`
	OrgID        string `json:"org_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	ExperimentID string `json:"experiment_id,omitempty"`
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`

	Request  map[string]interface{} `json:"request"`
	Response OtelResponse           `json:"response"`
	Metadata OtelMetadata           `json:"metadata"`
}

type OtelResponse struct {
	Body         map[string]interface{}   `json:"body,omitempty"`
	StreamedData []map[string]interface{} `json:"streamed_data,omitempty"`
}

type OtelMetadata struct {
	Latency            int64             `json:"latency_ms"`
	ProviderLatency    int64             `json:"provider_latency_ms"`
	InputTokens        *int64            `json:"input_tokens,omitempty"`
	OutputTokens       *int64            `json:"output_tokens,omitempty"`
	TotalTokens        *int64            `json:"total_tokens,omitempty"`
	Cost               *float64          `json:"cost,omitempty"`
	Status             string            `json:"status"`
	Path               string            `json:"path"`
	Method             string            `json:"method"`
	RequestSize        int               `json:"request_size"`
	ResponseSize       int               `json:"response_size"`
	StatusCode         int               `json:"status_code"`
	ProviderStatusCode int               `json:"provider_status_code"`
	ErrorCount         int               `json:"error_count"`
	ErrorType          string            `json:"error_type,omitempty"`
	ProviderErrorCount int               `json:"provider_error_count"`
	ProviderErrorType  string            `json:"provider_error_type,omitempty"`
	ProviderRequestID  string            `json:"provider_request_id,omitempty"`
	Truncated          bool              `json:"truncated"`
	Headers            map[string]string `json:"headers,omitempty"`
}
