// strategy.go
package main

import "net/http"

// ProviderStrategy is the pluggable, stateless capability set over a single
// upstream provider. Implementations must not hold per-request state --
// anything that varies per call is threaded through the method arguments.
type ProviderStrategy interface {
	// ID returns the provider identifier this strategy implements.
	ID() ProviderID

	// BaseURL returns the provider's scheme+host root.
	BaseURL() string

	// TransformPath maps an OpenAI-format path (the suffix after "/v1/",
	// e.g. "chat/completions") to the provider-native path. Must be
	// idempotent when applied to an already-transformed path.
	TransformPath(incomingPath string) string

	// ProcessHeaders produces the outbound header set, including
	// authentication. Returns an *GatewayError of type invalid-credentials
	// if required credentials are absent or malformed.
	ProcessHeaders(incoming http.Header) (http.Header, error)

	// TransformRequestBody rewrites the request body for the provider's
	// wire shape. Default behavior (identity) is fine for OpenAI-dialect
	// providers; only Bedrock needs a real transform.
	TransformRequestBody(path string, body []byte) ([]byte, error)

	// Sign applies any request signing the provider requires. Default is
	// identity; only Bedrock implements non-trivial signing.
	Sign(r *http.Request, body []byte) error

	// ResponseFraming tells the engine how to parse the upstream body.
	ResponseFraming(upstreamContentType string, streamingRequested bool) Framing

	// TransformResponseChunk rewrites one decoded chunk into the bytes the
	// client should receive. For SSE/JSON framing this is usually
	// identity; Bedrock turns event-stream frames into SSE lines.
	TransformResponseChunk(chunk []byte, framing Framing) ([]byte, error)

	// ExtractModel pulls the model name out of the request or response
	// JSON, whichever has it. Returns "" if neither does.
	ExtractModel(requestJSON, responseJSON map[string]interface{}) string

	// ExtractUsage pulls token counts from the final response or the last
	// streamed chunk.
	ExtractUsage(final map[string]interface{}) TokenUsage

	// ExtractProviderRequestID pulls the provider's own correlation id from
	// response headers or body, if present.
	ExtractProviderRequestID(headers http.Header, body map[string]interface{}) string
}

// isStreamRequested inspects the parsed request body and the Accept header
// the way every strategy's ResponseFraming implementation needs to.
func isStreamRequested(body []byte, accept string) bool {
	if accept == "text/event-stream" {
		return true
	}
	v := gjsonGetBool(body, "stream")
	return v
}

// framingFromContentType is the shared OpenAI-dialect framing rule used by
// OpenAI, GROQ, Fireworks, Together, and (for its non-Bedrock leg) Anthropic:
// SSE when the caller asked for it, JSON otherwise.
func framingFromContentType(streamingRequested bool) Framing {
	if streamingRequested {
		return FramingSSE
	}
	return FramingJSON
}
