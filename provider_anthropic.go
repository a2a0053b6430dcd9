// provider_anthropic.go
package main

import (
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// anthropicStrategy talks to Anthropic's Messages API, rewriting the
// OpenAI-shaped chat-completions path and Bearer auth into Anthropic's own
// dialect.
type anthropicStrategy struct{}

func newAnthropicStrategy() *anthropicStrategy { return &anthropicStrategy{} }

func (s *anthropicStrategy) ID() ProviderID  { return ProviderAnthropic }
func (s *anthropicStrategy) BaseURL() string { return "https://api.anthropic.com" }

func (s *anthropicStrategy) TransformPath(p string) string {
	if p == "/v1/messages" {
		return p
	}
	if strings.HasSuffix(p, "/chat/completions") {
		return "/v1/messages"
	}
	return p
}

func (s *anthropicStrategy) ProcessHeaders(incoming http.Header) (http.Header, error) {
	auth := incoming.Get("Authorization")
	apiKey := strings.TrimPrefix(auth, "Bearer ")
	if apiKey == "" || apiKey == auth {
		// Allow callers who already speak Anthropic's dialect to pass
		// x-api-key straight through.
		apiKey = incoming.Get("x-api-key")
	}
	if apiKey == "" {
		return nil, NewGatewayError(ErrInvalidCredentials, "missing Authorization/x-api-key header", 0)
	}

	out := make(http.Header)
	out.Set("x-api-key", apiKey)
	out.Set("anthropic-version", anthropicVersion)
	out.Set("Content-Type", "application/json")
	return out, nil
}

func (s *anthropicStrategy) TransformRequestBody(_ string, body []byte) ([]byte, error) {
	return body, nil
}

func (s *anthropicStrategy) Sign(_ *http.Request, _ []byte) error { return nil }

func (s *anthropicStrategy) ResponseFraming(_ string, streaming bool) Framing {
	return framingFromContentType(streaming)
}

func (s *anthropicStrategy) TransformResponseChunk(chunk []byte, f Framing) ([]byte, error) {
	return identityResponseChunk(chunk, f)
}

func (s *anthropicStrategy) ExtractModel(req, resp map[string]interface{}) string {
	return extractOpenAIStyleModel(req, resp)
}

func (s *anthropicStrategy) ExtractUsage(final map[string]interface{}) TokenUsage {
	if final == nil {
		return TokenUsage{}
	}
	// Non-streaming Messages response carries usage at the top level;
	// streaming's last chunk carries it nested under message_delta.
	if block, ok := final["usage"].(map[string]interface{}); ok {
		return anthropicUsageBlock(block)
	}
	if md, ok := final["message_delta"].(map[string]interface{}); ok {
		if block, ok := md["usage"].(map[string]interface{}); ok {
			return anthropicUsageBlock(block)
		}
	}
	return TokenUsage{}
}

// anthropicUsageBlock derives total from input+output -- Anthropic's usage
// object never reports a total directly.
func anthropicUsageBlock(block map[string]interface{}) TokenUsage {
	usage := TokenUsage{
		Input:  numField(block, "input_tokens"),
		Output: numField(block, "output_tokens"),
	}
	if usage.Input != nil && usage.Output != nil {
		total := *usage.Input + *usage.Output
		usage.Total = &total
	}
	return usage
}

func (s *anthropicStrategy) ExtractProviderRequestID(h http.Header, body map[string]interface{}) string {
	if id := h.Get("request-id"); id != "" {
		return id
	}
	if body != nil {
		if id, ok := body["id"].(string); ok {
			return id
		}
	}
	return ""
}
