// provider_openai.go
package main

import (
	"net/http"
	"strings"
)

// bearerAuthHeaders copies Authorization through unchanged, forcing JSON
// content type -- the rewrite rule shared by OpenAI, GROQ, and Together.
func bearerAuthHeaders(incoming http.Header) (http.Header, error) {
	auth := incoming.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= len("Bearer ") {
		return nil, NewGatewayError(ErrInvalidCredentials, "missing or malformed Authorization header", 0)
	}

	out := make(http.Header)
	out.Set("Authorization", auth)
	out.Set("Content-Type", "application/json")
	return out, nil
}

// identityResponseChunk is the default TransformResponseChunk: pass bytes
// through unchanged.
func identityResponseChunk(chunk []byte, _ Framing) ([]byte, error) {
	return chunk, nil
}

// extractOpenAIStyleModel reads "model" from the request body, falling back
// to the response body -- the shape shared by every OpenAI-dialect provider.
func extractOpenAIStyleModel(requestJSON, responseJSON map[string]interface{}) string {
	if requestJSON != nil {
		if m, ok := requestJSON["model"].(string); ok && m != "" {
			return m
		}
	}
	if responseJSON != nil {
		if m, ok := responseJSON["model"].(string); ok && m != "" {
			return m
		}
	}
	return ""
}

// extractOpenAIStyleUsage reads the standard OpenAI "usage" block
// ({prompt_tokens, completion_tokens, total_tokens}).
func extractOpenAIStyleUsage(final map[string]interface{}) TokenUsage {
	return usageFromBlock(final, "usage", "prompt_tokens", "completion_tokens", "total_tokens")
}

// usageFromBlock extracts a {input,output,total} triple from a named nested
// object using the given field names, leaving fields nil (never zero) when
// absent.
func usageFromBlock(m map[string]interface{}, blockKey, inKey, outKey, totalKey string) TokenUsage {
	var usage TokenUsage
	if m == nil {
		return usage
	}
	block, ok := m[blockKey].(map[string]interface{})
	if !ok {
		return usage
	}
	usage.Input = numField(block, inKey)
	usage.Output = numField(block, outKey)
	usage.Total = numField(block, totalKey)
	return usage
}

func numField(m map[string]interface{}, key string) *int64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	n := int64(f)
	return &n
}

// extractOpenAIStyleRequestID reads the provider request id out of the
// common "x-request-id" response header, falling back to a top-level "id"
// field in the body.
func extractOpenAIStyleRequestID(headers http.Header, body map[string]interface{}) string {
	if id := headers.Get("x-request-id"); id != "" {
		return id
	}
	if body != nil {
		if id, ok := body["id"].(string); ok {
			return id
		}
	}
	return ""
}

// openAIStrategy talks to the canonical OpenAI chat-completions API.
type openAIStrategy struct{}

func newOpenAIStrategy() *openAIStrategy { return &openAIStrategy{} }

func (s *openAIStrategy) ID() ProviderID                { return ProviderOpenAI }
func (s *openAIStrategy) BaseURL() string               { return "https://api.openai.com" }
func (s *openAIStrategy) TransformPath(p string) string { return p }

func (s *openAIStrategy) ProcessHeaders(incoming http.Header) (http.Header, error) {
	return bearerAuthHeaders(incoming)
}

func (s *openAIStrategy) TransformRequestBody(_ string, body []byte) ([]byte, error) {
	return body, nil
}

func (s *openAIStrategy) Sign(_ *http.Request, _ []byte) error { return nil }

func (s *openAIStrategy) ResponseFraming(_ string, streaming bool) Framing {
	return framingFromContentType(streaming)
}

func (s *openAIStrategy) TransformResponseChunk(chunk []byte, f Framing) ([]byte, error) {
	return identityResponseChunk(chunk, f)
}

func (s *openAIStrategy) ExtractModel(req, resp map[string]interface{}) string {
	return extractOpenAIStyleModel(req, resp)
}

func (s *openAIStrategy) ExtractUsage(final map[string]interface{}) TokenUsage {
	return extractOpenAIStyleUsage(final)
}

func (s *openAIStrategy) ExtractProviderRequestID(h http.Header, body map[string]interface{}) string {
	return extractOpenAIStyleRequestID(h, body)
}

// groqStrategy talks to GROQ's OpenAI-compatible endpoint.
type groqStrategy struct{ openAIStrategy }

func newGroqStrategy() *groqStrategy { return &groqStrategy{} }

func (s *groqStrategy) ID() ProviderID  { return ProviderGroq }
func (s *groqStrategy) BaseURL() string { return "https://api.groq.com/openai" }

func (s *groqStrategy) ExtractUsage(final map[string]interface{}) TokenUsage {
	if final != nil {
		if xGroq, ok := final["x_groq"].(map[string]interface{}); ok {
			return usageFromBlock(xGroq, "usage", "prompt_tokens", "completion_tokens", "total_tokens")
		}
	}
	return extractOpenAIStyleUsage(final)
}

// togetherStrategy talks to Together AI's OpenAI-compatible endpoint.
type togetherStrategy struct{ openAIStrategy }

func newTogetherStrategy() *togetherStrategy { return &togetherStrategy{} }

func (s *togetherStrategy) ID() ProviderID  { return ProviderTogether }
func (s *togetherStrategy) BaseURL() string { return "https://api.together.xyz" }

// fireworksStrategy talks to the Fireworks AI inference endpoint, which
// drops a leading "/v1" the client sends as part of the OpenAI-shaped path.
type fireworksStrategy struct{ openAIStrategy }

func newFireworksStrategy() *fireworksStrategy { return &fireworksStrategy{} }

func (s *fireworksStrategy) ID() ProviderID  { return ProviderFireworks }
func (s *fireworksStrategy) BaseURL() string { return "https://api.fireworks.ai/inference/v1" }

func (s *fireworksStrategy) TransformPath(p string) string {
	return strings.TrimPrefix(p, "/v1")
}

func (s *fireworksStrategy) ProcessHeaders(incoming http.Header) (http.Header, error) {
	out, err := bearerAuthHeaders(incoming)
	if err != nil {
		return nil, err
	}
	out.Set("Accept", "application/json")
	return out, nil
}
