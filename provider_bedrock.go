// provider_bedrock.go
package main

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// bedrockStrategy rewrites OpenAI-chat-shaped requests into Bedrock's
// Converse API and Converse replies back into OpenAI-chat shape, signing
// every outbound request with SigV4.
//
// The source API this gateway's Bedrock support was distilled from also
// exposes an older invoke/invoke-with-response-stream path for models that
// predate Converse. This gateway only implements Converse, which gives a
// uniform request/response shape across model families; the legacy path
// would need its own request/response transform pair mirroring each model
// family's native wire format and is left unimplemented.
type bedrockStrategy struct {
	region        string
	endpoint      string
	signer        *sigv4Signer
	fallbackCreds aws.CredentialsProvider
}

func newBedrockStrategy(cfg Config) (*bedrockStrategy, error) {
	region := cfg.BedrockRegion
	if region != "" {
		if err := ValidateBedrockRegion(region); err != nil {
			return nil, err
		}
	}
	return &bedrockStrategy{
		region:        region,
		endpoint:      cfg.BedrockEndpoint,
		signer:        newSigV4Signer(),
		fallbackCreds: loadDefaultAWSCredentials(context.Background()),
	}, nil
}

func (s *bedrockStrategy) ID() ProviderID { return ProviderBedrock }

func (s *bedrockStrategy) BaseURL() string {
	if s.endpoint != "" {
		return s.endpoint
	}
	region := s.region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
}

// TransformPath ignores the incoming OpenAI-shaped path entirely -- the
// Bedrock target path is derived from the model id carried in the request
// body (see modelPathFromBody), because Bedrock addresses models by path
// segment rather than by a body field alone. The engine calls
// bedrockTargetPath directly once the body is available; TransformPath
// exists to satisfy the strategy contract and is idempotent on a path that
// already has the /model/ shape.
func (s *bedrockStrategy) TransformPath(p string) string {
	if strings.HasPrefix(p, "/model/") {
		return p
	}
	return p
}

// bedrockTargetPath derives the Converse path from the model id, selected
// from the request body's "model" field or, failing that, the
// x-bedrock-model-id tracking header.
func bedrockTargetPath(body []byte, headers http.Header, streaming bool) (string, error) {
	modelID := gjsonGetString(body, "model")
	if modelID == "" {
		modelID = headers.Get("x-bedrock-model-id")
	}
	if modelID == "" {
		return "", NewGatewayError(ErrInvalidCredentials, "bedrock request missing model id", http.StatusBadRequest)
	}

	op := "converse"
	if streaming {
		op = "converse-stream"
	}
	return fmt.Sprintf("/model/%s/%s", modelID, op), nil
}

func (s *bedrockStrategy) ProcessHeaders(incoming http.Header) (http.Header, error) {
	// Credential validation happens in Sign, where the request body hash
	// and target are available; ProcessHeaders forwards the content
	// negotiation headers SigV4 will sign over, plus the per-request
	// x-aws-* credential headers Sign resolves and strips.
	out := make(http.Header)
	out.Set("Content-Type", "application/json")
	if accept := incoming.Get("Accept"); accept != "" {
		out.Set("Accept", accept)
	}
	for _, k := range bedrockCredentialHeaders {
		if v := incoming.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	return out, nil
}

// TransformRequestBody rewrites an OpenAI-chat body into Bedrock's Converse
// shape:
//   - messages[] keeps role; system messages hoist into a top-level
//     "system" array; remaining message content strings wrap as [{text:...}].
//   - temperature/top_p/max_tokens/top_k fold into inferenceConfig.
//   - stop becomes inferenceConfig.stopSequences.
func (s *bedrockStrategy) TransformRequestBody(_ string, body []byte) ([]byte, error) {
	parsed := gjson.ParseBytes(body)

	var system []map[string]string
	var messages []map[string]interface{}

	for _, m := range parsed.Get("messages").Array() {
		role := m.Get("role").String()
		content := m.Get("content").String()

		if role == "system" {
			system = append(system, map[string]string{"text": content})
			continue
		}
		messages = append(messages, map[string]interface{}{
			"role":    role,
			"content": []map[string]string{{"text": content}},
		})
	}

	out := []byte(`{}`)
	var err error
	if out, err = sjson.SetBytes(out, "messages", messages); err != nil {
		return nil, err
	}
	if len(system) > 0 {
		if out, err = sjson.SetBytes(out, "system", system); err != nil {
			return nil, err
		}
	}

	inferenceConfig := map[string]interface{}{}
	if v := parsed.Get("temperature"); v.Exists() {
		inferenceConfig["temperature"] = v.Float()
	}
	if v := parsed.Get("top_p"); v.Exists() {
		inferenceConfig["topP"] = v.Float()
	}
	if v := parsed.Get("max_tokens"); v.Exists() {
		inferenceConfig["maxTokens"] = v.Int()
	}
	if v := parsed.Get("top_k"); v.Exists() {
		inferenceConfig["topK"] = v.Int()
	}
	if v := parsed.Get("stop"); v.Exists() {
		var stopSequences []string
		if v.IsArray() {
			for _, s := range v.Array() {
				stopSequences = append(stopSequences, s.String())
			}
		} else {
			stopSequences = []string{v.String()}
		}
		inferenceConfig["stopSequences"] = stopSequences
	}
	if len(inferenceConfig) > 0 {
		if out, err = sjson.SetBytes(out, "inferenceConfig", inferenceConfig); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Sign resolves Bedrock credentials (headers first, environment second),
// computes the body hash, and signs the outbound request with SigV4.
func (s *bedrockStrategy) Sign(r *http.Request, body []byte) error {
	creds, err := resolveBedrockCredentials(r.Context(), r.Header, s.fallbackCreds)
	if err != nil {
		return err
	}
	if creds.Region == "" {
		creds.Region = s.region
	}
	if creds.Region == "" {
		return NewGatewayError(ErrInvalidCredentials, "no bedrock region configured", http.StatusBadRequest)
	}

	// Strip the per-request credential headers before signing -- they must
	// not appear in the outbound request to Bedrock itself.
	for _, k := range bedrockCredentialHeaders {
		r.Header.Del(k)
	}

	hash := sha256.Sum256(body)
	bodyHash := hex.EncodeToString(hash[:])

	return s.signer.sign(r.Context(), r, bodyHash, creds, time.Now())
}

func (s *bedrockStrategy) ResponseFraming(_ string, streaming bool) Framing {
	if streaming {
		return FramingAWSEventStream
	}
	return FramingJSON
}

// TransformResponseChunk turns one decoded Converse event-stream frame
// payload into an OpenAI-chat-shaped SSE chunk body:
// contentBlockDelta -> {choices:[{index:0,delta:{content:<text>}}]};
// messageStop -> a chunk carrying finish_reason. The engine appends the
// terminal "data: [DONE]" sentinel itself once the stream closes.
func (s *bedrockStrategy) TransformResponseChunk(chunk []byte, framing Framing) ([]byte, error) {
	if framing != FramingAWSEventStream {
		return chunk, nil
	}

	parsed := gjson.ParseBytes(chunk)

	if delta := parsed.Get("delta.text"); delta.Exists() {
		out := []byte(`{"choices":[{"index":0,"delta":{}}]}`)
		out, _ = sjson.SetBytes(out, "choices.0.delta.content", delta.String())
		return out, nil
	}

	if parsed.Get("stopReason").Exists() {
		out := []byte(`{"choices":[{"index":0,"delta":{},"finish_reason":null}]}`)
		out, _ = sjson.SetBytes(out, "choices.0.finish_reason", parsed.Get("stopReason").String())
		return out, nil
	}

	return chunk, nil
}

func (s *bedrockStrategy) ExtractModel(req, _ map[string]interface{}) string {
	if req == nil {
		return ""
	}
	if m, ok := req["model"].(string); ok {
		return m
	}
	return ""
}

// ExtractUsage reads the {inputTokens,outputTokens,totalTokens} usage block
// Bedrock Converse reports either at the top level (non-streaming) or inside
// a "metadata" event-stream frame (streaming).
func (s *bedrockStrategy) ExtractUsage(final map[string]interface{}) TokenUsage {
	if final == nil {
		return TokenUsage{}
	}
	block, ok := final["usage"].(map[string]interface{})
	if !ok {
		if meta, ok := final["metadata"].(map[string]interface{}); ok {
			block, _ = meta["usage"].(map[string]interface{})
		}
	}
	if block == nil {
		return TokenUsage{}
	}
	return usageFromBlock(map[string]interface{}{"usage": block}, "usage", "inputTokens", "outputTokens", "totalTokens")
}

func (s *bedrockStrategy) ExtractProviderRequestID(h http.Header, _ map[string]interface{}) string {
	if id := h.Get("x-amzn-requestid"); id != "" {
		return id
	}
	if id := h.Get("x-amzn-RequestId"); id != "" {
		return id
	}
	return ""
}

// rewriteConverseResponse reshapes a non-streaming Bedrock Converse reply
// into the OpenAI chat-completion shape.
func rewriteConverseResponse(body []byte, modelID string) ([]byte, error) {
	parsed := gjson.ParseBytes(body)

	text := parsed.Get("output.message.content.0.text").String()
	finishReason := parsed.Get("stopReason").String()

	out := []byte(`{}`)
	var err error
	for _, set := range []struct {
		path string
		val  interface{}
	}{
		{"id", "bedrock-" + uuid.New().String()},
		{"object", "chat.completion"},
		{"model", modelID},
		{"choices.0.index", 0},
		{"choices.0.message.role", "assistant"},
		{"choices.0.message.content", text},
		{"choices.0.finish_reason", finishReason},
	} {
		if out, err = sjson.SetBytes(out, set.path, set.val); err != nil {
			return nil, err
		}
	}

	if usage := parsed.Get("usage"); usage.Exists() {
		if out, err = sjson.SetBytes(out, "usage.prompt_tokens", usage.Get("inputTokens").Int()); err != nil {
			return nil, err
		}
		if out, err = sjson.SetBytes(out, "usage.completion_tokens", usage.Get("outputTokens").Int()); err != nil {
			return nil, err
		}
		if out, err = sjson.SetBytes(out, "usage.total_tokens", usage.Get("totalTokens").Int()); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// decodeConverseStreamFrame decodes one Bedrock event-stream frame's base64
// "bytes" envelope into the raw Converse event JSON, or (nil, false) for
// frame kinds with no JSON payload (e.g. exception frames).
func decodeConverseStreamFrame(frame eventStreamFrame) ([]byte, bool) {
	payload := gjson.ParseBytes(frame.Payload)
	encoded := payload.Get("bytes")
	if encoded.Exists() {
		decoded, err := base64.StdEncoding.DecodeString(encoded.String())
		if err == nil {
			return decoded, true
		}
	}
	// Converse-stream frames usually carry the event JSON directly as the
	// payload rather than base64-wrapped (unlike the legacy invoke API).
	if len(frame.Payload) > 0 && frame.Payload[0] == '{' {
		return frame.Payload, true
	}
	return nil, false
}
