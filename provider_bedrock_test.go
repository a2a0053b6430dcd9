// provider_bedrock_test.go
package main

import (
	"net/http"
	"testing"
)

func newTestBedrockStrategy(t *testing.T) *bedrockStrategy {
	t.Helper()
	s, err := newBedrockStrategy(Config{BedrockRegion: "us-east-1"})
	if err != nil {
		t.Fatalf("newBedrockStrategy: %v", err)
	}
	return s
}

func TestBedrockBaseURLDefaultsRegion(t *testing.T) {
	s, err := newBedrockStrategy(Config{})
	if err != nil {
		t.Fatalf("newBedrockStrategy: %v", err)
	}
	if got := s.BaseURL(); got != "https://bedrock-runtime.us-east-1.amazonaws.com" {
		t.Errorf("BaseURL() = %q, want default us-east-1", got)
	}
}

func TestBedrockTargetPathStreamingVsNonStreaming(t *testing.T) {
	body := []byte(`{"model":"anthropic.claude-v2","messages":[{"role":"user","content":"hi"}]}`)

	p, err := bedrockTargetPath(body, http.Header{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != "/model/anthropic.claude-v2/converse" {
		t.Errorf("non-streaming path = %q", p)
	}

	p, err = bedrockTargetPath(body, http.Header{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != "/model/anthropic.claude-v2/converse-stream" {
		t.Errorf("streaming path = %q", p)
	}
}

func TestBedrockTargetPathMissingModelFails(t *testing.T) {
	if _, err := bedrockTargetPath([]byte(`{}`), http.Header{}, false); err == nil {
		t.Fatal("expected error for missing model id")
	}
}

func TestBedrockTargetPathFallsBackToTrackingHeader(t *testing.T) {
	headers := http.Header{"X-Bedrock-Model-Id": []string{"anthropic.claude-v2"}}
	p, err := bedrockTargetPath([]byte(`{}`), headers, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != "/model/anthropic.claude-v2/converse" {
		t.Errorf("path from tracking header = %q", p)
	}
}

func TestBedrockProcessHeadersCarriesCredentialHeaders(t *testing.T) {
	s := newTestBedrockStrategy(t)

	incoming := http.Header{}
	incoming.Set("Authorization", "Bearer not-bedrocks-scheme")
	incoming.Set("x-aws-access-key-id", "AKIDHEADER")
	incoming.Set("x-aws-secret-access-key", "header-secret")
	incoming.Set("x-aws-region", "us-west-2")

	out, err := s.ProcessHeaders(incoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Get("x-aws-access-key-id") != "AKIDHEADER" {
		t.Errorf("x-aws-access-key-id = %q, want carried through for Sign", out.Get("x-aws-access-key-id"))
	}
	if out.Get("x-aws-secret-access-key") != "header-secret" {
		t.Errorf("x-aws-secret-access-key = %q, want carried through for Sign", out.Get("x-aws-secret-access-key"))
	}
	if out.Get("x-aws-region") != "us-west-2" {
		t.Errorf("x-aws-region = %q, want carried through for Sign", out.Get("x-aws-region"))
	}
	if out.Get("Authorization") != "" {
		t.Errorf("Authorization = %q, want dropped (SigV4 sets its own)", out.Get("Authorization"))
	}
}

func TestBedrockBaseURLEndpointOverride(t *testing.T) {
	s, err := newBedrockStrategy(Config{BedrockRegion: "us-east-1", BedrockEndpoint: "http://localhost:4566"})
	if err != nil {
		t.Fatalf("newBedrockStrategy: %v", err)
	}
	if got := s.BaseURL(); got != "http://localhost:4566" {
		t.Errorf("BaseURL() = %q, want the configured endpoint override", got)
	}
}

func TestBedrockTransformRequestBodyHoistsSystemMessages(t *testing.T) {
	s := newTestBedrockStrategy(t)
	in := []byte(`{
		"model":"anthropic.claude-v2",
		"messages":[
			{"role":"system","content":"be terse"},
			{"role":"user","content":"hello"}
		],
		"temperature":0.5,
		"max_tokens":100,
		"stop":["END"]
	}`)

	out, err := s.TransformRequestBody("/chat/completions", in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed := jsonToMap(out)
	system, ok := parsed["system"].([]interface{})
	if !ok || len(system) != 1 {
		t.Fatalf("expected one system entry, got %v", parsed["system"])
	}
	messages, ok := parsed["messages"].([]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("expected one non-system message, got %v", parsed["messages"])
	}
	msg0 := messages[0].(map[string]interface{})
	if msg0["role"] != "user" {
		t.Errorf("expected user role, got %v", msg0["role"])
	}

	inferenceConfig, ok := parsed["inferenceConfig"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected inferenceConfig, got %v", parsed["inferenceConfig"])
	}
	if inferenceConfig["maxTokens"].(float64) != 100 {
		t.Errorf("expected maxTokens 100, got %v", inferenceConfig["maxTokens"])
	}
	stopSeq, ok := inferenceConfig["stopSequences"].([]interface{})
	if !ok || len(stopSeq) != 1 || stopSeq[0] != "END" {
		t.Errorf("expected stopSequences [END], got %v", inferenceConfig["stopSequences"])
	}

	// The Converse body has no top-level "model" field -- the model lives
	// in the target path instead.
	if _, hasModel := parsed["model"]; hasModel {
		t.Error("did not expect a top-level model field in the Converse body")
	}
}

func TestRewriteConverseResponseProducesChatCompletionShape(t *testing.T) {
	converse := []byte(`{
		"output":{"message":{"content":[{"text":"hello there"}]}},
		"stopReason":"end_turn",
		"usage":{"inputTokens":3,"outputTokens":5,"totalTokens":8}
	}`)

	out, err := rewriteConverseResponse(converse, "anthropic.claude-v2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed := jsonToMap(out)
	if parsed["object"] != "chat.completion" {
		t.Errorf("expected object chat.completion, got %v", parsed["object"])
	}
	if parsed["model"] != "anthropic.claude-v2" {
		t.Errorf("expected model echoed through, got %v", parsed["model"])
	}
	choices, ok := parsed["choices"].([]interface{})
	if !ok || len(choices) != 1 {
		t.Fatalf("expected one choice, got %v", parsed["choices"])
	}
	choice0 := choices[0].(map[string]interface{})
	message := choice0["message"].(map[string]interface{})
	if message["role"] != "assistant" || message["content"] != "hello there" {
		t.Errorf("unexpected message shape: %v", message)
	}
	if choice0["finish_reason"] != "end_turn" {
		t.Errorf("expected finish_reason end_turn, got %v", choice0["finish_reason"])
	}

	usage := parsed["usage"].(map[string]interface{})
	if usage["prompt_tokens"].(float64) != 3 || usage["completion_tokens"].(float64) != 5 || usage["total_tokens"].(float64) != 8 {
		t.Errorf("unexpected usage block: %v", usage)
	}
}

func TestBedrockTransformResponseChunkContentBlockDelta(t *testing.T) {
	s := newTestBedrockStrategy(t)
	out, err := s.TransformResponseChunk([]byte(`{"delta":{"text":"hel"}}`), FramingAWSEventStream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed := jsonToMap(out)
	choices := parsed["choices"].([]interface{})
	delta := choices[0].(map[string]interface{})["delta"].(map[string]interface{})
	if delta["content"] != "hel" {
		t.Errorf("expected delta content hel, got %v", delta["content"])
	}
}

func TestBedrockTransformResponseChunkMessageStop(t *testing.T) {
	s := newTestBedrockStrategy(t)
	out, err := s.TransformResponseChunk([]byte(`{"stopReason":"end_turn"}`), FramingAWSEventStream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed := jsonToMap(out)
	choices := parsed["choices"].([]interface{})
	if choices[0].(map[string]interface{})["finish_reason"] != "end_turn" {
		t.Errorf("expected finish_reason end_turn, got %v", choices[0])
	}
}

func TestBedrockExtractUsageFromMetadataFrame(t *testing.T) {
	s := newTestBedrockStrategy(t)
	metadataFrame := map[string]interface{}{
		"usage": map[string]interface{}{
			"inputTokens":  float64(3),
			"outputTokens": float64(5),
			"totalTokens":  float64(8),
		},
	}
	usage := s.ExtractUsage(metadataFrame)
	if usage.Input == nil || *usage.Input != 3 {
		t.Errorf("expected input 3, got %v", usage.Input)
	}
	if usage.Total == nil || *usage.Total != 8 {
		t.Errorf("expected total 8, got %v", usage.Total)
	}
}

func TestDecodeConverseStreamFrameBase64Envelope(t *testing.T) {
	frame := eventStreamFrame{
		Headers: map[string]string{":event-type": "contentBlockDelta"},
		Payload: []byte(`{"bytes":"eyJkZWx0YSI6eyJ0ZXh0IjoiaGkifX0="}`), // base64 of {"delta":{"text":"hi"}}
	}
	payload, ok := decodeConverseStreamFrame(frame)
	if !ok {
		t.Fatal("expected ok decode")
	}
	if string(payload) != `{"delta":{"text":"hi"}}` {
		t.Errorf("decoded payload = %s", payload)
	}
}
