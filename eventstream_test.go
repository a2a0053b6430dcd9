// eventstream_test.go
package main

import (
	"bytes"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// encodeTestFrame builds one complete wire-format vnd.amazon.eventstream
// message the way a real Bedrock response would, so decode tests exercise
// the actual length-prefixing and CRC framing rather than a hand-built
// struct.
func encodeTestFrame(t *testing.T, eventType string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := eventstream.NewEncoder()
	msg := eventstream.Message{
		Headers: eventstream.Headers{
			eventstream.Header{Name: ":event-type", Value: eventstream.StringValue(eventType)},
			eventstream.Header{Name: ":content-type", Value: eventstream.StringValue("application/json")},
			eventstream.Header{Name: ":message-type", Value: eventstream.StringValue("event")},
		},
		Payload: payload,
	}
	if err := enc.Encode(&buf, msg); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

func TestEventStreamFrameEventType(t *testing.T) {
	raw := encodeTestFrame(t, "contentBlockDelta", []byte(`{"delta":{"text":"hi"}}`))

	dec := eventstream.NewDecoder()
	msg, err := dec.Decode(bytes.NewReader(raw), nil)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Name] = headerValueString(h.Value)
	}
	frame := eventStreamFrame{Headers: headers, Payload: msg.Payload}

	if got := frame.eventType(); got != "contentBlockDelta" {
		t.Errorf("eventType() = %q, want contentBlockDelta", got)
	}
	if string(frame.Payload) != `{"delta":{"text":"hi"}}` {
		t.Errorf("Payload = %q, want delta JSON", frame.Payload)
	}
}

func TestEventStreamFrameMissingEventTypeHeader(t *testing.T) {
	frame := eventStreamFrame{Headers: map[string]string{}}
	if got := frame.eventType(); got != "" {
		t.Errorf("eventType() = %q, want empty for missing header", got)
	}
}

func TestHeaderValueStringNonString(t *testing.T) {
	if got := headerValueString(eventstream.BoolValue(true)); got != "" {
		t.Errorf("headerValueString() = %q, want empty for non-string header value", got)
	}
}

func TestDecodeConverseStreamFrameHandlesEventTypes(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   []byte
		wantOK    bool
	}{
		{"contentBlockDelta", "contentBlockDelta", []byte(`{"delta":{"text":"hel"}}`), true},
		{"messageStop", "messageStop", []byte(`{"stopReason":"end_turn"}`), true},
		{"metadata", "metadata", []byte(`{"usage":{"inputTokens":3,"outputTokens":5}}`), true},
		{"messageStart", "messageStart", []byte(`{"role":"assistant"}`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := eventStreamFrame{
				Headers: map[string]string{":event-type": tt.eventType},
				Payload: tt.payload,
			}
			payload, ok := decodeConverseStreamFrame(frame)
			if ok != tt.wantOK {
				t.Fatalf("decodeConverseStreamFrame() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && string(payload) != string(tt.payload) {
				t.Errorf("decoded payload = %q, want %q", payload, tt.payload)
			}
		})
	}
}
