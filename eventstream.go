// eventstream.go
package main

import (
	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// eventStreamFrame is one decoded vnd.amazon.eventstream message: its typed
// header set and raw payload bytes. The engine's relayEventStream decodes
// frames incrementally straight off the upstream body via
// eventstream.NewDecoder() -- a streaming proxy can't afford to buffer the
// whole body first, so there is no buffer-oriented decode entry point here,
// only the frame type and the helpers below it relies on.
type eventStreamFrame struct {
	Headers map[string]string
	Payload []byte
}

// headerValueString stringifies an eventstream header value for the small
// set of types Bedrock actually sends (string headers like :event-type,
// :content-type, :message-type).
func headerValueString(v eventstream.Value) string {
	if s, ok := v.Get().(string); ok {
		return s
	}
	return ""
}

// eventType returns the ":event-type" header used to demultiplex Bedrock
// Converse streaming frames (messageStart, contentBlockDelta, messageStop,
// metadata).
func (f eventStreamFrame) eventType() string {
	return f.Headers[":event-type"]
}
