// engine.go
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// hopByHopHeaders are stripped from both the outbound request and the
// relayed response, per RFC 7230 §6.1 -- these are connection-scoped, not
// payload-scoped, and must never be forwarded across a proxy hop.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailers", "Transfer-Encoding", "Upgrade",
}

func stripHopByHop(h http.Header) {
	for _, k := range hopByHopHeaders {
		h.Del(k)
	}
}

// Engine drives one proxied request through a provider strategy's pipeline
// and relays the upstream response back to the client, tapping every
// request/response for telemetry along the way. The state machine is
// informal but follows a fixed progression:
//
//	Idle -> Connecting -> Headers -> Streaming -> Closing -> Done
//	                                           \-> Aborted (client gone)
//	                  \-> Failed (error before or during upstream connect)
type Engine struct {
	client    *http.Client
	registry  *Registry
	collector *Collector
	resource  OtelResource
	cfg       Config
}

// NewEngine wires the components every proxied request needs.
func NewEngine(cfg Config, registry *Registry, collector *Collector, resource OtelResource) *Engine {
	return &Engine{
		client:    newUpstreamClient(),
		registry:  registry,
		collector: collector,
		resource:  resource,
		cfg:       cfg,
	}
}

// Handle runs req through its provider strategy and writes the result to w.
// It always finalizes and submits telemetry, even on error paths, so every
// request produces exactly one OtelLogRecord.
func (e *Engine) Handle(w http.ResponseWriter, r *http.Request, req *ProxyRequest) {
	metrics := NewRequestMetrics(req)

	strategy, ok := e.registry.Lookup(req.Provider)
	if !ok {
		e.fail(w, metrics, NewGatewayError(ErrUnknownProvider, "unknown provider: "+string(req.Provider), 0))
		return
	}

	streaming := isStreamRequested(req.Body, req.Headers.Get("Accept"))

	body, err := strategy.TransformRequestBody(req.Path, req.Body)
	if err != nil {
		e.fail(w, metrics, toGatewayError(err, ErrProtocolError))
		return
	}

	path := e.targetPath(strategy, req, body, streaming)
	if gerr, ok := pathError(path); ok {
		e.fail(w, metrics, gerr)
		return
	}

	outHeaders, err := strategy.ProcessHeaders(req.Headers)
	if err != nil {
		e.fail(w, metrics, toGatewayError(err, ErrInvalidCredentials))
		return
	}
	stripHopByHop(outHeaders)

	upstreamURL := strategy.BaseURL() + path.value
	upstreamReq, err := http.NewRequestWithContext(r.Context(), req.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		e.fail(w, metrics, NewGatewayError(ErrInternal, "build upstream request: "+err.Error(), 0))
		return
	}
	upstreamReq.Header = outHeaders

	if err := strategy.Sign(upstreamReq, body); err != nil {
		e.fail(w, metrics, toGatewayError(err, ErrInvalidCredentials))
		return
	}

	deadlineCtx := r.Context()
	var cancel context.CancelFunc
	if !streaming && e.cfg.NonStreamingDeadline > 0 {
		deadlineCtx, cancel = context.WithTimeout(r.Context(), e.cfg.NonStreamingDeadline)
		defer cancel()
		upstreamReq = upstreamReq.WithContext(deadlineCtx)
	}

	providerStart := time.Now()
	resp, err := e.client.Do(upstreamReq)
	metrics.ProviderLatency = time.Since(providerStart)
	if err != nil {
		e.fail(w, metrics, classifyUpstreamErr(err))
		return
	}
	defer resp.Body.Close()

	metrics.ProviderStatus = resp.StatusCode
	metrics.ProviderRequestID = strategy.ExtractProviderRequestID(resp.Header, nil)

	framing := strategy.ResponseFraming(resp.Header.Get("Content-Type"), streaming)

	// A non-2xx upstream reply is a complete JSON error document even when
	// the caller asked for a stream: forward it through the buffered path so
	// the body passes verbatim and telemetry records provider-error.
	if resp.StatusCode >= 400 {
		framing = FramingJSON
	}

	switch framing {
	case FramingSSE:
		e.relaySSE(w, r, resp, strategy, req, req.Body, metrics)
	case FramingAWSEventStream:
		e.relayEventStream(w, r, resp, strategy, req, req.Body, metrics)
	default:
		e.relayJSON(w, resp, strategy, req, req.Body, metrics)
	}
}

type targetPathResult struct {
	value string
	err   *GatewayError
}

func pathError(p targetPathResult) (*GatewayError, bool) {
	if p.err != nil {
		return p.err, true
	}
	return nil, false
}

// targetPath resolves the upstream path. Bedrock addresses models by path
// segment derived from the (already-transformed) request body rather than
// from the incoming OpenAI-shaped path, so it is special-cased here; every
// other provider uses its own TransformPath.
func (e *Engine) targetPath(strategy ProviderStrategy, req *ProxyRequest, body []byte, streaming bool) targetPathResult {
	if _, ok := strategy.(*bedrockStrategy); ok {
		p, err := bedrockTargetPath(body, req.Headers, streaming)
		if err != nil {
			var gerr *GatewayError
			if errors.As(err, &gerr) {
				return targetPathResult{err: gerr}
			}
			return targetPathResult{err: NewGatewayError(ErrInternal, err.Error(), 0)}
		}
		return targetPathResult{value: p}
	}
	return targetPathResult{value: strategy.TransformPath(req.Path)}
}

// relayJSON buffers the full upstream body, extracts telemetry fields, and
// writes it straight through to the client.
func (e *Engine) relayJSON(w http.ResponseWriter, resp *http.Response, strategy ProviderStrategy, req *ProxyRequest, reqBody []byte, metrics *RequestMetrics) {
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxRequestBodyBytes))
	if err != nil {
		e.fail(w, metrics, NewGatewayError(ErrProtocolError, "read upstream response: "+err.Error(), 0))
		return
	}

	reqJSON := jsonToMap(reqBody)

	// Bedrock's non-streaming Converse reply needs reshaping into the
	// OpenAI chat-completion shape, the same way targetPath special-cases
	// Bedrock above -- the strategy interface stays identity-by-default
	// for every other provider.
	if _, ok := strategy.(*bedrockStrategy); ok && resp.StatusCode < 400 {
		modelID := gjsonGetString(reqBody, "model")
		if rewritten, rerr := rewriteConverseResponse(respBody, modelID); rerr == nil {
			respBody = rewritten
		}
	}

	respJSON := jsonToMap(respBody)

	if metrics.ProviderRequestID == "" {
		metrics.ProviderRequestID = strategy.ExtractProviderRequestID(resp.Header, respJSON)
	}
	metrics.Model = strategy.ExtractModel(reqJSON, respJSON)
	metrics.Tokens = strategy.ExtractUsage(respJSON)
	metrics.ResponseBody = respBody
	metrics.ResponseSize = len(respBody)
	metrics.GatewayStatus = resp.StatusCode

	status := "success"
	var errType ErrorType
	if resp.StatusCode >= 400 {
		status = "error"
		errType = ErrProviderError
		metrics.ProviderErrorCount = 1
		metrics.ProviderErrorType = fmt.Sprintf("status_%d", resp.StatusCode)
	}

	hdr := w.Header()
	copyResponseHeaders(hdr, resp.Header)
	addCORSHeaders(hdr)
	w.WriteHeader(resp.StatusCode)
	w.Write(respBody)

	metrics.Finalize(status, errType)
	e.submit(metrics)
}

// relaySSE streams "data: " lines from the upstream body, tapping each
// decoded chunk for telemetry without blocking the relay on the tap.
func (e *Engine) relaySSE(w http.ResponseWriter, r *http.Request, resp *http.Response, strategy ProviderStrategy, req *ProxyRequest, reqBody []byte, metrics *RequestMetrics) {
	hdr := w.Header()
	copyResponseHeaders(hdr, resp.Header)
	addCORSHeaders(hdr)
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	w.WriteHeader(resp.StatusCode)
	flusher, _ := w.(http.Flusher)

	metrics.GatewayStatus = resp.StatusCode
	reqJSON := jsonToMap(reqBody)

	// Writes to a stalled client are bounded by a rolling write deadline;
	// the deadline firing surfaces as a write error below.
	rc := http.NewResponseController(w)

	var lastChunk map[string]interface{}
	var abortType ErrorType

	reader := bufio.NewReaderSize(resp.Body, 64*1024)
	for {
		select {
		case <-r.Context().Done():
			abortType = ErrClientDisconnect
		default:
		}
		if abortType != "" {
			break
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if werr := e.writeSSELine(w, rc, flusher, strategy, line, metrics, &lastChunk); werr != nil {
				abortType = e.classifyClientWriteErr(r)
				break
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			abortType = ErrClientDisconnect
			break
		}
	}

	metrics.Model = strategy.ExtractModel(reqJSON, lastChunk)
	metrics.Tokens = strategy.ExtractUsage(lastChunk)

	if abortType != "" {
		metrics.Finalize("aborted", abortType)
	} else {
		metrics.Finalize("success", "")
	}
	e.submit(metrics)
}

// classifyClientWriteErr distinguishes a client that went away from one that
// stopped reading: a done request context means disconnect, anything else
// (the write deadline firing included) is a stall.
func (e *Engine) classifyClientWriteErr(r *http.Request) ErrorType {
	select {
	case <-r.Context().Done():
		return ErrClientDisconnect
	default:
		return ErrClientStalled
	}
}

// writeSSELine transforms and writes one raw SSE line under the slow-client
// write deadline, updating lastChunk (the most recently seen decoded JSON
// object, used for trailing usage extraction) and tapping the decoded chunk
// into metrics.
func (e *Engine) writeSSELine(w http.ResponseWriter, rc *http.ResponseController, flusher http.Flusher, strategy ProviderStrategy, line []byte, metrics *RequestMetrics, lastChunk *map[string]interface{}) error {
	transformed, err := strategy.TransformResponseChunk(line, FramingSSE)
	if err != nil {
		transformed = line
	}

	if e.cfg.SlowClientTimeout > 0 {
		// Unsupported writers (no deadline control) just stream unbounded.
		rc.SetWriteDeadline(time.Now().Add(e.cfg.SlowClientTimeout))
	}
	n, werr := w.Write(transformed)
	metrics.ResponseSize += n
	if werr != nil {
		return werr
	}
	if flusher != nil {
		flusher.Flush()
	}

	trimmed := strings.TrimSpace(string(line))
	if strings.HasPrefix(trimmed, "data:") {
		payload := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
		if payload != "" && payload != "[DONE]" {
			if m := jsonToMap([]byte(payload)); m != nil {
				metrics.AppendChunk(m)
				*lastChunk = m
			}
		}
	}
	return nil
}

// relayEventStream decodes Bedrock's vnd.amazon.eventstream framing
// incrementally off the upstream body, re-encoding each frame as an SSE
// "data: " line for the client -- the gateway always presents an
// OpenAI-dialect SSE stream regardless of the upstream wire format.
func (e *Engine) relayEventStream(w http.ResponseWriter, r *http.Request, resp *http.Response, strategy ProviderStrategy, req *ProxyRequest, reqBody []byte, metrics *RequestMetrics) {
	hdr := w.Header()
	copyResponseHeaders(hdr, resp.Header)
	addCORSHeaders(hdr)
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	w.WriteHeader(resp.StatusCode)
	flusher, _ := w.(http.Flusher)

	metrics.GatewayStatus = resp.StatusCode
	reqJSON := jsonToMap(reqBody)

	rc := http.NewResponseController(w)

	decoder := eventstream.NewDecoder()
	var lastChunk map[string]interface{}
	var abortType ErrorType
	decodeFailed := false

	for {
		select {
		case <-r.Context().Done():
			abortType = ErrClientDisconnect
		default:
		}
		if abortType != "" {
			break
		}

		msg, err := decoder.Decode(resp.Body, nil)
		if err != nil {
			if err == io.EOF {
				break
			}
			// A corrupt frame means the decoder has lost sync with the
			// length-prefixed framing; the stream cannot be resumed.
			decodeFailed = true
			break
		}

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Name] = headerValueString(h.Value)
		}
		frame := eventStreamFrame{Headers: headers, Payload: msg.Payload}

		payload, ok := decodeConverseStreamFrame(frame)
		if !ok {
			continue
		}

		// messageStart carries nothing client-visible or telemetry-worthy
		// (just role); the chunk log and SSE stream both skip it.
		if frame.eventType() == "messageStart" {
			continue
		}

		// The chunk log always holds the decoded JSON as received, never
		// the SSE-encoded/transformed form.
		if m := jsonToMap(payload); m != nil {
			metrics.AppendChunk(m)
			lastChunk = m
		}

		// metadata carries only usage/trace data, with no client-facing
		// delta -- it is logged above but never written to the stream.
		if frame.eventType() == "metadata" {
			continue
		}

		transformed, terr := strategy.TransformResponseChunk(payload, FramingAWSEventStream)
		if terr != nil {
			transformed = payload
		}

		line := append([]byte("data: "), transformed...)
		line = append(line, '\n', '\n')
		if e.cfg.SlowClientTimeout > 0 {
			rc.SetWriteDeadline(time.Now().Add(e.cfg.SlowClientTimeout))
		}
		n, werr := w.Write(line)
		metrics.ResponseSize += n
		if werr != nil {
			abortType = e.classifyClientWriteErr(r)
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if abortType == "" && !decodeFailed {
		n, _ := w.Write([]byte("data: [DONE]\n\n"))
		metrics.ResponseSize += n
		if flusher != nil {
			flusher.Flush()
		}
	}

	metrics.Model = strategy.ExtractModel(reqJSON, lastChunk)
	metrics.Tokens = strategy.ExtractUsage(lastChunk)

	switch {
	case abortType != "":
		metrics.Finalize("aborted", abortType)
	case decodeFailed:
		metrics.ProviderErrorCount = 1
		metrics.ProviderErrorType = string(ErrProtocolError)
		metrics.Finalize("error", ErrProtocolError)
	default:
		metrics.Finalize("success", "")
	}
	e.submit(metrics)
}

// fail writes a GatewayError to the client (when the connection can still
// take a status line) and always finalizes telemetry.
func (e *Engine) fail(w http.ResponseWriter, metrics *RequestMetrics, gerr *GatewayError) {
	metrics.GatewayStatus = gerr.Status
	metrics.Finalize("error", gerr.Type)
	e.submit(metrics)

	if gerr.hasNoClientStatus() {
		return
	}

	hdr := w.Header()
	addCORSHeaders(hdr)
	hdr.Set("Content-Type", "application/json")
	w.WriteHeader(gerr.Status)
	fmt.Fprintf(w, `{"error":{"type":%q,"message":%q}}`, gerr.Type, gerr.Message)
}

func (e *Engine) submit(metrics *RequestMetrics) {
	if e.collector == nil {
		return
	}
	e.collector.Submit(metrics.ToOtelLogRecord(e.resource))
}

// copyResponseHeaders copies upstream response headers to the client
// response, skipping hop-by-hop headers.
func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	stripHopByHop(dst)
}

// classifyUpstreamErr maps a transport-level error from http.Client.Do into
// the gateway's error taxonomy.
func classifyUpstreamErr(err error) *GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewGatewayError(ErrUpstreamTimeout, "upstream request timed out", 0)
	}
	return NewGatewayError(ErrUpstreamConnect, "upstream request failed: "+err.Error(), 0)
}

// toGatewayError unwraps a *GatewayError produced by a strategy, or wraps a
// generic error under fallback.
func toGatewayError(err error, fallback ErrorType) *GatewayError {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	return NewGatewayError(fallback, err.Error(), 0)
}
