// router.go
package main

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Router dispatches inbound HTTP requests: /health for liveness, and
// everything under /v1/ to the streaming proxy engine after parsing the
// provider out of the x-provider header and enforcing the request body
// size cap, using a single flat ServeHTTP dispatch rather than a mux.
type Router struct {
	engine    *Engine
	collector *Collector
	es        *elasticsearchExporter
	resource  OtelResource
	cfg       Config
}

// NewRouter builds the router. es may be nil when Elasticsearch export is
// disabled -- /health/elasticsearch then reports "disabled".
func NewRouter(cfg Config, engine *Engine, collector *Collector, es *elasticsearchExporter, resource OtelResource) *Router {
	return &Router{engine: engine, collector: collector, es: es, resource: resource, cfg: cfg}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		addCORSHeaders(w.Header())
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch {
	case r.URL.Path == "/health":
		rt.handleHealth(w, r)
		return
	case r.URL.Path == "/health/elasticsearch":
		rt.handleHealthElasticsearch(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/v1/"):
		rt.handleProxy(w, r)
		return
	default:
		addCORSHeaders(w.Header())
		http.NotFound(w, r)
	}
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	addCORSHeaders(hdr)
	hdr.Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (rt *Router) handleHealthElasticsearch(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	addCORSHeaders(hdr)
	hdr.Set("Content-Type", "application/json")

	if rt.es == nil {
		w.Write([]byte(`{"status":"disabled"}`))
		return
	}

	stats := rt.es.Stats()
	w.Write([]byte(jsonEncodeElasticsearchHealth(stats)))
}

func jsonEncodeElasticsearchHealth(stats ElasticsearchExporterStats) string {
	return `{"status":"ok","documents_sent":` + itoa64(stats.DocumentsSent) +
		`,"documents_failed":` + itoa64(stats.DocumentsFailed) +
		`,"documents_dropped":` + itoa64(stats.DocumentsDropped) +
		`,"batches_sent":` + itoa64(stats.BatchesSent) + `}`
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// handleProxy parses the provider, tracking headers, and request body off
// r, builds a ProxyRequest, and hands it to the engine. Every error path
// here happens before any strategy or upstream call, so telemetry for these
// cases is emitted directly rather than through Engine.fail.
func (rt *Router) handleProxy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	// The full "/v1/..." path travels with the request: each strategy's
	// TransformPath decides what of it survives into the upstream URL.
	path := r.URL.Path

	providerHeader := r.Header.Get("x-provider")
	if providerHeader == "" {
		rt.writeEarlyError(w, r, start, "", path, NewGatewayError(ErrMissingProvider, "missing required x-provider header", 0))
		return
	}

	provider := ProviderID(strings.ToLower(providerHeader))
	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGroq, ProviderFireworks, ProviderTogether, ProviderBedrock:
	default:
		rt.writeEarlyError(w, r, start, provider, path, NewGatewayError(ErrUnknownProvider, "unknown provider: "+providerHeader, 0))
		return
	}

	limited := io.LimitReader(r.Body, rt.cfg.MaxRequestBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		rt.writeEarlyError(w, r, start, provider, path, NewGatewayError(ErrInternal, "read request body: "+err.Error(), 0))
		return
	}
	if int64(len(body)) > rt.cfg.MaxRequestBodyBytes {
		rt.writeEarlyError(w, r, start, provider, path, NewGatewayError(ErrRequestTooLarge, "request body exceeds configured maximum", 0))
		return
	}

	req := &ProxyRequest{
		ID:        uuid.New().String(),
		Provider:  provider,
		Method:    r.Method,
		Path:      path,
		Headers:   r.Header.Clone(),
		Body:      body,
		StartTime: start,
	}

	rt.engine.Handle(w, r, req)
}

// writeEarlyError handles the missing-provider/unknown-provider/body-too-large
// cases, which occur before a strategy exists to drive Engine's normal
// fail path -- the router builds and submits the minimal telemetry record
// itself.
func (rt *Router) writeEarlyError(w http.ResponseWriter, r *http.Request, start time.Time, provider ProviderID, path string, gerr *GatewayError) {
	metrics := NewRequestMetrics(&ProxyRequest{
		ID:        uuid.New().String(),
		Provider:  provider,
		Method:    r.Method,
		Path:      path,
		Headers:   r.Header,
		StartTime: start,
	})
	metrics.GatewayStatus = gerr.Status
	metrics.Finalize("error", gerr.Type)
	if rt.collector != nil {
		rt.collector.Submit(metrics.ToOtelLogRecord(rt.resource))
	}

	hdr := w.Header()
	addCORSHeaders(hdr)
	hdr.Set("Content-Type", "application/json")
	w.WriteHeader(gerr.Status)
	w.Write([]byte(`{"error":{"type":"` + string(gerr.Type) + `","message":"` + jsonEscape(gerr.Message) + `"}}`))
}

func jsonEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
