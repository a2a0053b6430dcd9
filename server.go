// server.go
package main

import (
	"fmt"
	"net/http"
)

// Server owns the gateway's full request-handling stack: the provider
// registry, the telemetry collector and its exporters, the streaming
// engine, and the router in front of them all.
type Server struct {
	config    Config
	router    *Router
	collector *Collector
	es        *elasticsearchExporter
}

// NewServer wires Registry -> Engine -> Router and starts the telemetry
// collector. Elasticsearch export degrades gracefully: a misconfigured or
// unreachable Elasticsearch never prevents the gateway from starting, it
// only disables that one exporter (stdout export always stays registered).
func NewServer(cfg Config) (*Server, error) {
	registry, err := NewRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("init provider registry: %w", err)
	}

	exporters := []Exporter{newStdoutExporter()}

	var es *elasticsearchExporter
	if cfg.Elasticsearch.Enabled && cfg.Elasticsearch.URL != "" {
		es, err = NewElasticsearchExporter(ElasticsearchExporterConfig{
			URL:      cfg.Elasticsearch.URL,
			Username: cfg.Elasticsearch.Username,
			Password: cfg.Elasticsearch.Password,
			Index:    cfg.Elasticsearch.Index,
			UseGzip:  true,
		})
		if err != nil {
			logf(levelWarn, "WARNING: failed to create elasticsearch exporter: %v", err)
			es = nil
		} else {
			exporters = append(exporters, es)
		}
	} else if cfg.Elasticsearch.Enabled {
		logf(levelWarn, "WARNING: elasticsearch enabled but ELASTICSEARCH_URL is empty, continuing without it")
	}

	collector := NewCollector(cfg, exporters)

	resource := OtelResource{
		ServiceName:           "ai-inference-gateway",
		ServiceVersion:        "1.0.0",
		DeploymentEnvironment: cfg.Environment,
	}

	engine := NewEngine(cfg, registry, collector, resource)
	router := NewRouter(cfg, engine, collector, es, resource)

	return &Server{config: cfg, router: router, collector: collector, es: es}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close drains the telemetry collector (waiting for in-flight exporter
// calls) and stops the Elasticsearch exporter's background batching
// worker.
func (s *Server) Close() error {
	if s.collector != nil {
		s.collector.Close()
	}
	if s.es != nil {
		s.es.Close()
	}
	return nil
}
