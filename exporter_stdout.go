// exporter_stdout.go
package main

import (
	"context"
	"encoding/json"
	"log"
)

// stdoutExporter writes one JSON line per record to the process log. It is
// always registered, so a gateway run without Elasticsearch configured
// still has somewhere the telemetry record goes.
type stdoutExporter struct{}

func newStdoutExporter() *stdoutExporter { return &stdoutExporter{} }

func (e *stdoutExporter) Name() string { return "stdout" }

func (e *stdoutExporter) Export(_ context.Context, record OtelLogRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	log.Printf("%s", data)
	return nil
}
