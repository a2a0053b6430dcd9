// collector.go
package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Exporter is a telemetry sink. Export must return promptly once ctx is
// done; the collector applies a per-exporter timeout around every call.
type Exporter interface {
	Name() string
	Export(ctx context.Context, record OtelLogRecord) error
}

// Collector is the process-wide telemetry fan-out: a bounded queue drained
// by a fixed worker pool, dispatching each record to every registered
// exporter concurrently. Producers (engine goroutines) never block on
// exporter latency -- Submit only blocks on the bounded channel, and on a
// full channel the record is dropped with droppedRecords incremented
// rather than stalling the request path.
type Collector struct {
	queue           chan OtelLogRecord
	exporters       []Exporter
	exporterTimeout time.Duration

	wg sync.WaitGroup

	droppedRecords int64
	exportFailures int64
}

// NewCollector starts the worker pool. Call Close to drain and stop it.
func NewCollector(cfg Config, exporters []Exporter) *Collector {
	c := &Collector{
		queue:           make(chan OtelLogRecord, cfg.TelemetryQueueSize),
		exporters:       exporters,
		exporterTimeout: cfg.ExporterTimeout,
	}

	workers := cfg.TelemetryWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Submit enqueues a finalized record. Never blocks the caller beyond a
// channel send; drops and counts on a full queue.
func (c *Collector) Submit(record OtelLogRecord) {
	select {
	case c.queue <- record:
	default:
		atomic.AddInt64(&c.droppedRecords, 1)
		logf(levelWarn, "telemetry queue full, dropping record %s", record.Attributes.ID)
	}
}

func (c *Collector) worker() {
	defer c.wg.Done()
	for record := range c.queue {
		c.dispatch(record)
	}
}

// dispatch fans a single record out to every exporter concurrently, each
// under its own timeout, isolated from the others' failures.
func (c *Collector) dispatch(record OtelLogRecord) {
	if len(c.exporters) == 0 {
		return
	}

	g := new(errgroup.Group)
	for _, exp := range c.exporters {
		exp := exp
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), c.exporterTimeout)
			defer cancel()
			if err := exp.Export(ctx, record); err != nil {
				atomic.AddInt64(&c.exportFailures, 1)
				logf(levelWarn, "exporter %s failed for record %s: %v", exp.Name(), record.Attributes.ID, err)
			}
			// Exporter failures are logged and isolated, never propagated
			// to the other exporters or back to the request path.
			return nil
		})
	}
	_ = g.Wait()
}

// Close stops accepting new records and waits for in-flight dispatches to
// finish once the queue drains.
func (c *Collector) Close() {
	close(c.queue)
	c.wg.Wait()
}

// Stats returns the collector's drop/failure counters for health reporting.
func (c *Collector) Stats() (dropped, failures int64) {
	return atomic.LoadInt64(&c.droppedRecords), atomic.LoadInt64(&c.exportFailures)
}
