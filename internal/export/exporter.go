package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentbill/internal/cache"
	"rentbill/internal/core"
	applog "rentbill/internal/log"
	"rentbill/internal/metrics"
)

// BillRenderer turns a bill into encoded image bytes.
type BillRenderer interface {
	Render(ctx context.Context, b core.Bill) ([]byte, error)
}

// Result is a finished export.
type Result struct {
	Filename string
	PNG      []byte
	Cached   bool
}

// Job is an export in flight. It is bound to the bill snapshot it was
// started with.
type Job struct {
	done   chan struct{}
	cancel context.CancelFunc
	res    Result
	err    error
}

// Wait blocks until the export finishes or ctx is done. Giving up on the
// wait cancels the job.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.res, j.err
	case <-ctx.Done():
		j.cancel()
		return Result{}, ctx.Err()
	}
}

// Cancel stops the job if it is still running.
func (j *Job) Cancel() {
	j.cancel()
}

type Exporter struct {
	renderer BillRenderer
	cache    *cache.LRUCache[[]byte]
	metrics  *metrics.Metrics
	logger   *applog.Logger
}

// NewExporter wires a renderer to an optional cache and metrics.
func NewExporter(r BillRenderer, c *cache.LRUCache[[]byte], m *metrics.Metrics, logger *applog.Logger) *Exporter {
	if logger == nil {
		logger = applog.Default(applog.ComponentExport)
	}
	return &Exporter{
		renderer: r,
		cache:    c,
		metrics:  m,
		logger:   logger.WithComponent(applog.ComponentExport),
	}
}

// Start renders b in the background.
func (e *Exporter) Start(ctx context.Context, b core.Bill) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(job.done)
		defer cancel()
		job.res, job.err = e.run(ctx, b)
	}()

	return job
}

// Export starts a job and waits for it.
func (e *Exporter) Export(ctx context.Context, b core.Bill) (Result, error) {
	return e.Start(ctx, b).Wait(ctx)
}

func (e *Exporter) run(ctx context.Context, b core.Bill) (Result, error) {
	filename := b.ExportFilename()
	key, err := fingerprint(b)
	if err != nil {
		e.metrics.IncExport(metrics.ResultFailed)
		return Result{}, err
	}

	if e.cache != nil {
		if data, ok := e.cache.Get(key); ok {
			e.metrics.IncExport(metrics.ResultCached)
			return Result{Filename: filename, PNG: data, Cached: true}, nil
		}
	}

	start := time.Now()
	data, err := e.renderer.Render(ctx, b)
	e.metrics.ObserveRender(time.Since(start))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.metrics.IncExport(metrics.ResultCanceled)
			e.logger.WarnContext(ctx, "Export canceled", applog.FieldFilename, filename)
		} else {
			e.metrics.IncExport(metrics.ResultFailed)
			e.logger.ErrorContext(ctx, "Export failed",
				applog.FieldFilename, filename,
				applog.FieldBillID, b.ID,
				"error", err)
		}
		return Result{}, fmt.Errorf("render %s: %w", filename, err)
	}

	if e.cache != nil {
		e.cache.Set(key, data)
	}
	e.metrics.IncExport(metrics.ResultSuccess)
	e.logger.InfoContext(ctx, "Bill exported",
		applog.FieldFilename, filename,
		applog.FieldDuration, time.Since(start).Milliseconds(),
		"bytes", len(data))
	return Result{Filename: filename, PNG: data}, nil
}

func fingerprint(b core.Bill) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("fingerprint bill: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
