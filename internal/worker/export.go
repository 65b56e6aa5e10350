package worker

import (
	"context"
	"time"
)

// Exporter writes the recent run history to an external destination.
type Exporter interface {
	Export(ctx context.Context) error
}

// ExportWorker periodically exports the run journal.
type ExportWorker struct {
	exporter Exporter
	interval time.Duration
}

// NewExportWorker creates a new ExportWorker.
func NewExportWorker(exporter Exporter, interval time.Duration) *ExportWorker {
	return &ExportWorker{
		exporter: exporter,
		interval: interval,
	}
}

// Run starts the export loop. It blocks until the context is cancelled.
func (w *ExportWorker) Run(ctx context.Context) {
	runEvery(ctx, "ExportWorker", w.interval, w.exporter.Export)
}
