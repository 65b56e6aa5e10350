package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/kosh/internal/metrics"
)

// Reconciler re-reads accounts whose trustline statuses are still optimistic.
type Reconciler interface {
	Reconcile(ctx context.Context) (accounts, contradicted int, err error)
}

// ReconcileWorker periodically confirms or corrects optimistic trustline statuses.
type ReconcileWorker struct {
	reconciler Reconciler
	metrics    *metrics.Service // optional
	interval   time.Duration
}

// NewReconcileWorker creates a new ReconcileWorker. m may be nil.
func NewReconcileWorker(reconciler Reconciler, m *metrics.Service, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		reconciler: reconciler,
		metrics:    m,
		interval:   interval,
	}
}

// Run starts the reconcile loop. It blocks until the context is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context) {
	runEvery(ctx, "ReconcileWorker", w.interval, w.reconcile)
}

func (w *ReconcileWorker) reconcile(ctx context.Context) error {
	accounts, contradicted, err := w.reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}
	w.metrics.Reconciled(contradicted)
	if contradicted > 0 {
		slog.Warn("ReconcileWorker: optimistic trustlines contradicted by the ledger",
			"accounts", accounts, "contradicted", contradicted)
	}
	return nil
}
