package worker

import (
	"context"
	"log/slog"
	"time"
)

// Abandoner closes out challenges the cardholder never finished.
type Abandoner interface {
	AbandonStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// AbandonmentWorker periodically marks stale PENDING authentications ABANDONED.
type AbandonmentWorker struct {
	abandoner    Abandoner
	abandonAfter time.Duration
	batchSize    int
	interval     time.Duration
	logger       *slog.Logger
}

func NewAbandonmentWorker(
	abandoner Abandoner,
	abandonAfter time.Duration,
	batchSize int,
	interval time.Duration,
	logger *slog.Logger,
) *AbandonmentWorker {
	return &AbandonmentWorker{
		abandoner:    abandoner,
		abandonAfter: abandonAfter,
		batchSize:    batchSize,
		interval:     interval,
		logger:       logger,
	}
}

func (w *AbandonmentWorker) Start(ctx context.Context) {
	w.logger.Info("abandonment worker started",
		"interval", w.interval,
		"abandon_after", w.abandonAfter,
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("abandonment worker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep drains full batches so a backlog clears within one tick.
func (w *AbandonmentWorker) sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := w.abandoner.AbandonStale(ctx, w.abandonAfter, w.batchSize)
		total += n
		if err != nil {
			w.logger.Error("abandonment sweep failed", "abandoned", total, "error", err)
			return total
		}
		if n < w.batchSize {
			break
		}
	}

	if total > 0 {
		w.logger.Info("abandonment sweep finished", "abandoned", total)
	}
	return total
}
