package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pesalink/internal/domain/ports/repository"
	"pesalink/internal/usecase"
)

// StatusReconciler periodically re-polls stale ACTIVE orders through the
// orchestrator. This covers deliveries the gateway never retried and
// internal failures the IPN path swallowed: the next poll reapplies the
// status mapping and settles the order.
type StatusReconciler struct {
	uc         usecase.PaymentUseCase
	orders     repository.OrderRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how long an order must sit in ACTIVE to be re-polled
	log        *zerolog.Logger
}

func NewStatusReconciler(uc usecase.PaymentUseCase, orders repository.OrderRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *StatusReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &StatusReconciler{uc: uc, orders: orders, interval: interval, staleAfter: staleAfter, log: logger}
}

func (w *StatusReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *StatusReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.orders.ListActiveOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("status-reconciler: list stale orders failed")
		return
	}
	for _, o := range stale {
		if _, err := w.uc.GetStatus(ctx, o.BusinessID, o.TrackingID); err != nil {
			w.log.Warn().Err(err).
				Str("tracking_id", o.TrackingID).
				Str("business_id", o.BusinessID).
				Msg("status-reconciler: re-poll failed")
			continue
		}
		w.log.Debug().Str("tracking_id", o.TrackingID).Msg("status-reconciler: re-polled")
	}
}
