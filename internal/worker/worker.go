package worker

import (
	"context"
	"log"
	"time"

	"SolPayCheckout/internal/models"
	"SolPayCheckout/internal/provider"
	"SolPayCheckout/internal/store"
)

// Worker drives session reconciliation: a periodic sweep over every pending
// session plus a WS nudge that reconciles a session the moment its one-time
// address sees activity.
type Worker struct {
	Store      *store.Store
	Payments   *provider.Provider
	WSEndpoint string
	Interval   time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	go w.RunWS(ctx)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if err := w.SyncOnce(ctx); err != nil {
			log.Printf("sync error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce reconciles every pending session once. A failure on one session
// is logged and must not block the rest of the batch.
func (w *Worker) SyncOnce(ctx context.Context) error {
	sessions, err := w.Store.ListPendingSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}
	log.Printf("sync pending=%d", len(sessions))
	for _, rec := range sessions {
		if err := w.reconcileSession(ctx, rec.ID); err != nil {
			log.Printf("reconcile session %s failed: %v", rec.ID, err)
		}
	}
	return nil
}

// reconcileSession re-reads the session, runs one authorization pass and
// persists the outcome behind a pending-status guard. A session that
// authorizes is captured right away; the shop flow treats payment receipt
// as completion.
func (w *Worker) reconcileSession(ctx context.Context, sessionID string) error {
	rec, err := w.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.Status != models.StatusPending {
		return nil
	}

	status, updated, err := w.Payments.Authorize(ctx, rec)
	if err != nil {
		return err
	}
	n, err := w.Store.UpdateSession(ctx, updated, models.StatusPending)
	if err != nil {
		return err
	}
	if n == 0 || status != models.StatusAuthorized {
		return nil
	}

	captured, err := w.Payments.Capture(ctx, updated)
	if err != nil {
		return err
	}
	if _, err := w.Store.UpdateSession(ctx, captured, models.StatusAuthorized); err != nil {
		return err
	}
	log.Printf("session %s captured, order %s", rec.ID, rec.OrderID)
	return nil
}
