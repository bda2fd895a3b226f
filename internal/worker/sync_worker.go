package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/storage"
)

// startupBatches caps how many mirror batches StartupSyncCheck drains.
const startupBatches = 5

// Mirror appends pending ledger rows to the spreadsheet mirror.
// *services.MirrorProcessor implements it.
type Mirror interface {
	ProcessBatch(ctx context.Context) int
}

// SyncWorker reacts to ledger events: new transactions nudge the mirror, the
// rest are recorded in the log.
type SyncWorker struct {
	ledger storage.TransactionStore
	mirror Mirror
}

func NewSyncWorker(ledger storage.TransactionStore, mirror Mirror) *SyncWorker {
	return &SyncWorker{
		ledger: ledger,
		mirror: mirror,
	}
}

// HandleEvent is the AMQP consumer callback. A returned error requeues the
// message, so only store failures are reported; events about entities that
// no longer exist are acknowledged.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	switch ev.Type {
	case amqp.EventTransactionCreated:
		return w.handleTransactionCreated(ctx, ev)
	case amqp.EventBudgetOverLimit:
		slog.WarnContext(ctx, "Budget over limit",
			"budget_id", ev.EntityID,
			"user_id", ev.UserID,
			"amount", ev.Amount)
	case amqp.EventGoalCompleted:
		slog.InfoContext(ctx, "Goal completed",
			"goal_id", ev.EntityID,
			"user_id", ev.UserID)
	case amqp.EventGoalContribution:
		slog.InfoContext(ctx, "Goal contribution recorded",
			"goal_id", ev.EntityID,
			"transaction_id", ev.TransactionID,
			"amount", ev.Amount)
	case amqp.EventRecurringMaterialized:
		slog.InfoContext(ctx, "Recurring transaction materialized",
			"recurring_id", ev.EntityID,
			"transaction_id", ev.TransactionID)
	default:
		slog.WarnContext(ctx, "Ignoring unknown event", "type", ev.Type, "entity_id", ev.EntityID)
	}
	return nil
}

func (w *SyncWorker) handleTransactionCreated(ctx context.Context, ev *amqp.Event) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"transaction_id", ev.EntityID,
		"user_id", ev.UserID)

	t, err := w.ledger.GetTransaction(ctx, ev.UserID, ev.EntityID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction from event not found, skipping",
			"transaction_id", ev.EntityID,
			"user_id", ev.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	if t.Deleted {
		slog.DebugContext(ctx, "Transaction deleted before mirroring", "transaction_id", t.ID)
		return nil
	}

	n := w.mirror.ProcessBatch(ctx)
	slog.DebugContext(ctx, "Mirror nudged", "transaction_id", t.ID, "mirrored", n)
	return nil
}

// StartupSyncCheck mirrors rows left pending while the worker was down. It
// stops early once a batch appends nothing.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) int {
	total := 0
	for i := 0; i < startupBatches; i++ {
		if ctx.Err() != nil {
			break
		}
		n := w.mirror.ProcessBatch(ctx)
		if n == 0 {
			break
		}
		total += n
	}

	if total == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
	} else {
		slog.InfoContext(ctx, "Startup sync completed", "mirrored", total)
	}
	return total
}
