// Package services implements the ledger reconciliation rules on top of the
// storage ports: balance binding, budget reconciliation, goal progress,
// recurring materialization and analytics.
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
)

// Clock returns the current time. Services never read the wall clock directly.
type Clock func() time.Time

// SystemClock reports UTC wall time.
func SystemClock() time.Time { return time.Now().UTC() }

// Publisher delivers ledger events. *amqp.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.Event) error
}

// notifier publishes fire-and-forget: failures are logged, never returned.
type notifier struct {
	pub Publisher
}

func (n notifier) notify(ctx context.Context, ev *amqp.Event) {
	if n.pub == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping event", "type", ev.Type)
		return
	}
	if err := n.pub.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			"entity_id", ev.EntityID,
			"user_id", ev.UserID,
			"error", err)
	}
}

func newID() string { return uuid.NewString() }

// storeErr converts a storage failure into the service error taxonomy.
func storeErr(op, entity string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return core.NotFound(entity)
	}
	return core.Upstream(op, err)
}
