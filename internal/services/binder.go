package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

// AccountBinder keeps account balances in step with the ledger. Income adds,
// expense subtracts and transfers are balance-neutral.
type AccountBinder struct {
	accounts storage.AccountStore
}

func NewAccountBinder(accounts storage.AccountStore) *AccountBinder {
	return &AccountBinder{accounts: accounts}
}

// Apply adds the effect of t to the account it references. A missing or
// foreign account is skipped with a warning and the transaction stands.
func (b *AccountBinder) Apply(ctx context.Context, t core.Transaction, now time.Time) error {
	return b.adjust(ctx, t, t.Signed(), now)
}

// Reverse undoes a previous Apply, used when a transaction is deleted or its
// amount, type or account change.
func (b *AccountBinder) Reverse(ctx context.Context, t core.Transaction, now time.Time) error {
	return b.adjust(ctx, t, t.Signed().Neg(), now)
}

func (b *AccountBinder) adjust(ctx context.Context, t core.Transaction, delta decimal.Decimal, now time.Time) error {
	if t.AccountID == "" || delta.IsZero() {
		return nil
	}

	err := b.accounts.AdjustBalance(ctx, t.UserID, t.AccountID, delta, now)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Account not found for transaction, balance not updated",
			"user_id", t.UserID,
			"account_id", t.AccountID,
			"transaction_id", t.ID)
		return nil
	}
	if err != nil {
		return core.Upstream("update account balance", err)
	}

	slog.DebugContext(ctx, "Account balance adjusted",
		"account_id", t.AccountID,
		"transaction_id", t.ID,
		"delta", delta.String())
	return nil
}
