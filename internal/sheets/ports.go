// Package sheets mirrors the ledger into an external spreadsheet. The mirror
// is write-only: the store remains the source of truth.
package sheets

import (
	"context"
	"strings"
	"time"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}
)

// Header is the column layout written by every adapter.
var Header = []string{
	"Date", "Type", "Category", "Subcategory", "Description", "Amount",
	"Currency", "Payment Method", "Account", "Tags", "Transaction ID", "User ID",
}

// Row renders t in Header order.
func Row(t core.Transaction) []interface{} {
	return []interface{}{
		t.Date.UTC().Format(time.DateOnly),
		string(t.Type),
		t.Category,
		t.Subcategory,
		t.Description,
		t.Amount.StringFixed(2),
		t.Currency,
		t.PaymentMethod,
		t.AccountID,
		strings.Join(t.Tags, ", "),
		t.ID,
		t.UserID,
	}
}
