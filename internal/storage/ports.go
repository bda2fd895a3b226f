// Package storage persists ledger entities and answers the filtered queries
// the services need. Two backends implement Repository: SQLite for real
// deployments and an in-memory map store for tests and the memory backend.
package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// Mirror states of a transaction relative to the external spreadsheet.
const (
	MirrorPending = "pending"
	MirrorSynced  = "synced"
	MirrorError   = "error"
)

// Sortable transaction fields.
const (
	SortDate        = "date"
	SortAmount      = "amount"
	SortCategory    = "category"
	SortType        = "type"
	SortDescription = "description"
	SortCreatedAt   = "createdAt"
)

var sortFields = []string{SortDate, SortAmount, SortCategory, SortType, SortDescription, SortCreatedAt}

// ValidSortField reports whether name can be used in TransactionQuery.SortBy.
func ValidSortField(name string) bool { return slices.Contains(sortFields, name) }

// TransactionQuery selects live transactions of one user. Zero values mean
// "no constraint". Deleted rows are never returned unless IncludeDeleted.
type TransactionQuery struct {
	UserID        string
	IDs           []string
	Type          core.TransactionType
	AccountID     string
	PaymentMethod string
	// Category matches case-insensitively anywhere in the category name.
	Category string
	// Categories matches exact category names.
	Categories []string
	From       *time.Time
	To         *time.Time
	// Search matches description, notes or category case-insensitively.
	Search    string
	Tags      []string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal

	IncludeDeleted bool

	SortBy string
	Asc    bool
	Offset int
	Limit  int
}

// Matches reports whether t satisfies every filter in q.
func (q TransactionQuery) Matches(t core.Transaction) bool {
	if q.UserID != "" && t.UserID != q.UserID {
		return false
	}
	if t.Deleted && !q.IncludeDeleted {
		return false
	}
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, t.ID) {
		return false
	}
	if q.Type != "" && t.Type != q.Type {
		return false
	}
	if q.AccountID != "" && t.AccountID != q.AccountID {
		return false
	}
	if q.PaymentMethod != "" && t.PaymentMethod != q.PaymentMethod {
		return false
	}
	if q.Category != "" && !containsFold(t.Category, q.Category) {
		return false
	}
	if len(q.Categories) > 0 && !slices.Contains(q.Categories, t.Category) {
		return false
	}
	if q.From != nil && t.Date.Before(*q.From) {
		return false
	}
	if q.To != nil && t.Date.After(*q.To) {
		return false
	}
	if q.Search != "" && !containsFold(t.Description, q.Search) &&
		!containsFold(t.Notes, q.Search) && !containsFold(t.Category, q.Search) {
		return false
	}
	if len(q.Tags) > 0 && !slices.ContainsFunc(t.Tags, func(tag string) bool {
		return slices.Contains(q.Tags, tag)
	}) {
		return false
	}
	if q.MinAmount != nil && t.Amount.LessThan(*q.MinAmount) {
		return false
	}
	if q.MaxAmount != nil && t.Amount.GreaterThan(*q.MaxAmount) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// compare orders by q.SortBy (date by default) then by creation
// time, both in the requested direction.
func (q TransactionQuery) compare(a, b core.Transaction) int {
	var c int
	switch q.SortBy {
	case SortAmount:
		c = a.Amount.Cmp(b.Amount)
	case SortCategory:
		c = strings.Compare(a.Category, b.Category)
	case SortType:
		c = strings.Compare(string(a.Type), string(b.Type))
	case SortDescription:
		c = strings.Compare(a.Description, b.Description)
	case SortCreatedAt:
		c = a.CreatedAt.Compare(b.CreatedAt)
	default:
		c = a.Date.Compare(b.Date)
	}
	if c == 0 {
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if q.Asc {
		return c
	}
	return -c
}

type TransactionStore interface {
	InsertTransaction(ctx context.Context, t core.Transaction) error
	// GetTransaction returns a transaction owned by userID, soft-deleted or not.
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	// ListTransactions returns one page of matches and the total match count.
	ListTransactions(ctx context.Context, q TransactionQuery) ([]core.Transaction, int, error)
	CountTransactions(ctx context.Context, q TransactionQuery) (int, error)

	// PendingMirror returns live transactions not yet copied to the mirror.
	PendingMirror(ctx context.Context, limit int) ([]core.Transaction, error)
	SetMirrorStatus(ctx context.Context, id, status string) error
}

type AccountStore interface {
	InsertAccount(ctx context.Context, a core.Account) error
	GetAccount(ctx context.Context, userID, id string) (core.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]core.Account, error)
	UpdateAccount(ctx context.Context, a core.Account) error
	// AdjustBalance adds delta to the account balance in one atomic step.
	AdjustBalance(ctx context.Context, userID, id string, delta decimal.Decimal, at time.Time) error
	DeleteAccount(ctx context.Context, userID, id string) error
}

// BudgetQuery selects budgets of one user.
type BudgetQuery struct {
	UserID string
	Active *bool
	Period core.BudgetPeriod
	Offset int
	Limit  int
}

type BudgetStore interface {
	InsertBudget(ctx context.Context, b core.Budget) error
	GetBudget(ctx context.Context, userID, id string) (core.Budget, error)
	// ListBudgets returns budgets newest first with the total match count.
	ListBudgets(ctx context.Context, q BudgetQuery) ([]core.Budget, int, error)
	UpdateBudget(ctx context.Context, b core.Budget) error
	DeleteBudget(ctx context.Context, userID, id string) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	// SaveUser creates or replaces the user together with all of its goals.
	SaveUser(ctx context.Context, u core.User) error
}

type RecurringStore interface {
	InsertRecurring(ctx context.Context, r core.RecurringTransaction) error
	GetRecurring(ctx context.Context, userID, id string) (core.RecurringTransaction, error)
	ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error)
	// DueRecurring returns active schedules of every user due at or before now.
	DueRecurring(ctx context.Context, now time.Time) ([]core.RecurringTransaction, error)
	UpdateRecurring(ctx context.Context, r core.RecurringTransaction) error
	DeleteRecurring(ctx context.Context, userID, id string) error
}

// Repository is the full persistence surface used by the services.
type Repository interface {
	TransactionStore
	AccountStore
	BudgetStore
	UserStore
	RecurringStore
	Close() error
}
