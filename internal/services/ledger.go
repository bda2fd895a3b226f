package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

const (
	defaultTransactionLimit = 50
	defaultRecentLimit      = 10
)

// TransactionRequest is the body of a create or update. Omitted optional
// fields take their defaults on create and keep their stored value on update.
type TransactionRequest struct {
	Type            core.TransactionType `json:"type"`
	Category        string               `json:"category"`
	Subcategory     string               `json:"subcategory"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        string               `json:"currency"`
	Date            *core.Date           `json:"date"`
	Description     string               `json:"description"`
	Notes           string               `json:"notes"`
	PaymentMethod   string               `json:"paymentMethod"`
	AccountID       string               `json:"accountId"`
	Tags            []string             `json:"tags"`
	TaxDeductible   bool                 `json:"isTaxDeductible"`
	BusinessExpense bool                 `json:"businessExpense"`
	Attachments     []string             `json:"attachments"`
}

func (r TransactionRequest) fields() core.TransactionFields {
	return core.TransactionFields{
		Type:            r.Type,
		Category:        strings.TrimSpace(r.Category),
		Subcategory:     strings.TrimSpace(r.Subcategory),
		Amount:          r.Amount,
		Currency:        strings.TrimSpace(r.Currency),
		Description:     strings.TrimSpace(r.Description),
		Notes:           strings.TrimSpace(r.Notes),
		PaymentMethod:   strings.TrimSpace(r.PaymentMethod),
		AccountID:       strings.TrimSpace(r.AccountID),
		Tags:            nonNil(r.Tags),
		TaxDeductible:   r.TaxDeductible,
		BusinessExpense: r.BusinessExpense,
		Attachments:     nonNil(r.Attachments),
	}
}

// TransactionFilter is a listing request. Page is 1-based.
type TransactionFilter struct {
	Type          core.TransactionType
	Category      string
	From          *time.Time
	To            *time.Time
	MinAmount     *decimal.Decimal
	MaxAmount     *decimal.Decimal
	PaymentMethod string
	AccountID     string
	Tags          []string
	Search        string
	SortBy        string
	Asc           bool
	Page          int
	Limit         int

	// IncludeDeleted also lists soft-deleted rows, flagged isDeleted.
	IncludeDeleted bool
}

type TransactionPage struct {
	Transactions []core.Transaction `json:"transactions"`
	Pagination   core.Pagination    `json:"pagination"`
}

// LedgerService owns the transaction lifecycle and keeps account balances
// bound to it.
type LedgerService struct {
	repo            storage.Repository
	binder          *AccountBinder
	events          notifier
	clock           Clock
	currencies      *cache.LRU[string]
	defaultCurrency string
}

// NewLedgerService wires the ledger. currencies may be nil, in which case the
// user profile is read on every create.
func NewLedgerService(repo storage.Repository, pub Publisher, clock Clock, currencies *cache.LRU[string], defaultCurrency string) *LedgerService {
	if defaultCurrency == "" {
		defaultCurrency = core.DefaultCurrency
	}
	return &LedgerService{
		repo:            repo,
		binder:          NewAccountBinder(repo),
		events:          notifier{pub: pub},
		clock:           clock,
		currencies:      currencies,
		defaultCurrency: defaultCurrency,
	}
}

func (s *LedgerService) Create(ctx context.Context, owner string, req TransactionRequest) (core.Transaction, error) {
	f := req.fields()
	if err := f.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if f.Currency == "" {
		f.Currency = s.currencyFor(ctx, owner)
	}
	if f.PaymentMethod == "" {
		f.PaymentMethod = core.DefaultPaymentMethod
	}

	now := s.clock()
	date := now
	if req.Date != nil && !req.Date.IsZero() {
		date = req.Date.UTC()
	}
	return s.record(ctx, owner, f, date)
}

// record inserts a validated transaction, binds it to its account and
// announces it. Every path that creates ledger entries goes through here.
func (s *LedgerService) record(ctx context.Context, owner string, f core.TransactionFields, date time.Time) (core.Transaction, error) {
	now := s.clock()
	t := core.Transaction{
		ID:                newID(),
		UserID:            owner,
		TransactionFields: f.Clone(),
		Date:              date,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	t.Tags = nonNil(t.Tags)
	t.Attachments = nonNil(t.Attachments)

	if err := s.repo.InsertTransaction(ctx, t); err != nil {
		return core.Transaction{}, core.Upstream("add transaction", err)
	}
	if err := s.binder.Apply(ctx, t, now); err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"user_id", owner,
		"transaction_id", t.ID,
		"type", t.Type,
		"amount", t.Amount.String())

	ev := amqp.NewEvent(amqp.EventTransactionCreated, owner, t.ID)
	ev.TransactionID = t.ID
	ev.Amount = t.Amount.String()
	s.events.notify(ctx, ev)
	return t, nil
}

// currencyFor resolves the owner's preferred currency, falling back to the
// configured default when there is no profile or it cannot be read.
func (s *LedgerService) currencyFor(ctx context.Context, owner string) string {
	load := func(ctx context.Context) (string, error) {
		u, err := s.repo.GetUser(ctx, owner)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && u.Currency == "") {
			return s.defaultCurrency, nil
		}
		if err != nil {
			return "", err
		}
		return u.Currency, nil
	}

	var (
		currency string
		err      error
	)
	if s.currencies != nil {
		currency, err = s.currencies.GetOrLoad(ctx, owner, load)
	} else {
		currency, err = load(ctx)
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to load user currency, using default",
			"user_id", owner,
			"error", err)
		return s.defaultCurrency
	}
	return currency
}

// Get returns the transaction even when it has been soft-deleted.
func (s *LedgerService) Get(ctx context.Context, owner, id string) (core.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, owner, id)
	if err != nil {
		return core.Transaction{}, storeErr("fetch transaction", "transaction", err)
	}
	return t, nil
}

// live loads a transaction that has not been deleted.
func (s *LedgerService) live(ctx context.Context, owner, id, op string) (core.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, owner, id)
	if err != nil {
		return core.Transaction{}, storeErr(op, "transaction", err)
	}
	if t.Deleted {
		return core.Transaction{}, core.NotFound("transaction")
	}
	return t, nil
}

func (s *LedgerService) List(ctx context.Context, owner string, f TransactionFilter) (TransactionPage, error) {
	if f.Type != "" && !f.Type.Valid() {
		return TransactionPage{}, core.ErrInvalidType
	}
	if f.SortBy == "" {
		f.SortBy = storage.SortDate
	}
	if !storage.ValidSortField(f.SortBy) {
		return TransactionPage{}, core.Validation("invalid sort field: " + f.SortBy)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultTransactionLimit
	}

	q := storage.TransactionQuery{
		UserID:        owner,
		Type:          f.Type,
		AccountID:     f.AccountID,
		PaymentMethod: f.PaymentMethod,
		Category:      f.Category,
		From:          f.From,
		To:            f.To,
		Search:        f.Search,
		Tags:          f.Tags,
		MinAmount:     f.MinAmount,
		MaxAmount:     f.MaxAmount,
		SortBy:        f.SortBy,
		Asc:           f.Asc,
		Offset:        (f.Page - 1) * f.Limit,
		Limit:         f.Limit,

		IncludeDeleted: f.IncludeDeleted,
	}
	items, total, err := s.repo.ListTransactions(ctx, q)
	if err != nil {
		return TransactionPage{}, core.Upstream("fetch transactions", err)
	}
	return TransactionPage{
		Transactions: nonNil(items),
		Pagination:   core.NewPagination(f.Page, f.Limit, total),
	}, nil
}

// Update replaces every field except identity and audit data. When the
// balance effect changes, the old effect is reversed and the new one applied.
func (s *LedgerService) Update(ctx context.Context, owner, id string, req TransactionRequest) (core.Transaction, error) {
	old, err := s.live(ctx, owner, id, "update transaction")
	if err != nil {
		return core.Transaction{}, err
	}

	f := req.fields()
	if f.Currency == "" {
		f.Currency = old.Currency
	}
	if f.PaymentMethod == "" {
		f.PaymentMethod = old.PaymentMethod
	}
	if err := f.Validate(); err != nil {
		return core.Transaction{}, err
	}

	now := s.clock()
	t := old
	t.TransactionFields = f
	if req.Date != nil && !req.Date.IsZero() {
		t.Date = req.Date.UTC()
	}
	t.UpdatedAt = now

	if err := s.repo.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, storeErr("update transaction", "transaction", err)
	}

	if old.AccountID != t.AccountID || !old.Signed().Equal(t.Signed()) {
		if err := s.binder.Reverse(ctx, old, now); err != nil {
			return core.Transaction{}, err
		}
		if err := s.binder.Apply(ctx, t, now); err != nil {
			return core.Transaction{}, err
		}
	}

	slog.InfoContext(ctx, "Transaction updated", "user_id", owner, "transaction_id", id)
	return t, nil
}

// Delete soft-deletes a live transaction and takes its effect off the account.
func (s *LedgerService) Delete(ctx context.Context, owner, id string) error {
	t, err := s.live(ctx, owner, id, "delete transaction")
	if err != nil {
		return err
	}
	if err := s.softDelete(ctx, t); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction deleted", "user_id", owner, "transaction_id", id)
	return nil
}

func (s *LedgerService) softDelete(ctx context.Context, t core.Transaction) error {
	now := s.clock()
	t.Deleted = true
	t.DeletedAt = &now
	t.UpdatedAt = now
	if err := s.repo.UpdateTransaction(ctx, t); err != nil {
		return storeErr("delete transaction", "transaction", err)
	}
	return s.binder.Reverse(ctx, t, now)
}

// BulkDelete soft-deletes every live transaction among ids owned by owner and
// returns how many were deleted. Unknown ids are ignored.
func (s *LedgerService) BulkDelete(ctx context.Context, owner string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, core.Validation("transaction ids are required")
	}

	matches, _, err := s.repo.ListTransactions(ctx, storage.TransactionQuery{UserID: owner, IDs: ids})
	if err != nil {
		return 0, core.Upstream("delete transactions", err)
	}

	deleted := 0
	for _, t := range matches {
		if err := s.softDelete(ctx, t); err != nil {
			return deleted, err
		}
		deleted++
	}

	slog.InfoContext(ctx, "Transactions bulk deleted",
		"user_id", owner,
		"requested", len(ids),
		"deleted", deleted)
	return deleted, nil
}

// Duplicate records a copy of a live transaction dated now.
func (s *LedgerService) Duplicate(ctx context.Context, owner, id string) (core.Transaction, error) {
	src, err := s.live(ctx, owner, id, "duplicate transaction")
	if err != nil {
		return core.Transaction{}, err
	}
	return s.record(ctx, owner, src.TransactionFields, s.clock())
}

// Recent returns the newest live transactions by event date.
func (s *LedgerService) Recent(ctx context.Context, owner string, limit int) ([]core.Transaction, error) {
	if limit < 1 {
		limit = defaultRecentLimit
	}
	items, _, err := s.repo.ListTransactions(ctx, storage.TransactionQuery{
		UserID: owner,
		SortBy: storage.SortDate,
		Limit:  limit,
	})
	if err != nil {
		return nil, core.Upstream("fetch recent transactions", err)
	}
	return nonNil(items), nil
}
