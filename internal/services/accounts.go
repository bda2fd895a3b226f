package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

const recentAccountTransactions = 10

type AccountService struct {
	repo            storage.Repository
	clock           Clock
	defaultCurrency string
}

func NewAccountService(repo storage.Repository, clock Clock, defaultCurrency string) *AccountService {
	if defaultCurrency == "" {
		defaultCurrency = core.DefaultCurrency
	}
	return &AccountService{repo: repo, clock: clock, defaultCurrency: defaultCurrency}
}

type CreateAccountRequest struct {
	Name          string           `json:"name"`
	Type          core.AccountType `json:"type"`
	Balance       decimal.Decimal  `json:"balance"`
	Currency      string           `json:"currency"`
	BankName      string           `json:"bankName"`
	AccountNumber string           `json:"accountNumber"`
	AutoSync      bool             `json:"autoSync"`
}

// UpdateAccountRequest changes only the fields that are set. The balance is
// deliberately absent; use OverrideBalance.
type UpdateAccountRequest struct {
	Name          *string           `json:"name"`
	Type          *core.AccountType `json:"type"`
	Currency      *string           `json:"currency"`
	BankName      *string           `json:"bankName"`
	AccountNumber *string           `json:"accountNumber"`
	Active        *bool             `json:"isActive"`
	AutoSync      *bool             `json:"autoSync"`
}

type AccountFilter struct {
	Type   core.AccountType
	Active *bool
}

type AccountList struct {
	Accounts       []core.Account             `json:"accounts"`
	BalanceSummary map[string]decimal.Decimal `json:"balanceSummary"`
	TotalAccounts  int                        `json:"totalAccounts"`
}

type AccountDetails struct {
	Account            core.Account           `json:"account"`
	RecentTransactions []core.Transaction     `json:"recentTransactions"`
	Statistics         core.AccountStatistics `json:"statistics"`
}

// BalanceChange reports an override. Adjustment is set when a reconciling
// transaction was recorded.
type BalanceChange struct {
	Account    core.Account      `json:"account"`
	OldBalance decimal.Decimal   `json:"oldBalance"`
	NewBalance decimal.Decimal   `json:"newBalance"`
	Difference decimal.Decimal   `json:"difference"`
	Adjustment *core.Transaction `json:"adjustment,omitempty"`
}

func (s *AccountService) Create(ctx context.Context, owner string, req CreateAccountRequest) (core.Account, error) {
	now := s.clock()
	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	a := core.Account{
		ID:            newID(),
		UserID:        owner,
		Name:          strings.TrimSpace(req.Name),
		Type:          req.Type,
		Balance:       req.Balance,
		Currency:      currency,
		BankName:      strings.TrimSpace(req.BankName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Active:        true,
		AutoSync:      req.AutoSync,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if err := s.repo.InsertAccount(ctx, a); err != nil {
		return core.Account{}, core.Upstream("add account", err)
	}

	slog.InfoContext(ctx, "Account created", "user_id", owner, "account_id", a.ID, "type", a.Type)
	return a, nil
}

func (s *AccountService) List(ctx context.Context, owner string, f AccountFilter) (AccountList, error) {
	all, err := s.repo.ListAccounts(ctx, owner)
	if err != nil {
		return AccountList{}, core.Upstream("fetch accounts", err)
	}

	out := AccountList{Accounts: []core.Account{}, BalanceSummary: map[string]decimal.Decimal{}}
	for _, a := range all {
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Active != nil && a.Active != *f.Active {
			continue
		}
		out.Accounts = append(out.Accounts, a)
		out.BalanceSummary[a.Currency] = out.BalanceSummary[a.Currency].Add(a.Balance)
	}
	out.TotalAccounts = len(out.Accounts)
	return out, nil
}

func (s *AccountService) Get(ctx context.Context, owner, id string) (AccountDetails, error) {
	a, err := s.repo.GetAccount(ctx, owner, id)
	if err != nil {
		return AccountDetails{}, storeErr("fetch account details", "account", err)
	}

	q := storage.TransactionQuery{UserID: owner, AccountID: id}
	all, _, err := s.repo.ListTransactions(ctx, q)
	if err != nil {
		return AccountDetails{}, core.Upstream("fetch account details", err)
	}

	stats := core.AccountStatistics{TransactionCount: len(all)}
	for _, t := range all {
		switch t.Type {
		case core.Income:
			stats.TotalIncome = stats.TotalIncome.Add(t.Amount)
		case core.Expense:
			stats.TotalExpense = stats.TotalExpense.Add(t.Amount)
		}
	}
	stats.NetFlow = stats.TotalIncome.Sub(stats.TotalExpense)

	recent := all
	if len(recent) > recentAccountTransactions {
		recent = recent[:recentAccountTransactions]
	}
	return AccountDetails{Account: a, RecentTransactions: nonNil(recent), Statistics: stats}, nil
}

func (s *AccountService) Update(ctx context.Context, owner, id string, req UpdateAccountRequest) (core.Account, error) {
	a, err := s.repo.GetAccount(ctx, owner, id)
	if err != nil {
		return core.Account{}, storeErr("update account", "account", err)
	}

	if req.Name != nil {
		a.Name = strings.TrimSpace(*req.Name)
	}
	if req.Type != nil {
		a.Type = *req.Type
	}
	if req.Currency != nil {
		a.Currency = *req.Currency
	}
	if req.BankName != nil {
		a.BankName = strings.TrimSpace(*req.BankName)
	}
	if req.AccountNumber != nil {
		a.AccountNumber = strings.TrimSpace(*req.AccountNumber)
	}
	if req.Active != nil {
		a.Active = *req.Active
	}
	if req.AutoSync != nil {
		a.AutoSync = *req.AutoSync
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}

	a.UpdatedAt = s.clock()
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return core.Account{}, storeErr("update account", "account", err)
	}
	return a, nil
}

// Delete refuses while any live transaction still references the account.
func (s *AccountService) Delete(ctx context.Context, owner, id string) error {
	n, err := s.repo.CountTransactions(ctx, storage.TransactionQuery{UserID: owner, AccountID: id})
	if err != nil {
		return core.Upstream("delete account", err)
	}
	if n > 0 {
		return core.Conflict(fmt.Sprintf(
			"Cannot delete account with %d transactions. Please delete transactions first or transfer them to another account.", n), n)
	}

	if err := s.repo.DeleteAccount(ctx, owner, id); err != nil {
		return storeErr("delete account", "account", err)
	}

	slog.InfoContext(ctx, "Account deleted", "user_id", owner, "account_id", id)
	return nil
}

// OverrideBalance sets the balance directly. When the change exceeds one cent
// and a reason is given, a "Balance Adjustment" transaction records it. That
// transaction is not applied to the balance again.
func (s *AccountService) OverrideBalance(ctx context.Context, owner, id string, balance decimal.Decimal, reason string) (BalanceChange, error) {
	a, err := s.repo.GetAccount(ctx, owner, id)
	if err != nil {
		return BalanceChange{}, storeErr("update account balance", "account", err)
	}

	now := s.clock()
	change := BalanceChange{
		OldBalance: a.Balance,
		NewBalance: balance,
		Difference: balance.Sub(a.Balance),
	}

	a.Balance = balance
	a.UpdatedAt = now
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return BalanceChange{}, storeErr("update account balance", "account", err)
	}
	change.Account = a

	reason = strings.TrimSpace(reason)
	if change.Difference.Abs().GreaterThan(core.BalanceEpsilon) && reason != "" {
		typ := core.Expense
		if change.Difference.IsPositive() {
			typ = core.Income
		}
		adj := core.Transaction{
			ID:     newID(),
			UserID: owner,
			TransactionFields: core.TransactionFields{
				Type:          typ,
				Category:      core.CategoryBalanceAdjustment,
				Amount:        change.Difference.Abs(),
				Currency:      a.Currency,
				Description:   reason,
				PaymentMethod: core.DefaultPaymentMethod,
				AccountID:     id,
				Tags:          []string{},
				Attachments:   []string{},
			},
			Date:      now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.InsertTransaction(ctx, adj); err != nil {
			return BalanceChange{}, core.Upstream("record balance adjustment", err)
		}
		change.Adjustment = &adj
	}

	slog.InfoContext(ctx, "Account balance overridden",
		"user_id", owner,
		"account_id", id,
		"old_balance", change.OldBalance.String(),
		"new_balance", change.NewBalance.String(),
		"adjusted", change.Adjustment != nil)
	return change, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
