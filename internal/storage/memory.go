package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// MemoryRepository keeps everything in maps guarded by one lock. Values are
// copied in and out so callers never share slices with the store.
type MemoryRepository struct {
	mu           sync.RWMutex
	transactions map[string]core.Transaction
	mirror       map[string]string
	accounts     map[string]core.Account
	budgets      map[string]core.Budget
	users        map[string]core.User
	recurring    map[string]core.RecurringTransaction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		transactions: make(map[string]core.Transaction),
		mirror:       make(map[string]string),
		accounts:     make(map[string]core.Account),
		budgets:      make(map[string]core.Budget),
		users:        make(map[string]core.User),
		recurring:    make(map[string]core.RecurringTransaction),
	}
}

func (m *MemoryRepository) Close() error { return nil }

func cloneTransaction(t core.Transaction) core.Transaction {
	t.TransactionFields = t.TransactionFields.Clone()
	if t.DeletedAt != nil {
		at := *t.DeletedAt
		t.DeletedAt = &at
	}
	return t
}

func cloneBudget(b core.Budget) core.Budget {
	b.Categories = slices.Clone(b.Categories)
	return b
}

func cloneUser(u core.User) core.User {
	u.Goals = slices.Clone(u.Goals)
	return u
}

func cloneRecurring(r core.RecurringTransaction) core.RecurringTransaction {
	r.Template = r.Template.Clone()
	if r.EndDate != nil {
		end := *r.EndDate
		r.EndDate = &end
	}
	return r
}

func (m *MemoryRepository) InsertTransaction(_ context.Context, t core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[t.ID] = cloneTransaction(t)
	m.mirror[t.ID] = MirrorPending
	return nil
}

func (m *MemoryRepository) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transactions[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (m *MemoryRepository) UpdateTransaction(_ context.Context, t core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.transactions[t.ID]
	if !ok || old.UserID != t.UserID {
		return ErrNotFound
	}
	m.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (m *MemoryRepository) matching(q TransactionQuery) []core.Transaction {
	var out []core.Transaction
	for _, t := range m.transactions {
		if q.Matches(t) {
			out = append(out, cloneTransaction(t))
		}
	}
	slices.SortFunc(out, q.compare)
	return out
}

func (m *MemoryRepository) ListTransactions(_ context.Context, q TransactionQuery) ([]core.Transaction, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.matching(q)
	return page(all, q.Offset, q.Limit), len(all), nil
}

func (m *MemoryRepository) CountTransactions(_ context.Context, q TransactionQuery) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.transactions {
		if q.Matches(t) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) PendingMirror(_ context.Context, limit int) ([]core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Transaction
	for id, status := range m.mirror {
		t := m.transactions[id]
		if status == MirrorPending && !t.Deleted {
			out = append(out, cloneTransaction(t))
		}
	}
	slices.SortFunc(out, func(a, b core.Transaction) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return page(out, 0, limit), nil
}

func (m *MemoryRepository) SetMirrorStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[id]; !ok {
		return ErrNotFound
	}
	m.mirror[id] = status
	return nil
}

// MirrorStatus is a test helper exposing the mirror state of id.
func (m *MemoryRepository) MirrorStatus(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mirror[id]
}

func (m *MemoryRepository) InsertAccount(_ context.Context, a core.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *MemoryRepository) GetAccount(_ context.Context, userID, id string) (core.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return core.Account{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryRepository) ListAccounts(_ context.Context, userID string) ([]core.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b core.Account) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) UpdateAccount(_ context.Context, a core.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.accounts[a.ID]
	if !ok || old.UserID != a.UserID {
		return ErrNotFound
	}
	m.accounts[a.ID] = a
	return nil
}

func (m *MemoryRepository) AdjustBalance(_ context.Context, userID, id string, delta decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = at
	m.accounts[id] = a
	return nil
}

func (m *MemoryRepository) DeleteAccount(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *MemoryRepository) InsertBudget(_ context.Context, b core.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[b.ID] = cloneBudget(b)
	return nil
}

func (m *MemoryRepository) GetBudget(_ context.Context, userID, id string) (core.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[id]
	if !ok || b.UserID != userID {
		return core.Budget{}, ErrNotFound
	}
	return cloneBudget(b), nil
}

func (m *MemoryRepository) ListBudgets(_ context.Context, q BudgetQuery) ([]core.Budget, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Budget
	for _, b := range m.budgets {
		if b.UserID != q.UserID {
			continue
		}
		if q.Active != nil && b.Active != *q.Active {
			continue
		}
		if q.Period != "" && b.Period != q.Period {
			continue
		}
		out = append(out, cloneBudget(b))
	}
	slices.SortFunc(out, func(a, b core.Budget) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(out, q.Offset, q.Limit), len(out), nil
}

func (m *MemoryRepository) UpdateBudget(_ context.Context, b core.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.budgets[b.ID]
	if !ok || old.UserID != b.UserID {
		return ErrNotFound
	}
	m.budgets[b.ID] = cloneBudget(b)
	return nil
}

func (m *MemoryRepository) DeleteBudget(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[id]
	if !ok || b.UserID != userID {
		return ErrNotFound
	}
	delete(m.budgets, id)
	return nil
}

func (m *MemoryRepository) GetUser(_ context.Context, id string) (core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return core.User{}, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryRepository) SaveUser(_ context.Context, u core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *MemoryRepository) InsertRecurring(_ context.Context, r core.RecurringTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recurring[r.ID] = cloneRecurring(r)
	return nil
}

func (m *MemoryRepository) GetRecurring(_ context.Context, userID, id string) (core.RecurringTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recurring[id]
	if !ok || r.UserID != userID {
		return core.RecurringTransaction{}, ErrNotFound
	}
	return cloneRecurring(r), nil
}

func (m *MemoryRepository) ListRecurring(_ context.Context, userID string) ([]core.RecurringTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.RecurringTransaction
	for _, r := range m.recurring {
		if r.UserID == userID {
			out = append(out, cloneRecurring(r))
		}
	}
	slices.SortFunc(out, func(a, b core.RecurringTransaction) int { return a.NextDueDate.Compare(b.NextDueDate) })
	return out, nil
}

func (m *MemoryRepository) DueRecurring(_ context.Context, now time.Time) ([]core.RecurringTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.RecurringTransaction
	for _, r := range m.recurring {
		if r.Active && !r.NextDueDate.After(now) {
			out = append(out, cloneRecurring(r))
		}
	}
	slices.SortFunc(out, func(a, b core.RecurringTransaction) int { return a.NextDueDate.Compare(b.NextDueDate) })
	return out, nil
}

func (m *MemoryRepository) UpdateRecurring(_ context.Context, r core.RecurringTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.recurring[r.ID]
	if !ok || old.UserID != r.UserID {
		return ErrNotFound
	}
	m.recurring[r.ID] = cloneRecurring(r)
	return nil
}

func (m *MemoryRepository) DeleteRecurring(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recurring[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	delete(m.recurring, id)
	return nil
}

// page slices items to [offset, offset+limit). A non-positive limit means all.
func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[max(offset, 0):]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
