package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

const accountColumns = `id, user_id, name, type, balance, currency, bank_name, account_number,
	is_active, auto_sync, created_at, updated_at`

func scanAccount(s rowScanner) (core.Account, error) {
	var (
		a                  core.Account
		active, autoSync   int
		createdAt, updated int64
	)
	if err := s.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.Currency, &a.BankName,
		&a.AccountNumber, &active, &autoSync, &createdAt, &updated); err != nil {
		return core.Account{}, err
	}
	a.Active = active == 1
	a.AutoSync = autoSync == 1
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updated)
	return a, nil
}

func (r *SQLiteRepository) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Type, a.Balance, a.Currency, a.BankName, a.AccountNumber,
		boolInt(a.Active), boolInt(a.AutoSync), toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, userID, id string) (core.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET
		name = ?, type = ?, balance = ?, currency = ?, bank_name = ?, account_number = ?,
		is_active = ?, auto_sync = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		a.Name, a.Type, a.Balance, a.Currency, a.BankName, a.AccountNumber,
		boolInt(a.Active), boolInt(a.AutoSync), toMillis(a.UpdatedAt), a.ID, a.UserID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return checkAffected(res)
}

// AdjustBalance reads and rewrites the balance inside one transaction so that
// concurrent adjustments never lose an update.
func (r *SQLiteRepository) AdjustBalance(ctx context.Context, userID, id string, delta decimal.Decimal, at time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var balance decimal.Decimal
		err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ? AND user_id = ?`, id, userID).
			Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`,
			balance.Add(delta), toMillis(at), id); err != nil {
			return fmt.Errorf("write balance: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return checkAffected(res)
}

const budgetColumns = `id, user_id, name, period, total_budget, start_date, end_date, is_active, created_at, updated_at`

func scanBudget(s rowScanner) (core.Budget, error) {
	var (
		b                                    core.Budget
		active                               int
		start, end, createdAt, updatedAtMSec int64
	)
	if err := s.Scan(&b.ID, &b.UserID, &b.Name, &b.Period, &b.TotalBudget, &start, &end, &active,
		&createdAt, &updatedAtMSec); err != nil {
		return core.Budget{}, err
	}
	b.StartDate = fromMillis(start)
	b.EndDate = fromMillis(end)
	b.Active = active == 1
	b.CreatedAt = fromMillis(createdAt)
	b.UpdatedAt = fromMillis(updatedAtMSec)
	return b, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadCategories(ctx context.Context, q querier, budgetID string) ([]core.CategoryAllocation, error) {
	rows, err := q.QueryContext(ctx, `SELECT category, budget_amount, spent, remaining
		FROM budget_categories WHERE budget_id = ? ORDER BY position`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("load budget categories: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryAllocation
	for rows.Next() {
		var c core.CategoryAllocation
		if err := rows.Scan(&c.Category, &c.BudgetAmount, &c.Spent, &c.Remaining); err != nil {
			return nil, fmt.Errorf("scan budget category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func writeCategories(ctx context.Context, q querier, b core.Budget) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM budget_categories WHERE budget_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clear budget categories: %w", err)
	}
	for i, c := range b.Categories {
		if _, err := q.ExecContext(ctx, `INSERT INTO budget_categories
			(budget_id, position, category, budget_amount, spent, remaining) VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, i, c.Category, c.BudgetAmount, c.Spent, c.Remaining); err != nil {
			return fmt.Errorf("insert budget category: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) InsertBudget(ctx context.Context, b core.Budget) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO budgets (`+budgetColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.UserID, b.Name, b.Period, b.TotalBudget, toMillis(b.StartDate), toMillis(b.EndDate),
			boolInt(b.Active), toMillis(b.CreatedAt), toMillis(b.UpdatedAt)); err != nil {
			return fmt.Errorf("insert budget: %w", err)
		}
		return writeCategories(ctx, tx, b)
	})
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, userID, id string) (core.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	if b.Categories, err = loadCategories(ctx, r.db, b.ID); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, q BudgetQuery) ([]core.Budget, int, error) {
	where := "user_id = ?"
	args := []any{q.UserID}
	if q.Active != nil {
		where += " AND is_active = ?"
		args = append(args, boolInt(*q.Active))
	}
	if q.Period != "" {
		where += " AND period = ?"
		args = append(args, q.Period)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM budgets WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count budgets: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE `+where+
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`, append(args, limit, max(q.Offset, 0))...)
	if err != nil {
		return nil, 0, fmt.Errorf("list budgets: %w", err)
	}
	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate budgets: %w", err)
	}

	for i := range out {
		if out[i].Categories, err = loadCategories(ctx, r.db, out[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE budgets SET
			name = ?, period = ?, total_budget = ?, start_date = ?, end_date = ?, is_active = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			b.Name, b.Period, b.TotalBudget, toMillis(b.StartDate), toMillis(b.EndDate), boolInt(b.Active),
			toMillis(b.UpdatedAt), b.ID, b.UserID)
		if err != nil {
			return fmt.Errorf("update budget: %w", err)
		}
		if err := checkAffected(res); err != nil {
			return err
		}
		return writeCategories(ctx, tx, b)
	})
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return fmt.Errorf("delete budget: %w", err)
		}
		if err := checkAffected(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM budget_categories WHERE budget_id = ?`, id); err != nil {
			return fmt.Errorf("delete budget categories: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var (
		u                  core.User
		createdAt, updated int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, currency, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Currency, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updated)

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, target_amount, current_amount, target_date, category
		FROM goals WHERE user_id = ? ORDER BY position`, id)
	if err != nil {
		return core.User{}, fmt.Errorf("load goals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			g      core.Goal
			target int64
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &target, &g.Category); err != nil {
			return core.User{}, fmt.Errorf("scan goal: %w", err)
		}
		g.TargetDate = fromMillis(target)
		u.Goals = append(u.Goals, g)
	}
	return u, rows.Err()
}

// SaveUser upserts the user row and rewrites its goals in one transaction.
func (r *SQLiteRepository) SaveUser(ctx context.Context, u core.User) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id, currency, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET currency = excluded.currency, updated_at = excluded.updated_at`,
			u.ID, u.Currency, toMillis(u.CreatedAt), toMillis(u.UpdatedAt)); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ?`, u.ID); err != nil {
			return fmt.Errorf("clear goals: %w", err)
		}
		for i, g := range u.Goals {
			if _, err := tx.ExecContext(ctx, `INSERT INTO goals
				(id, user_id, position, name, target_amount, current_amount, target_date, category)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				g.ID, u.ID, i, g.Name, g.TargetAmount, g.CurrentAmount, toMillis(g.TargetDate), g.Category); err != nil {
				return fmt.Errorf("insert goal: %w", err)
			}
		}
		return nil
	})
}

const recurringColumns = `id, user_id, template, frequency, next_due_date, end_date, is_active, created_at, updated_at`

func scanRecurring(s rowScanner) (core.RecurringTransaction, error) {
	var (
		rt                      core.RecurringTransaction
		template                string
		next, createdAt, update int64
		end                     sql.NullInt64
		active                  int
	)
	if err := s.Scan(&rt.ID, &rt.UserID, &template, &rt.Frequency, &next, &end, &active, &createdAt, &update); err != nil {
		return core.RecurringTransaction{}, err
	}
	if err := json.Unmarshal([]byte(template), &rt.Template); err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("decode template: %w", err)
	}
	rt.NextDueDate = fromMillis(next)
	rt.EndDate = timePtr(end)
	rt.Active = active == 1
	rt.CreatedAt = fromMillis(createdAt)
	rt.UpdatedAt = fromMillis(update)
	return rt, nil
}

func (r *SQLiteRepository) queryRecurring(ctx context.Context, where string, args ...any) ([]core.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions WHERE `+
		where+` ORDER BY next_due_date ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringTransaction
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertRecurring(ctx context.Context, rt core.RecurringTransaction) error {
	template, err := json.Marshal(rt.Template)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO recurring_transactions (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID, rt.UserID, string(template), rt.Frequency, toMillis(rt.NextDueDate), nullMillis(rt.EndDate),
		boolInt(rt.Active), toMillis(rt.CreatedAt), toMillis(rt.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert recurring transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, userID, id string) (core.RecurringTransaction, error) {
	rt, err := scanRecurring(r.db.QueryRowContext(ctx, `SELECT `+recurringColumns+`
		FROM recurring_transactions WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTransaction{}, ErrNotFound
	}
	if err != nil {
		return core.RecurringTransaction{}, fmt.Errorf("get recurring transaction: %w", err)
	}
	return rt, nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error) {
	return r.queryRecurring(ctx, "user_id = ?", userID)
}

func (r *SQLiteRepository) DueRecurring(ctx context.Context, now time.Time) ([]core.RecurringTransaction, error) {
	return r.queryRecurring(ctx, "is_active = 1 AND next_due_date <= ?", toMillis(now))
}

func (r *SQLiteRepository) UpdateRecurring(ctx context.Context, rt core.RecurringTransaction) error {
	template, err := json.Marshal(rt.Template)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE recurring_transactions SET
		template = ?, frequency = ?, next_due_date = ?, end_date = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		string(template), rt.Frequency, toMillis(rt.NextDueDate), nullMillis(rt.EndDate), boolInt(rt.Active),
		toMillis(rt.UpdatedAt), rt.ID, rt.UserID)
	if err != nil {
		return fmt.Errorf("update recurring transaction: %w", err)
	}
	return checkAffected(res)
}

func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring transaction: %w", err)
	}
	return checkAffected(res)
}
