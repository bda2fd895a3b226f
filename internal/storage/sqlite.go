package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations first so the repository never sees a partial schema.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; callers must finish reading rows before issuing
	// the next statement.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction and commits when it returns nil.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeList(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func escapeLike(s string) string {
	return "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s) + "%"
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const transactionColumns = `id, user_id, type, category, subcategory, amount, currency, description, notes,
	payment_method, account_id, tags, tax_deductible, business_expense, attachments, date,
	is_deleted, deleted_at, created_at, updated_at`

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                         core.Transaction
		tags, attachments         string
		taxDeductible, business   int
		deleted                   int
		date, createdAt, updateAt int64
		deletedAt                 sql.NullInt64
	)
	err := s.Scan(&t.ID, &t.UserID, &t.Type, &t.Category, &t.Subcategory, &t.Amount, &t.Currency,
		&t.Description, &t.Notes, &t.PaymentMethod, &t.AccountID, &tags, &taxDeductible, &business,
		&attachments, &date, &deleted, &deletedAt, &createdAt, &updateAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Tags, err = decodeList(tags); err != nil {
		return core.Transaction{}, err
	}
	if t.Attachments, err = decodeList(attachments); err != nil {
		return core.Transaction{}, err
	}
	t.TaxDeductible = taxDeductible == 1
	t.BusinessExpense = business == 1
	t.Deleted = deleted == 1
	t.DeletedAt = timePtr(deletedAt)
	t.Date = fromMillis(date)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updateAt)
	return t, nil
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Type, t.Category, t.Subcategory, t.Amount, t.Currency, t.Description, t.Notes,
		t.PaymentMethod, t.AccountID, encodeList(t.Tags), boolInt(t.TaxDeductible), boolInt(t.BusinessExpense),
		encodeList(t.Attachments), toMillis(t.Date), boolInt(t.Deleted), nullMillis(t.DeletedAt),
		toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"type", t.Type,
		"amount", t.Amount.String())
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET
		type = ?, category = ?, subcategory = ?, amount = ?, currency = ?, description = ?, notes = ?,
		payment_method = ?, account_id = ?, tags = ?, tax_deductible = ?, business_expense = ?,
		attachments = ?, date = ?, is_deleted = ?, deleted_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		t.Type, t.Category, t.Subcategory, t.Amount, t.Currency, t.Description, t.Notes,
		t.PaymentMethod, t.AccountID, encodeList(t.Tags), boolInt(t.TaxDeductible), boolInt(t.BusinessExpense),
		encodeList(t.Attachments), toMillis(t.Date), boolInt(t.Deleted), nullMillis(t.DeletedAt),
		toMillis(t.UpdatedAt), t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return checkAffected(res)
}

var sortColumns = map[string]string{
	SortDate:        "date",
	SortAmount:      "CAST(amount AS REAL)",
	SortCategory:    "category",
	SortType:        "type",
	SortDescription: "description",
	SortCreatedAt:   "created_at",
}

// transactionWhere renders q as a WHERE clause. The SQL mirrors Matches.
func transactionWhere(q TransactionQuery) (string, []any) {
	conds := []string{"1 = 1"}
	var args []any

	if q.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, q.UserID)
	}
	if !q.IncludeDeleted {
		conds = append(conds, "is_deleted = 0")
	}
	if len(q.IDs) > 0 {
		conds = append(conds, "id IN ("+placeholders(len(q.IDs))+")")
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}
	if q.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, q.Type)
	}
	if q.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, q.AccountID)
	}
	if q.PaymentMethod != "" {
		conds = append(conds, "payment_method = ?")
		args = append(args, q.PaymentMethod)
	}
	if q.Category != "" {
		conds = append(conds, `category LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(q.Category))
	}
	if len(q.Categories) > 0 {
		conds = append(conds, "category IN ("+placeholders(len(q.Categories))+")")
		for _, c := range q.Categories {
			args = append(args, c)
		}
	}
	if q.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, toMillis(*q.From))
	}
	if q.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, toMillis(*q.To))
	}
	if q.Search != "" {
		like := escapeLike(q.Search)
		conds = append(conds, `(description LIKE ? ESCAPE '\' OR notes LIKE ? ESCAPE '\' OR category LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if len(q.Tags) > 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(transactions.tags) WHERE json_each.value IN ("+placeholders(len(q.Tags))+"))")
		for _, tag := range q.Tags {
			args = append(args, tag)
		}
	}
	if q.MinAmount != nil {
		conds = append(conds, "CAST(amount AS REAL) >= ?")
		args = append(args, q.MinAmount.InexactFloat64())
	}
	if q.MaxAmount != nil {
		conds = append(conds, "CAST(amount AS REAL) <= ?")
		args = append(args, q.MaxAmount.InexactFloat64())
	}
	return strings.Join(conds, " AND "), args
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, q TransactionQuery) ([]core.Transaction, int, error) {
	total, err := r.CountTransactions(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	where, args := transactionWhere(q)
	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = sortColumns[SortDate]
	}
	dir := "DESC"
	if q.Asc {
		dir = "ASC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY %s %s, created_at %s LIMIT ? OFFSET ?`,
		transactionColumns, where, col, dir, dir)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, max(q.Offset, 0))...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, total, nil
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context, q TransactionQuery) (int, error) {
	where, args := transactionWhere(q)
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) PendingMirror(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE mirror_status = ? AND is_deleted = 0 ORDER BY created_at ASC LIMIT ?`, MirrorPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending mirror transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetMirrorStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET mirror_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set mirror status: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Transaction mirror status updated", "id", id, "status", status)
	return nil
}
