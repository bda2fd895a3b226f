package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

// DateRange bounds an analytics query. Nil ends are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

type Report struct {
	Overview          core.Overview        `json:"overview"`
	Timeline          []core.TimelineRow   `json:"timeline"`
	CategoryBreakdown []core.CategoryTotal `json:"categoryBreakdown"`
	GroupBy           core.Granularity     `json:"groupBy"`
}

// Analytics derives read-only rollups from the live ledger. Nothing it
// computes is stored.
type Analytics struct {
	ledger storage.TransactionStore
}

func NewAnalytics(ledger storage.TransactionStore) *Analytics {
	return &Analytics{ledger: ledger}
}

func (a *Analytics) load(ctx context.Context, owner string, r DateRange) ([]core.Transaction, error) {
	items, _, err := a.ledger.ListTransactions(ctx, storage.TransactionQuery{
		UserID: owner,
		From:   r.From,
		To:     r.To,
		SortBy: storage.SortDate,
		Asc:    true,
	})
	if err != nil {
		return nil, core.Upstream("fetch analytics", err)
	}
	return items, nil
}

func (a *Analytics) Timeline(ctx context.Context, owner string, r DateRange, g core.Granularity) ([]core.TimelineRow, error) {
	if err := validGranularity(&g); err != nil {
		return nil, err
	}
	items, err := a.load(ctx, owner, r)
	if err != nil {
		return nil, err
	}
	return Timeline(items, g), nil
}

func (a *Analytics) CategoryBreakdown(ctx context.Context, owner string, r DateRange) ([]core.CategoryTotal, error) {
	items, err := a.load(ctx, owner, r)
	if err != nil {
		return nil, err
	}
	return CategoryBreakdown(items), nil
}

func (a *Analytics) Overview(ctx context.Context, owner string, r DateRange) (core.Overview, error) {
	items, err := a.load(ctx, owner, r)
	if err != nil {
		return core.Overview{}, err
	}
	return Overview(items), nil
}

// Report computes all three rollups from a single ledger read.
func (a *Analytics) Report(ctx context.Context, owner string, r DateRange, g core.Granularity) (Report, error) {
	if err := validGranularity(&g); err != nil {
		return Report{}, err
	}
	items, err := a.load(ctx, owner, r)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Overview:          Overview(items),
		Timeline:          Timeline(items, g),
		CategoryBreakdown: CategoryBreakdown(items),
		GroupBy:           g,
	}, nil
}

func validGranularity(g *core.Granularity) error {
	if *g == "" {
		*g = core.BucketMonth
	}
	if !g.Valid() {
		return core.Validation("groupBy must be one of: day, week, month, year")
	}
	return nil
}

// BucketKey labels the bucket containing t. Weeks follow ISO 8601 numbering
// and all buckets are computed in UTC.
func BucketKey(t time.Time, g core.Granularity) string {
	t = t.UTC()
	switch g {
	case core.BucketDay:
		return t.Format(time.DateOnly)
	case core.BucketWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case core.BucketYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01")
	}
}

// Timeline groups transactions into buckets sorted by key. A bucket holding
// only transfers still gets a row with zero income and expense.
func Timeline(items []core.Transaction, g core.Granularity) []core.TimelineRow {
	rows := map[string]*core.TimelineRow{}
	for _, t := range items {
		key := BucketKey(t.Date, g)
		row, ok := rows[key]
		if !ok {
			row = &core.TimelineRow{Period: key}
			rows[key] = row
		}
		switch t.Type {
		case core.Income:
			row.Income = row.Income.Add(t.Amount)
			row.IncomeCount++
		case core.Expense:
			row.Expense = row.Expense.Add(t.Amount)
			row.ExpenseCount++
		}
	}

	out := make([]core.TimelineRow, 0, len(rows))
	for _, row := range rows {
		row.Profit = row.Income.Sub(row.Expense)
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b core.TimelineRow) int { return strings.Compare(a.Period, b.Period) })
	return out
}

// CategoryBreakdown totals transactions per (category, type), largest first.
func CategoryBreakdown(items []core.Transaction) []core.CategoryTotal {
	type key struct {
		category string
		typ      core.TransactionType
	}
	totals := map[key]*core.CategoryTotal{}
	for _, t := range items {
		k := key{t.Category, t.Type}
		ct, ok := totals[k]
		if !ok {
			ct = &core.CategoryTotal{Category: t.Category, Type: t.Type}
			totals[k] = ct
		}
		ct.TotalAmount = ct.TotalAmount.Add(t.Amount)
		ct.Count++
	}

	out := make([]core.CategoryTotal, 0, len(totals))
	for _, ct := range totals {
		out = append(out, *ct)
	}
	slices.SortFunc(out, func(a, b core.CategoryTotal) int {
		if c := b.TotalAmount.Cmp(a.TotalAmount); c != 0 {
			return c
		}
		return cmp.Or(strings.Compare(a.Category, b.Category), strings.Compare(string(a.Type), string(b.Type)))
	})
	return out
}

// Overview totals income and expense. The savings rate is zero when there is
// no income.
func Overview(items []core.Transaction) core.Overview {
	income, expense := decimal.Zero, decimal.Zero
	for _, t := range items {
		switch t.Type {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expense = expense.Add(t.Amount)
		}
	}
	net := income.Sub(expense)
	return core.Overview{
		TotalIncome:  income,
		TotalExpense: expense,
		NetProfit:    net,
		SavingsRate:  core.Round2(core.Percent(net, income)),
	}
}
