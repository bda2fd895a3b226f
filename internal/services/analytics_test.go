package services

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketKey(t *testing.T) {
	tests := []struct {
		at   time.Time
		g    core.Granularity
		want string
	}{
		{day(2024, 3, 5), core.BucketDay, "2024-03-05"},
		{day(2024, 3, 5), core.BucketMonth, "2024-03"},
		{day(2024, 3, 5), core.BucketYear, "2024"},
		{day(2024, 3, 5), core.BucketWeek, "2024-W10"},
		{day(2021, 1, 3), core.BucketWeek, "2020-W53"},
		{day(2024, 12, 30), core.BucketWeek, "2025-W01"},
		{time.Date(2024, 3, 31, 23, 0, 0, 0, time.FixedZone("UTC-5", -5*3600)), core.BucketMonth, "2024-04"},
	}
	for _, tt := range tests {
		t.Run(string(tt.g)+" "+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketKey(tt.at, tt.g))
		})
	}
}

func entry(typ core.TransactionType, category, amount string, at time.Time) core.Transaction {
	return core.Transaction{
		TransactionFields: core.TransactionFields{Type: typ, Category: category, Amount: dec(amount)},
		Date:              at,
	}
}

func TestTimeline(t *testing.T) {
	items := []core.Transaction{
		entry(core.Income, "Salary", "1000", day(2024, 1, 31)),
		entry(core.Expense, "Food", "200", day(2024, 1, 2)),
		entry(core.Expense, "Food", "50", day(2024, 1, 20)),
		entry(core.Transfer, "Move", "500", day(2024, 2, 10)),
		entry(core.Expense, "Rent", "900", day(2024, 3, 1)),
	}

	rows := Timeline(items, core.BucketMonth)
	require.Len(t, rows, 3)

	assert.Equal(t, "2024-01", rows[0].Period)
	assertDec(t, "1000", rows[0].Income)
	assertDec(t, "250", rows[0].Expense)
	assertDec(t, "750", rows[0].Profit)
	assert.Equal(t, 1, rows[0].IncomeCount)
	assert.Equal(t, 2, rows[0].ExpenseCount)

	assert.Equal(t, "2024-02", rows[1].Period, "transfer-only buckets still appear")
	assert.True(t, rows[1].Income.IsZero())
	assert.True(t, rows[1].Expense.IsZero())
	assert.Zero(t, rows[1].IncomeCount+rows[1].ExpenseCount)

	assert.Equal(t, "2024-03", rows[2].Period)
	assertDec(t, "-900", rows[2].Profit)
}

func TestCategoryBreakdown(t *testing.T) {
	items := []core.Transaction{
		entry(core.Expense, "Food", "30", day(2024, 1, 1)),
		entry(core.Expense, "Food", "20", day(2024, 1, 2)),
		entry(core.Income, "Food", "50", day(2024, 1, 3)),
		entry(core.Expense, "Books", "50", day(2024, 1, 4)),
		entry(core.Income, "Salary", "900", day(2024, 1, 5)),
	}

	got := CategoryBreakdown(items)
	require.Len(t, got, 4)
	assert.Equal(t, "Salary", got[0].Category)
	assert.Equal(t, "Books", got[1].Category)
	assert.Equal(t, 1, got[1].Count)
	assert.Equal(t, "Food", got[2].Category)
	assert.Equal(t, core.Expense, got[2].Type, "ties break on category then type")
	assert.Equal(t, 2, got[2].Count)
	assertDec(t, "50", got[2].TotalAmount)
	assert.Equal(t, core.Income, got[3].Type)
}

func TestOverview(t *testing.T) {
	o := Overview([]core.Transaction{
		entry(core.Income, "Salary", "1000", day(2024, 1, 1)),
		entry(core.Expense, "Food", "333", day(2024, 1, 2)),
		entry(core.Transfer, "Move", "5000", day(2024, 1, 3)),
	})
	assertDec(t, "1000", o.TotalIncome)
	assertDec(t, "333", o.TotalExpense)
	assertDec(t, "667", o.NetProfit)
	assert.Equal(t, 66.7, o.SavingsRate)

	o = Overview([]core.Transaction{entry(core.Expense, "Food", "10", day(2024, 1, 2))})
	assert.Zero(t, o.SavingsRate, "no income means no savings rate")
	assertDec(t, "-10", o.NetProfit)
}

func TestAnalyticsReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := NewAnalytics(f.repo)

	empty, err := a.Report(ctx, owner, DateRange{}, "")
	require.NoError(t, err)
	assert.Equal(t, core.BucketMonth, empty.GroupBy)
	assert.Empty(t, empty.Timeline)
	assert.NotNil(t, empty.Timeline)
	assert.Empty(t, empty.CategoryBreakdown)
	assert.True(t, empty.Overview.TotalIncome.IsZero())
	assert.Zero(t, empty.Overview.SavingsRate)

	f.tx(t, core.Income, "Salary", "2000", "", day(2024, 2, 1))
	f.tx(t, core.Expense, "Food", "500", "", day(2024, 2, 3))
	f.tx(t, core.Expense, "Food", "100", "", day(2023, 12, 31))
	gone := f.tx(t, core.Expense, "Food", "999", "", day(2024, 2, 4))
	require.NoError(t, f.ledger.Delete(ctx, owner, gone.ID))

	from := day(2024, 1, 1)
	report, err := a.Report(ctx, owner, DateRange{From: &from}, core.BucketWeek)
	require.NoError(t, err)
	assertDec(t, "2000", report.Overview.TotalIncome)
	assertDec(t, "500", report.Overview.TotalExpense, "deleted and out-of-range transactions are excluded")
	assert.Equal(t, 75.0, report.Overview.SavingsRate)
	require.Len(t, report.Timeline, 1)
	assert.Equal(t, "2024-W05", report.Timeline[0].Period)

	overview, err := a.Overview(ctx, owner, DateRange{})
	require.NoError(t, err)
	assertDec(t, "600", overview.TotalExpense)

	other, err := a.Overview(ctx, "someone-else", DateRange{})
	require.NoError(t, err)
	assert.True(t, other.TotalExpense.IsZero())

	_, err = a.Timeline(ctx, owner, DateRange{}, "quarter")
	requireKind(t, err, core.KindValidation)
}
