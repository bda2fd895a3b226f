package services

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rent() TransactionRequest {
	return TransactionRequest{Type: core.Expense, Category: "Rent", Amount: dec("900"), Description: "Flat"}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAdvancers(t *testing.T) {
	tests := []struct {
		freq core.Frequency
		prev time.Time
		want time.Time
	}{
		{core.Daily, day(2024, 2, 28), day(2024, 2, 29)},
		{core.Weekly, day(2024, 12, 30), day(2025, 1, 6)},
		{core.Monthly, day(2024, 3, 1), day(2024, 4, 1)},
		{core.Monthly, day(2024, 1, 31), day(2024, 3, 2)},
		{core.Yearly, day(2024, 2, 29), day(2025, 3, 1)},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq)+" "+tt.prev.Format(time.DateOnly), func(t *testing.T) {
			a, err := GetAdvancer(tt.freq)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Next(tt.prev))
		})
	}

	_, err := GetAdvancer("hourly")
	assert.Error(t, err)
}

type fortnightly struct{}

func (fortnightly) Next(prev time.Time) time.Time { return prev.AddDate(0, 0, 14) }

func TestRegisterAdvancer(t *testing.T) {
	const freq core.Frequency = "fortnightly"
	RegisterAdvancer(freq, fortnightly{})
	t.Cleanup(func() { delete(advancers, freq) })

	a, err := GetAdvancer(freq)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 15), a.Next(day(2024, 1, 1)))
}

func TestTickAdvancesFromPreviousDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.sched.Create(ctx, owner, CreateRecurringRequest{Template: rent(), Frequency: core.Monthly, NextDueDate: core.DateOf(day(2024, 3, 1))})
	require.NoError(t, err)

	report, err := f.sched.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, TickReport{Due: 1, Succeeded: 1}, report)
	require.NoError(t, report.Err())

	got, err := f.sched.Get(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 4, 1), got.NextDueDate, "cadence is anchored on the due date, not the tick time")
	assert.True(t, got.Active)

	report, err = f.sched.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, report.Due, "nothing is due until the next date")

	page, err := f.ledger.List(ctx, owner, TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	tx := page.Transactions[0]
	assert.Equal(t, f.now, tx.Date)
	assert.Equal(t, "Rent", tx.Category)
	assert.Equal(t, "Flat", tx.Description)
	assert.Equal(t, core.DefaultCurrency, tx.Currency)

	events := f.pub.ofType(amqp.EventRecurringMaterialized)
	require.Len(t, events, 1)
	assert.Equal(t, r.ID, events[0].EntityID)
	assert.Equal(t, tx.ID, events[0].TransactionID)
}

func TestTickMaterializesOncePerRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.sched.Create(ctx, owner, CreateRecurringRequest{Template: rent(), Frequency: core.Daily, NextDueDate: core.DateOf(day(2024, 3, 1))})
	require.NoError(t, err)

	report, err := f.sched.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	got, err := f.sched.Get(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 2), got.NextDueDate, "missed periods are caught up one per tick")

	n, err := f.repo.CountTransactions(ctx, storage.TransactionQuery{UserID: owner})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTickDeactivatesPastEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	end := core.DateOf(day(2024, 3, 2))
	r, err := f.sched.Create(ctx, owner, CreateRecurringRequest{Template: rent(), Frequency: core.Daily, NextDueDate: core.DateOf(day(2024, 3, 1)), EndDate: &end})
	require.NoError(t, err)

	_, err = f.sched.Tick(ctx, f.now)
	require.NoError(t, err)
	got, err := f.sched.Get(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.True(t, got.Active, "a due date on the end date still runs")

	_, err = f.sched.Tick(ctx, f.now)
	require.NoError(t, err)
	got, err = f.sched.Get(ctx, owner, r.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, day(2024, 3, 3), got.NextDueDate)

	report, err := f.sched.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, report.Due)

	active, err := f.sched.List(ctx, owner, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.sched.List(ctx, owner, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTickIsolatesFailingEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sched.Create(ctx, owner, CreateRecurringRequest{Template: rent(), Frequency: core.Weekly, NextDueDate: core.DateOf(day(2024, 3, 10))})
	require.NoError(t, err)

	broken := core.RecurringTransaction{
		ID:          "broken",
		UserID:      owner,
		Template:    core.TransactionFields{Type: core.Expense, Category: "Gym", Amount: dec("30")},
		Frequency:   "hourly",
		NextDueDate: day(2024, 3, 1),
		Active:      true,
	}
	require.NoError(t, f.repo.InsertRecurring(ctx, broken))

	report, err := f.sched.Tick(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, TickReport{Due: 2, Succeeded: 1, Failed: 1}, report)

	perr := report.Err()
	requireKind(t, perr, core.KindPartialBatch)
	var cerr *core.Error
	require.ErrorAs(t, perr, &cerr)
	assert.Equal(t, 1, cerr.Count)

	got, err := f.repo.GetRecurring(ctx, owner, "broken")
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 1), got.NextDueDate, "failed entries are not advanced")

	n, err := f.repo.CountTransactions(ctx, storage.TransactionQuery{UserID: owner})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	_, err := f.sched.Create(context.Background(), owner, CreateRecurringRequest{Template: rent(), Frequency: core.Monthly, NextDueDate: core.DateOf(day(2024, 3, 1))})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.sched.Tick(ctx, f.now)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, TickReport{Due: 1, Failed: 1}, report)
}

func TestRecurringCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sched.Create(ctx, owner, CreateRecurringRequest{Template: rent(), Frequency: "hourly", NextDueDate: core.DateOf(f.now)})
	requireKind(t, err, core.KindValidation)
	_, err = f.sched.Create(ctx, owner, CreateRecurringRequest{Template: TransactionRequest{Type: core.Expense}, Frequency: core.Daily, NextDueDate: core.DateOf(f.now)})
	requireKind(t, err, core.KindValidation)
	before := core.DateOf(f.now.AddDate(0, 0, -1))
	_, err = f.sched.Create(ctx, owner, CreateRecurringRequest{Template: rent(), Frequency: core.Daily, NextDueDate: core.DateOf(f.now), EndDate: &before})
	requireKind(t, err, core.KindValidation)

	end := core.DateOf(f.now.AddDate(1, 0, 0))
	r, err := f.sched.Create(ctx, owner, CreateRecurringRequest{Template: rent(), Frequency: core.Monthly, NextDueDate: core.DateOf(f.now), EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, core.DefaultPaymentMethod, r.Template.PaymentMethod)

	weekly := core.Weekly
	var noEnd core.Date
	off := false
	got, err := f.sched.Update(ctx, owner, r.ID, UpdateRecurringRequest{Frequency: &weekly, EndDate: &noEnd, Active: &off})
	require.NoError(t, err)
	assert.Equal(t, core.Weekly, got.Frequency)
	assert.Nil(t, got.EndDate)
	assert.False(t, got.Active)

	_, err = f.sched.Get(ctx, "someone-else", r.ID)
	requireKind(t, err, core.KindNotFound)

	require.NoError(t, f.sched.Delete(ctx, owner, r.ID))
	requireKind(t, f.sched.Delete(ctx, owner, r.ID), core.KindNotFound)
}
