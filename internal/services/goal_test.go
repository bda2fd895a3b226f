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

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		goal      core.Goal
		progress  float64
		completed bool
		overdue   bool
		days      int
		remaining string
		monthly   string
	}{
		{
			name:      "overdue",
			goal:      core.Goal{TargetAmount: dec("10000"), CurrentAmount: dec("2500"), TargetDate: now.AddDate(0, 0, -1)},
			progress:  25,
			overdue:   true,
			remaining: "7500",
			monthly:   "0",
		},
		{
			name:      "three months out",
			goal:      core.Goal{TargetAmount: dec("10000"), CurrentAmount: dec("1000"), TargetDate: now.AddDate(0, 0, 90)},
			progress:  10,
			days:      90,
			remaining: "9000",
			monthly:   "3000",
		},
		{
			name:      "under a month uses one month",
			goal:      core.Goal{TargetAmount: dec("100"), CurrentAmount: dec("40"), TargetDate: now.AddDate(0, 0, 10)},
			progress:  40,
			days:      10,
			remaining: "60",
			monthly:   "60",
		},
		{
			name:      "completed past target date is not overdue",
			goal:      core.Goal{TargetAmount: dec("100"), CurrentAmount: dec("150"), TargetDate: now.AddDate(0, -1, 0)},
			progress:  100,
			completed: true,
			remaining: "0",
			monthly:   "0",
		},
		{
			name:      "required savings rounds to cents",
			goal:      core.Goal{TargetAmount: dec("100"), TargetDate: now.AddDate(0, 0, 45)},
			days:      45,
			remaining: "100",
			monthly:   "66.67",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := DeriveStatus(tt.goal, now)
			assert.Equal(t, tt.progress, st.Progress)
			assert.Equal(t, tt.completed, st.IsCompleted)
			assert.Equal(t, tt.overdue, st.IsOverdue)
			assert.Equal(t, tt.days, st.DaysRemaining)
			assertDec(t, tt.remaining, st.RemainingAmount)
			assertDec(t, tt.monthly, st.RequiredMonthlySavings)
		})
	}
}

func TestFilterGoals(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	goals := []core.Goal{
		{ID: "done", Category: core.GoalVacation, TargetAmount: dec("100"), CurrentAmount: dec("100"), TargetDate: now.AddDate(0, 2, 0)},
		{ID: "late", Category: core.GoalVacation, TargetAmount: dec("100"), CurrentAmount: dec("20"), TargetDate: now.AddDate(0, -1, 0)},
		{ID: "car", Category: core.GoalCar, TargetAmount: dec("500"), CurrentAmount: dec("50"), TargetDate: now.AddDate(1, 0, 0)},
	}

	all := FilterGoals(goals, GoalFilter{}, now)
	require.Len(t, all.Goals, 3)
	assert.Equal(t, "late", all.Goals[0].ID, "nearest target date first")
	assert.Equal(t, 3, all.Summary.TotalGoals)
	assert.Equal(t, 1, all.Summary.CompletedGoals)
	assert.Equal(t, 1, all.Summary.ActiveGoals)
	assert.Equal(t, 1, all.Summary.OverdueGoals)
	assertDec(t, "700", all.Summary.TotalTargetAmount)
	assertDec(t, "170", all.Summary.TotalCurrentAmount)
	assert.InDelta(t, 130.0/3, all.Summary.AverageProgress, 1e-9)

	split := FilterGoals(goals, GoalFilter{Category: core.GoalVacation, Status: core.StatusOverdue}, now)
	require.Len(t, split.Goals, 1)
	assert.Equal(t, "late", split.Goals[0].ID)
	assert.Equal(t, 2, split.Summary.TotalGoals, "total counts the category match before the status filter")
	assert.Equal(t, 1, split.Summary.OverdueGoals)
	assert.Zero(t, split.Summary.CompletedGoals)
	assertDec(t, "100", split.Summary.TotalTargetAmount)
	assert.Equal(t, 20.0, split.Summary.AverageProgress)

	none := FilterGoals(nil, GoalFilter{Status: core.StatusActive}, now)
	assert.NotNil(t, none.Goals)
	assert.Zero(t, none.Summary.AverageProgress)
}

func (f *fixture) goal(t *testing.T, target, initial string, category core.GoalCategory) core.GoalView {
	t.Helper()
	g, err := f.goals.Create(context.Background(), owner, CreateGoalRequest{
		Name:          "Trip",
		TargetAmount:  dec(target),
		TargetDate:    core.DateOf(f.now.AddDate(0, 6, 0)),
		Category:      category,
		InitialAmount: dec(initial),
	})
	require.NoError(t, err)
	return g
}

func TestCreateGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.goals.Create(ctx, owner, CreateGoalRequest{Name: "Fund", TargetAmount: dec("1000"), TargetDate: core.DateOf(f.now.AddDate(1, 0, 0))})
	require.NoError(t, err)
	assert.Equal(t, core.GoalOther, g.Category)
	assert.True(t, g.CurrentAmount.IsZero())

	_, err = f.goals.Create(ctx, owner, CreateGoalRequest{Name: "Late", TargetAmount: dec("1"), TargetDate: core.DateOf(f.now)})
	requireKind(t, err, core.KindValidation)
	_, err = f.goals.Create(ctx, owner, CreateGoalRequest{Name: "Bad", TargetAmount: dec("1"), TargetDate: core.DateOf(f.now.AddDate(0, 1, 0)), Category: "Yacht"})
	requireKind(t, err, core.KindValidation)
	_, err = f.goals.Create(ctx, owner, CreateGoalRequest{Name: "Zero", TargetDate: core.DateOf(f.now.AddDate(0, 1, 0))})
	requireKind(t, err, core.KindValidation)

	list, err := f.goals.List(ctx, owner, GoalFilter{})
	require.NoError(t, err)
	assert.Len(t, list.Goals, 1)
}

func TestContribute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.goal(t, "1000", "850", core.GoalVacation)

	c, err := f.goals.Contribute(ctx, owner, g.ID, dec("100"), "")
	require.NoError(t, err)
	assertDec(t, "850", c.OldAmount)
	assertDec(t, "950", c.NewAmount)
	assert.False(t, c.Goal.IsCompleted)

	tx := c.Transaction
	assert.Equal(t, core.Income, tx.Type)
	assert.Equal(t, core.CategoryGoalContribution, tx.Category)
	assert.Equal(t, "Trip", tx.Subcategory)
	assert.Equal(t, "Contribution to Trip", tx.Description)
	assert.Equal(t, []string{core.TagGoalContribution, "vacation"}, tx.Tags)
	assert.Equal(t, core.DefaultCurrency, tx.Currency)
	assert.Len(t, f.pub.ofType(amqp.EventTransactionCreated), 1)

	c, err = f.goals.Contribute(ctx, owner, g.ID, dec("60"), "bonus")
	require.NoError(t, err)
	assert.True(t, c.Goal.IsCompleted)
	assert.Equal(t, 100.0, c.Goal.Progress)
	assert.Equal(t, "bonus", c.Transaction.Description)

	_, err = f.goals.Contribute(ctx, owner, g.ID, dec("5"), "")
	require.NoError(t, err)

	assert.Len(t, f.pub.ofType(amqp.EventGoalContribution), 3)
	assert.Len(t, f.pub.ofType(amqp.EventGoalCompleted), 1, "completion is announced once")

	income, _, err := f.repo.ListTransactions(ctx, storage.TransactionQuery{UserID: owner, Type: core.Income})
	require.NoError(t, err)
	assert.Len(t, income, 3, "one income transaction per contribution")

	d, err := f.goals.Get(ctx, owner, g.ID)
	require.NoError(t, err)
	assertDec(t, "1015", d.CurrentAmount)
	assert.Len(t, d.RecentContributions, 3)
}

func TestContributeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.goal(t, "100", "0", core.GoalCar)

	for _, amount := range []string{"0", "-5"} {
		_, err := f.goals.Contribute(ctx, owner, g.ID, dec(amount), "")
		requireKind(t, err, core.KindValidation)
	}
	_, err := f.goals.Contribute(ctx, owner, "missing", dec("1"), "")
	requireKind(t, err, core.KindNotFound)

	d, err := f.goals.Get(ctx, owner, g.ID)
	require.NoError(t, err)
	assert.True(t, d.CurrentAmount.IsZero(), "rejected contributions leave the goal untouched")
	assert.Empty(t, f.pub.ofType(amqp.EventTransactionCreated))
}

func TestContributionUsesProfileCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.profiles.SetCurrency(ctx, owner, "EUR")
	require.NoError(t, err)
	g := f.goal(t, "100", "0", core.GoalEmergencyFund)

	c, err := f.goals.Contribute(ctx, owner, g.ID, dec("10"), "")
	require.NoError(t, err)
	assert.Equal(t, "EUR", c.Transaction.Currency)
	assert.Equal(t, []string{core.TagGoalContribution, "emergency-fund"}, c.Transaction.Tags)
}

func TestUpdateAndDeleteGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.goal(t, "100", "0", core.GoalHouse)

	name := "Flat"
	target := dec("200")
	got, err := f.goals.Update(ctx, owner, g.ID, UpdateGoalRequest{Name: &name, TargetAmount: &target})
	require.NoError(t, err)
	assert.Equal(t, "Flat", got.Name)
	assertDec(t, "200", got.TargetAmount)

	past := core.DateOf(f.now.AddDate(0, 0, -1))
	_, err = f.goals.Update(ctx, owner, g.ID, UpdateGoalRequest{TargetDate: &past})
	requireKind(t, err, core.KindValidation)

	_, err = f.goals.Update(ctx, owner, "missing", UpdateGoalRequest{Name: &name})
	requireKind(t, err, core.KindNotFound)

	require.NoError(t, f.goals.Delete(ctx, owner, g.ID))
	requireKind(t, f.goals.Delete(ctx, owner, g.ID), core.KindNotFound)
	_, err = f.goals.Get(ctx, owner, g.ID)
	requireKind(t, err, core.KindNotFound)
}

func TestListGoalsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.goals.List(ctx, owner, GoalFilter{Status: "paused"})
	requireKind(t, err, core.KindValidation)
	_, err = f.goals.List(ctx, owner, GoalFilter{Category: "Boat"})
	requireKind(t, err, core.KindValidation)

	list, err := f.goals.List(ctx, "nobody", GoalFilter{})
	require.NoError(t, err)
	assert.Empty(t, list.Goals)
}
