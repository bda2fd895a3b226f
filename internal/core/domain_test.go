package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestTransactionFieldsValidate(t *testing.T) {
	valid := TransactionFields{Type: Expense, Category: "Food", Amount: d("12.50")}

	tests := []struct {
		name   string
		mutate func(*TransactionFields)
		kind   ErrorKind
	}{
		{"valid", func(*TransactionFields) {}, ""},
		{"zero amount", func(f *TransactionFields) { f.Amount = decimal.Zero }, KindValidation},
		{"negative amount", func(f *TransactionFields) { f.Amount = d("-1") }, KindValidation},
		{"unknown type", func(f *TransactionFields) { f.Type = "refund" }, KindValidation},
		{"blank category", func(f *TransactionFields) { f.Category = "  " }, KindValidation},
		{"long description", func(f *TransactionFields) {
			f.Description = string(make([]byte, 501))
		}, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)
			err := f.Validate()
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestSigned(t *testing.T) {
	assert.True(t, TransactionFields{Type: Income, Amount: d("5")}.Signed().Equal(d("5")))
	assert.True(t, TransactionFields{Type: Expense, Amount: d("5")}.Signed().Equal(d("-5")))
	assert.True(t, TransactionFields{Type: Transfer, Amount: d("5")}.Signed().IsZero())
}

func TestBudgetPeriodEnd(t *testing.T) {
	start := date(2024, time.January, 31)
	assert.Equal(t, date(2024, time.February, 7), PeriodWeekly.End(start))
	// Month overflow rolls into March like calendar arithmetic does.
	assert.Equal(t, date(2024, time.March, 2), PeriodMonthly.End(start))
	assert.Equal(t, date(2025, time.January, 31), PeriodYearly.End(start))
}

func TestBudgetValidate(t *testing.T) {
	b := Budget{
		Name:        "Monthly",
		Period:      PeriodMonthly,
		TotalBudget: d("1000"),
		Categories: []CategoryAllocation{
			{Category: "Food", BudgetAmount: d("600")},
			{Category: "Fun", BudgetAmount: d("400")},
		},
		StartDate: date(2024, time.January, 1),
		EndDate:   date(2024, time.February, 1),
	}
	require.NoError(t, b.Validate())

	over := b
	over.Categories = []CategoryAllocation{{Category: "Food", BudgetAmount: d("1000.01")}}
	assert.ErrorIs(t, over.Validate(), ErrCategoriesExceedTotal)

	empty := b
	empty.Categories = nil
	assert.True(t, IsKind(empty.Validate(), KindValidation))

	backwards := b
	backwards.EndDate = date(2023, time.December, 1)
	assert.Error(t, backwards.Validate())

	backwards.Categories = over.Categories
	err := backwards.Validate()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCategoriesExceedTotal, "date order is checked before the category sum")

	assert.Equal(t, []string{"Food", "Fun"}, b.CategoryNames())
	assert.True(t, b.CategoryTotal().Equal(d("1000")))
}

func TestGoalCategorySlug(t *testing.T) {
	assert.Equal(t, "emergency-fund", GoalEmergencyFund.Slug())
	assert.Equal(t, "car", GoalCar.Slug())
}

func TestUserGoals(t *testing.T) {
	u := &User{Goals: []Goal{{ID: "a"}, {ID: "b"}}}

	g, ok := u.Goal("b")
	require.True(t, ok)
	g.Name = "changed"
	assert.Equal(t, "changed", u.Goals[1].Name)

	assert.True(t, u.RemoveGoal("a"))
	assert.False(t, u.RemoveGoal("a"))
	assert.Len(t, u.Goals, 1)
}

func TestRecurringValidate(t *testing.T) {
	due := date(2024, time.March, 1)
	r := RecurringTransaction{
		Template:    TransactionFields{Type: Expense, Category: "Rent", Amount: d("900")},
		Frequency:   Monthly,
		NextDueDate: due,
	}
	require.NoError(t, r.Validate())

	end := due.AddDate(0, 0, -1)
	r.EndDate = &end
	assert.Error(t, r.Validate())

	r.EndDate = nil
	r.Frequency = "hourly"
	assert.ErrorIs(t, r.Validate(), ErrInvalidFrequency)
}

func TestCloneDoesNotShare(t *testing.T) {
	f := TransactionFields{Tags: []string{"a"}}
	c := f.Clone()
	c.Tags[0] = "b"
	assert.Equal(t, "a", f.Tags[0])
}

func TestTransactionFieldsCloneKeepsEmptyLists(t *testing.T) {
	f := TransactionFields{Tags: []string{}}
	c := f.Clone()
	assert.NotNil(t, c.Tags)
	assert.NotNil(t, c.Attachments)

	f.Tags = []string{"a"}
	c = f.Clone()
	c.Tags[0] = "b"
	assert.Equal(t, "a", f.Tags[0])
}
