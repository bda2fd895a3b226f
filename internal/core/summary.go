package core

import "github.com/shopspring/decimal"

// Granularity is the bucket size of an analytics timeline.
type Granularity string

const (
	BucketDay   Granularity = "day"
	BucketWeek  Granularity = "week"
	BucketMonth Granularity = "month"
	BucketYear  Granularity = "year"
)

var Granularities = []Granularity{BucketDay, BucketWeek, BucketMonth, BucketYear}

func (g Granularity) Valid() bool { return contains(Granularities, g) }

// GoalStatusFilter selects goals by derived status.
type GoalStatusFilter string

const (
	StatusCompleted GoalStatusFilter = "completed"
	StatusActive    GoalStatusFilter = "active"
	StatusOverdue   GoalStatusFilter = "overdue"
)

var GoalStatusFilters = []GoalStatusFilter{StatusCompleted, StatusActive, StatusOverdue}

func (s GoalStatusFilter) Valid() bool { return contains(GoalStatusFilters, s) }

// BudgetSummary is the derived progress of one budget.
type BudgetSummary struct {
	TotalBudget        decimal.Decimal `json:"totalBudget"`
	TotalSpent         decimal.Decimal `json:"totalSpent"`
	TotalRemaining     decimal.Decimal `json:"totalRemaining"`
	ProgressPercentage float64         `json:"progressPercentage"`
	IsOverBudget       bool            `json:"isOverBudget"`
	DaysRemaining      int             `json:"daysRemaining"`
}

type OverallBudgetAnalytics struct {
	TotalBudget        decimal.Decimal `json:"totalBudget"`
	TotalSpent         decimal.Decimal `json:"totalSpent"`
	TotalRemaining     decimal.Decimal `json:"totalRemaining"`
	AverageUtilization float64         `json:"averageUtilization"`
	BudgetsOverLimit   int             `json:"budgetsOverLimit"`
}

type BudgetCategoryAnalytics struct {
	Category      string          `json:"category"`
	TotalBudget   decimal.Decimal `json:"totalBudget"`
	TotalSpent    decimal.Decimal `json:"totalSpent"`
	Utilization   float64         `json:"utilization"`
	AverageBudget decimal.Decimal `json:"averageBudget"`
}

type BudgetAnalytics struct {
	Budgets           []Budget                  `json:"budgets"`
	Overall           OverallBudgetAnalytics    `json:"overallAnalytics"`
	CategoryBreakdown []BudgetCategoryAnalytics `json:"categoryBreakdown"`
}

// GoalStatus is derived from a goal and the current time; it is never stored.
type GoalStatus struct {
	Progress               float64         `json:"progress"`
	IsCompleted            bool            `json:"isCompleted"`
	IsOverdue              bool            `json:"isOverdue"`
	DaysRemaining          int             `json:"daysRemaining"`
	RemainingAmount        decimal.Decimal `json:"remainingAmount"`
	RequiredMonthlySavings decimal.Decimal `json:"requiredMonthlySavings"`
}

type GoalView struct {
	Goal
	GoalStatus
}

type GoalSummary struct {
	TotalGoals         int             `json:"totalGoals"`
	CompletedGoals     int             `json:"completedGoals"`
	ActiveGoals        int             `json:"activeGoals"`
	OverdueGoals       int             `json:"overdueGoals"`
	TotalTargetAmount  decimal.Decimal `json:"totalTargetAmount"`
	TotalCurrentAmount decimal.Decimal `json:"totalCurrentAmount"`
	AverageProgress    float64         `json:"averageProgress"`
}

type TimelineRow struct {
	Period       string          `json:"period"`
	Income       decimal.Decimal `json:"income"`
	Expense      decimal.Decimal `json:"expense"`
	IncomeCount  int             `json:"incomeCount"`
	ExpenseCount int             `json:"expenseCount"`
	Profit       decimal.Decimal `json:"profit"`
}

type CategoryTotal struct {
	Category    string          `json:"category"`
	Type        TransactionType `json:"type"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Count       int             `json:"count"`
}

type Overview struct {
	TotalIncome  decimal.Decimal `json:"totalIncome"`
	TotalExpense decimal.Decimal `json:"totalExpense"`
	NetProfit    decimal.Decimal `json:"netProfit"`
	SavingsRate  float64         `json:"savingsRate"`
}

// AccountStatistics summarises the live transactions of one account.
type AccountStatistics struct {
	TotalIncome      decimal.Decimal `json:"totalIncome"`
	TotalExpense     decimal.Decimal `json:"totalExpense"`
	NetFlow          decimal.Decimal `json:"netFlow"`
	TransactionCount int             `json:"transactionCount"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
	Limit       int  `json:"limit"`
}

// NewPagination computes page metadata for total items split into pages of limit.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  pages,
		TotalCount:  total,
		HasNextPage: page < pages,
		HasPrevPage: page > 1,
		Limit:       limit,
	}
}
