package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBudgetLimit   = 10
	recentBudgetExpenses = 20
	reconcileParallelism = 4
)

type BudgetCategoryRequest struct {
	Category     string          `json:"category"`
	BudgetAmount decimal.Decimal `json:"budgetAmount"`
}

type CreateBudgetRequest struct {
	Name        string                  `json:"name"`
	Period      core.BudgetPeriod       `json:"period"`
	TotalBudget decimal.Decimal         `json:"totalBudget"`
	Categories  []BudgetCategoryRequest `json:"categories"`
	StartDate   *core.Date              `json:"startDate"`
	EndDate     *core.Date              `json:"endDate"`
}

type UpdateBudgetRequest struct {
	Name        *string                  `json:"name"`
	Period      *core.BudgetPeriod       `json:"period"`
	TotalBudget *decimal.Decimal         `json:"totalBudget"`
	Categories  *[]BudgetCategoryRequest `json:"categories"`
	StartDate   *core.Date               `json:"startDate"`
	EndDate     *core.Date               `json:"endDate"`
	Active      *bool                    `json:"isActive"`
}

type BudgetFilter struct {
	Active *bool
	Period core.BudgetPeriod
	Page   int
	Limit  int
	// Reconcile recomputes spent amounts before returning.
	Reconcile bool
}

type BudgetView struct {
	core.Budget
	Summary core.BudgetSummary `json:"summary"`
}

type BudgetPage struct {
	Budgets    []BudgetView    `json:"budgets"`
	Pagination core.Pagination `json:"pagination"`
}

type BudgetDetails struct {
	BudgetView
	RecentTransactions []core.Transaction `json:"recentTransactions"`
}

// BudgetService maintains budgets and reconciles their spent amounts against
// the ledger on every read.
type BudgetService struct {
	repo   storage.Repository
	events notifier
	clock  Clock
}

func NewBudgetService(repo storage.Repository, pub Publisher, clock Clock) *BudgetService {
	return &BudgetService{repo: repo, events: notifier{pub: pub}, clock: clock}
}

// expenseQuery selects the live expenses that count against b.
func expenseQuery(b core.Budget) storage.TransactionQuery {
	from, to := b.StartDate, b.EndDate
	return storage.TransactionQuery{
		UserID:     b.UserID,
		Type:       core.Expense,
		Categories: b.CategoryNames(),
		From:       &from,
		To:         &to,
	}
}

// ApplySpent sets spent and remaining on every allocation from per-category
// sums. Categories without matching expenses get zero.
func ApplySpent(b core.Budget, spent map[string]decimal.Decimal) core.Budget {
	cats := make([]core.CategoryAllocation, len(b.Categories))
	for i, c := range b.Categories {
		c.Spent = spent[c.Category]
		c.Remaining = c.BudgetAmount.Sub(c.Spent)
		cats[i] = c
	}
	b.Categories = cats
	return b
}

// RecomputeSpent rebuilds the spent and remaining caches of b from the ledger
// and persists the budget. Calling it again without ledger changes is a no-op
// in effect.
func (s *BudgetService) RecomputeSpent(ctx context.Context, b core.Budget) (core.Budget, error) {
	if len(b.Categories) == 0 {
		return b, nil
	}

	matches, _, err := s.repo.ListTransactions(ctx, expenseQuery(b))
	if err != nil {
		return core.Budget{}, core.Upstream("reconcile budget", err)
	}

	spent := make(map[string]decimal.Decimal, len(b.Categories))
	for _, t := range matches {
		spent[t.Category] = spent[t.Category].Add(t.Amount)
	}

	wasOver := totalSpent(b).GreaterThan(b.TotalBudget)
	b = ApplySpent(b, spent)
	b.UpdatedAt = s.clock()
	if err := s.repo.UpdateBudget(ctx, b); err != nil {
		return core.Budget{}, storeErr("reconcile budget", "budget", err)
	}

	if total := totalSpent(b); !wasOver && total.GreaterThan(b.TotalBudget) {
		slog.InfoContext(ctx, "Budget over limit",
			"user_id", b.UserID,
			"budget_id", b.ID,
			"total_spent", total.String(),
			"total_budget", b.TotalBudget.String())
		ev := amqp.NewEvent(amqp.EventBudgetOverLimit, b.UserID, b.ID)
		ev.Amount = total.String()
		s.events.notify(ctx, ev)
	}
	return b, nil
}

func totalSpent(b core.Budget) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range b.Categories {
		sum = sum.Add(c.Spent)
	}
	return sum
}

// Summarize derives the progress of b at now from its cached spent amounts.
func Summarize(b core.Budget, now time.Time) core.BudgetSummary {
	spent := totalSpent(b)
	return core.BudgetSummary{
		TotalBudget:        b.TotalBudget,
		TotalSpent:         spent,
		TotalRemaining:     b.TotalBudget.Sub(spent),
		ProgressPercentage: core.CappedPercent(spent, b.TotalBudget),
		IsOverBudget:       spent.GreaterThan(b.TotalBudget),
		DaysRemaining:      core.DaysRemaining(b.EndDate, now),
	}
}

func (s *BudgetService) view(b core.Budget) BudgetView {
	return BudgetView{Budget: b, Summary: Summarize(b, s.clock())}
}

func allocations(reqs []BudgetCategoryRequest) []core.CategoryAllocation {
	cats := make([]core.CategoryAllocation, len(reqs))
	for i, r := range reqs {
		cats[i] = core.CategoryAllocation{
			Category:     strings.TrimSpace(r.Category),
			BudgetAmount: r.BudgetAmount,
			Remaining:    r.BudgetAmount,
		}
	}
	return cats
}

func (s *BudgetService) Create(ctx context.Context, owner string, req CreateBudgetRequest) (BudgetView, error) {
	now := s.clock()
	if req.Period == "" {
		req.Period = core.PeriodMonthly
	}

	start := now
	if req.StartDate != nil && !req.StartDate.IsZero() {
		start = req.StartDate.UTC()
	}
	end := req.Period.End(start)
	if req.EndDate != nil && !req.EndDate.IsZero() {
		end = req.EndDate.UTC()
	}

	b := core.Budget{
		ID:          newID(),
		UserID:      owner,
		Name:        strings.TrimSpace(req.Name),
		Period:      req.Period,
		TotalBudget: req.TotalBudget,
		Categories:  allocations(req.Categories),
		StartDate:   start,
		EndDate:     end,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.Validate(); err != nil {
		return BudgetView{}, err
	}
	if err := s.repo.InsertBudget(ctx, b); err != nil {
		return BudgetView{}, core.Upstream("create budget", err)
	}

	slog.InfoContext(ctx, "Budget created",
		"user_id", owner,
		"budget_id", b.ID,
		"period", b.Period,
		"total_budget", b.TotalBudget.String())
	return s.view(b), nil
}

func (s *BudgetService) List(ctx context.Context, owner string, f BudgetFilter) (BudgetPage, error) {
	if f.Period != "" && !f.Period.Valid() {
		return BudgetPage{}, core.ErrInvalidPeriod
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultBudgetLimit
	}

	budgets, total, err := s.repo.ListBudgets(ctx, storage.BudgetQuery{
		UserID: owner,
		Active: f.Active,
		Period: f.Period,
		Offset: (f.Page - 1) * f.Limit,
		Limit:  f.Limit,
	})
	if err != nil {
		return BudgetPage{}, core.Upstream("fetch budgets", err)
	}

	views := make([]BudgetView, 0, len(budgets))
	for _, b := range budgets {
		if f.Reconcile {
			if b, err = s.RecomputeSpent(ctx, b); err != nil {
				return BudgetPage{}, err
			}
		}
		views = append(views, s.view(b))
	}
	return BudgetPage{Budgets: views, Pagination: core.NewPagination(f.Page, f.Limit, total)}, nil
}

// Get reconciles the budget and returns it with the latest expenses counted
// against it.
func (s *BudgetService) Get(ctx context.Context, owner, id string) (BudgetDetails, error) {
	b, err := s.repo.GetBudget(ctx, owner, id)
	if err != nil {
		return BudgetDetails{}, storeErr("fetch budget", "budget", err)
	}
	if b, err = s.RecomputeSpent(ctx, b); err != nil {
		return BudgetDetails{}, err
	}

	q := expenseQuery(b)
	q.SortBy = storage.SortDate
	q.Limit = recentBudgetExpenses
	recent, _, err := s.repo.ListTransactions(ctx, q)
	if err != nil {
		return BudgetDetails{}, core.Upstream("fetch budget", err)
	}
	return BudgetDetails{BudgetView: s.view(b), RecentTransactions: nonNil(recent)}, nil
}

// Update applies the set fields. Replaced categories keep the spent amount
// of a same-named previous category. The category sum is only enforced at
// creation.
func (s *BudgetService) Update(ctx context.Context, owner, id string, req UpdateBudgetRequest) (BudgetView, error) {
	b, err := s.repo.GetBudget(ctx, owner, id)
	if err != nil {
		return BudgetView{}, storeErr("update budget", "budget", err)
	}

	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
	}
	if req.Period != nil {
		b.Period = *req.Period
	}
	if req.TotalBudget != nil {
		b.TotalBudget = *req.TotalBudget
	}
	if req.StartDate != nil {
		b.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		b.EndDate = req.EndDate.UTC()
	}
	if req.Active != nil {
		b.Active = *req.Active
	}
	if req.Categories != nil {
		prev := make(map[string]decimal.Decimal, len(b.Categories))
		for _, c := range b.Categories {
			prev[c.Category] = c.Spent
		}
		b.Categories = ApplySpent(core.Budget{Categories: allocations(*req.Categories)}, prev).Categories
	}

	if err := b.Validate(); err != nil && !errors.Is(err, core.ErrCategoriesExceedTotal) {
		return BudgetView{}, err
	}

	b.UpdatedAt = s.clock()
	if err := s.repo.UpdateBudget(ctx, b); err != nil {
		return BudgetView{}, storeErr("update budget", "budget", err)
	}

	slog.InfoContext(ctx, "Budget updated", "user_id", owner, "budget_id", id)
	return s.view(b), nil
}

func (s *BudgetService) Delete(ctx context.Context, owner, id string) error {
	if err := s.repo.DeleteBudget(ctx, owner, id); err != nil {
		return storeErr("delete budget", "budget", err)
	}
	slog.InfoContext(ctx, "Budget deleted", "user_id", owner, "budget_id", id)
	return nil
}

// Analytics reconciles every active budget of period and aggregates them.
// No active budgets yields a zeroed result.
func (s *BudgetService) Analytics(ctx context.Context, owner string, period core.BudgetPeriod) (core.BudgetAnalytics, error) {
	if period == "" {
		period = core.PeriodMonthly
	}
	if !period.Valid() {
		return core.BudgetAnalytics{}, core.ErrInvalidPeriod
	}

	active := true
	budgets, _, err := s.repo.ListBudgets(ctx, storage.BudgetQuery{UserID: owner, Active: &active, Period: period})
	if err != nil {
		return core.BudgetAnalytics{}, core.Upstream("fetch budget analytics", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileParallelism)
	for i := range budgets {
		g.Go(func() error {
			b, err := s.RecomputeSpent(gctx, budgets[i])
			if err != nil {
				return err
			}
			budgets[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.BudgetAnalytics{}, err
	}

	return AggregateBudgets(budgets), nil
}

// AggregateBudgets rolls reconciled budgets up into overall and per-category
// figures. The category breakdown is ordered by amount spent, largest first.
func AggregateBudgets(budgets []core.Budget) core.BudgetAnalytics {
	out := core.BudgetAnalytics{
		Budgets:           nonNil(budgets),
		CategoryBreakdown: []core.BudgetCategoryAnalytics{},
	}
	if len(budgets) == 0 {
		return out
	}

	type acc struct {
		budget, spent decimal.Decimal
		count         int
	}
	byCategory := map[string]*acc{}
	var order []string
	utilization := 0.0

	for _, b := range budgets {
		spent := totalSpent(b)
		out.Overall.TotalBudget = out.Overall.TotalBudget.Add(b.TotalBudget)
		out.Overall.TotalSpent = out.Overall.TotalSpent.Add(spent)
		utilization += core.Percent(spent, b.TotalBudget)
		if spent.GreaterThan(b.TotalBudget) {
			out.Overall.BudgetsOverLimit++
		}

		for _, c := range b.Categories {
			a, ok := byCategory[c.Category]
			if !ok {
				a = &acc{}
				byCategory[c.Category] = a
				order = append(order, c.Category)
			}
			a.budget = a.budget.Add(c.BudgetAmount)
			a.spent = a.spent.Add(c.Spent)
			a.count++
		}
	}
	out.Overall.TotalRemaining = out.Overall.TotalBudget.Sub(out.Overall.TotalSpent)
	out.Overall.AverageUtilization = core.Round2(utilization / float64(len(budgets)))

	for _, name := range order {
		a := byCategory[name]
		out.CategoryBreakdown = append(out.CategoryBreakdown, core.BudgetCategoryAnalytics{
			Category:      name,
			TotalBudget:   a.budget,
			TotalSpent:    a.spent,
			Utilization:   core.Round2(core.Percent(a.spent, a.budget)),
			AverageBudget: a.budget.Div(decimal.NewFromInt(int64(a.count))),
		})
	}
	slices.SortStableFunc(out.CategoryBreakdown, func(x, y core.BudgetCategoryAnalytics) int {
		return y.TotalSpent.Cmp(x.TotalSpent)
	})
	return out
}
