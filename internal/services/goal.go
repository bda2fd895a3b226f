package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

const (
	recentContributionWindow = 30 * core.Day
	recentContributionLimit  = 10
	daysPerMonth             = 30
)

// contributionCategories are the income categories counted as savings toward
// any goal, in addition to the goal's own category.
var contributionCategories = []string{"Savings", "Investment", core.CategoryGoalContribution}

type CreateGoalRequest struct {
	Name          string            `json:"name"`
	TargetAmount  decimal.Decimal   `json:"targetAmount"`
	TargetDate    core.Date         `json:"targetDate"`
	Category      core.GoalCategory `json:"category"`
	InitialAmount decimal.Decimal   `json:"initialAmount"`
}

type UpdateGoalRequest struct {
	Name          *string            `json:"name"`
	TargetAmount  *decimal.Decimal   `json:"targetAmount"`
	CurrentAmount *decimal.Decimal   `json:"currentAmount"`
	TargetDate    *core.Date         `json:"targetDate"`
	Category      *core.GoalCategory `json:"category"`
}

type GoalFilter struct {
	Category core.GoalCategory
	Status   core.GoalStatusFilter
}

type GoalList struct {
	Goals   []core.GoalView  `json:"goals"`
	Summary core.GoalSummary `json:"summary"`
}

type GoalDetails struct {
	core.GoalView
	RecentContributions []core.Transaction `json:"recentContributions"`
}

type Contribution struct {
	Goal        core.GoalView    `json:"goal"`
	Amount      decimal.Decimal  `json:"amount"`
	OldAmount   decimal.Decimal  `json:"oldAmount"`
	NewAmount   decimal.Decimal  `json:"newAmount"`
	Transaction core.Transaction `json:"transaction"`
}

// DeriveStatus computes the progress of g at now. Nothing here is stored.
func DeriveStatus(g core.Goal, now time.Time) core.GoalStatus {
	progress := core.Percent(g.CurrentAmount, g.TargetAmount)
	st := core.GoalStatus{
		Progress:        min(progress, 100),
		IsCompleted:     progress >= 100,
		DaysRemaining:   core.DaysRemaining(g.TargetDate, now),
		RemainingAmount: decimal.Max(decimal.Zero, g.TargetAmount.Sub(g.CurrentAmount)),
	}
	st.IsOverdue = g.TargetDate.Before(now) && !st.IsCompleted

	if !st.IsCompleted && !st.IsOverdue && st.DaysRemaining > 0 {
		months := decimal.Max(decimal.NewFromInt(1), decimal.NewFromInt(int64(st.DaysRemaining)).Div(decimal.NewFromInt(daysPerMonth)))
		st.RequiredMonthlySavings = st.RemainingAmount.Div(months).Round(2)
	}
	return st
}

func matchesStatus(st core.GoalStatus, f core.GoalStatusFilter) bool {
	switch f {
	case core.StatusCompleted:
		return st.IsCompleted
	case core.StatusActive:
		return !st.IsCompleted && !st.IsOverdue
	case core.StatusOverdue:
		return st.IsOverdue
	default:
		return true
	}
}

// FilterGoals filters by category, derives status, filters by status and
// sorts by target date, nearest first. TotalGoals in the summary counts the
// category-filtered goals; every other figure covers the returned goals only.
func FilterGoals(goals []core.Goal, f GoalFilter, now time.Time) GoalList {
	out := GoalList{Goals: []core.GoalView{}}

	byCategory := 0
	for _, g := range goals {
		if f.Category != "" && g.Category != f.Category {
			continue
		}
		byCategory++
		v := core.GoalView{Goal: g, GoalStatus: DeriveStatus(g, now)}
		if matchesStatus(v.GoalStatus, f.Status) {
			out.Goals = append(out.Goals, v)
		}
	}
	slices.SortStableFunc(out.Goals, func(a, b core.GoalView) int {
		return a.TargetDate.Compare(b.TargetDate)
	})

	sum := core.GoalSummary{TotalGoals: byCategory}
	progress := 0.0
	for _, v := range out.Goals {
		switch {
		case v.IsCompleted:
			sum.CompletedGoals++
		case v.IsOverdue:
			sum.OverdueGoals++
		default:
			sum.ActiveGoals++
		}
		sum.TotalTargetAmount = sum.TotalTargetAmount.Add(v.TargetAmount)
		sum.TotalCurrentAmount = sum.TotalCurrentAmount.Add(v.CurrentAmount)
		progress += v.Progress
	}
	if len(out.Goals) > 0 {
		sum.AverageProgress = progress / float64(len(out.Goals))
	}
	out.Summary = sum
	return out
}

// GoalService manages financial goals, which live inside the owner profile.
type GoalService struct {
	repo   storage.Repository
	ledger *LedgerService
	events notifier
	clock  Clock
}

func NewGoalService(repo storage.Repository, ledger *LedgerService, pub Publisher, clock Clock) *GoalService {
	return &GoalService{repo: repo, ledger: ledger, events: notifier{pub: pub}, clock: clock}
}

// loadUser returns the owner profile, or a fresh one if none is stored yet.
func loadUser(ctx context.Context, users storage.UserStore, owner string, now time.Time) (core.User, error) {
	u, err := users.GetUser(ctx, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return core.User{ID: owner, Goals: []core.Goal{}, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return core.User{}, err
	}
	return u, nil
}

func (s *GoalService) Create(ctx context.Context, owner string, req CreateGoalRequest) (core.GoalView, error) {
	now := s.clock()
	if req.Category == "" {
		req.Category = core.GoalOther
	}
	if !req.TargetDate.IsZero() && !req.TargetDate.After(now) {
		return core.GoalView{}, core.ErrTargetDateNotFuture
	}

	g := core.Goal{
		ID:            newID(),
		Name:          strings.TrimSpace(req.Name),
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.InitialAmount,
		TargetDate:    req.TargetDate.UTC(),
		Category:      req.Category,
	}
	if err := g.Validate(); err != nil {
		return core.GoalView{}, err
	}

	u, err := loadUser(ctx, s.repo, owner, now)
	if err != nil {
		return core.GoalView{}, core.Upstream("add financial goal", err)
	}
	u.Goals = append(u.Goals, g)
	u.UpdatedAt = now
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return core.GoalView{}, core.Upstream("add financial goal", err)
	}

	slog.InfoContext(ctx, "Financial goal created",
		"user_id", owner,
		"goal_id", g.ID,
		"target_amount", g.TargetAmount.String())
	return core.GoalView{Goal: g, GoalStatus: DeriveStatus(g, now)}, nil
}

func (s *GoalService) List(ctx context.Context, owner string, f GoalFilter) (GoalList, error) {
	if f.Category != "" && !f.Category.Valid() {
		return GoalList{}, core.ErrInvalidGoalCategory
	}
	if f.Status != "" && !f.Status.Valid() {
		return GoalList{}, core.Validation("status must be one of: completed, active, overdue")
	}

	now := s.clock()
	u, err := loadUser(ctx, s.repo, owner, now)
	if err != nil {
		return GoalList{}, core.Upstream("fetch financial goals", err)
	}
	return FilterGoals(u.Goals, f, now), nil
}

// Get returns the goal with its status and the savings income of the last
// thirty days.
func (s *GoalService) Get(ctx context.Context, owner, id string) (GoalDetails, error) {
	now := s.clock()
	u, err := loadUser(ctx, s.repo, owner, now)
	if err != nil {
		return GoalDetails{}, core.Upstream("fetch financial goal details", err)
	}
	g, ok := u.Goal(id)
	if !ok {
		return GoalDetails{}, core.NotFound("financial goal")
	}

	since := now.Add(-recentContributionWindow)
	recent, _, err := s.repo.ListTransactions(ctx, storage.TransactionQuery{
		UserID:     owner,
		Type:       core.Income,
		Categories: append(slices.Clone(contributionCategories), string(g.Category)),
		From:       &since,
		SortBy:     storage.SortDate,
		Limit:      recentContributionLimit,
	})
	if err != nil {
		return GoalDetails{}, core.Upstream("fetch financial goal details", err)
	}

	return GoalDetails{
		GoalView:            core.GoalView{Goal: *g, GoalStatus: DeriveStatus(*g, now)},
		RecentContributions: nonNil(recent),
	}, nil
}

func (s *GoalService) Update(ctx context.Context, owner, id string, req UpdateGoalRequest) (core.GoalView, error) {
	now := s.clock()
	if req.TargetDate != nil && !req.TargetDate.After(now) {
		return core.GoalView{}, core.ErrTargetDateNotFuture
	}

	u, err := loadUser(ctx, s.repo, owner, now)
	if err != nil {
		return core.GoalView{}, core.Upstream("update financial goal", err)
	}
	g, ok := u.Goal(id)
	if !ok {
		return core.GoalView{}, core.NotFound("financial goal")
	}

	updated := *g
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.TargetAmount != nil {
		updated.TargetAmount = *req.TargetAmount
	}
	if req.CurrentAmount != nil {
		updated.CurrentAmount = *req.CurrentAmount
	}
	if req.TargetDate != nil {
		updated.TargetDate = req.TargetDate.UTC()
	}
	if req.Category != nil {
		updated.Category = *req.Category
	}
	if err := updated.Validate(); err != nil {
		return core.GoalView{}, err
	}

	*g = updated
	u.UpdatedAt = now
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return core.GoalView{}, core.Upstream("update financial goal", err)
	}

	slog.InfoContext(ctx, "Financial goal updated", "user_id", owner, "goal_id", id)
	return core.GoalView{Goal: updated, GoalStatus: DeriveStatus(updated, now)}, nil
}

// Contribute adds amount to the goal and records a matching income
// transaction. The goal is saved first; if the ledger insert then fails the
// goal keeps the new amount and an upstream error is returned.
func (s *GoalService) Contribute(ctx context.Context, owner, id string, amount decimal.Decimal, description string) (Contribution, error) {
	if !amount.IsPositive() {
		return Contribution{}, core.Validation("contribution amount must be greater than 0")
	}

	now := s.clock()
	u, err := loadUser(ctx, s.repo, owner, now)
	if err != nil {
		return Contribution{}, core.Upstream("add contribution", err)
	}
	g, ok := u.Goal(id)
	if !ok {
		return Contribution{}, core.NotFound("financial goal")
	}

	wasCompleted := DeriveStatus(*g, now).IsCompleted
	old := g.CurrentAmount
	g.CurrentAmount = old.Add(amount)
	goal := *g

	u.UpdatedAt = now
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return Contribution{}, core.Upstream("add contribution", err)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		description = fmt.Sprintf("Contribution to %s", goal.Name)
	}
	currency := u.Currency
	if currency == "" {
		currency = s.ledger.defaultCurrency
	}
	t, err := s.ledger.record(ctx, owner, core.TransactionFields{
		Type:          core.Income,
		Category:      core.CategoryGoalContribution,
		Subcategory:   goal.Name,
		Amount:        amount,
		Currency:      currency,
		Description:   description,
		PaymentMethod: core.DefaultPaymentMethod,
		Tags:          []string{core.TagGoalContribution, goal.Category.Slug()},
		Attachments:   []string{},
	}, now)
	if err != nil {
		slog.ErrorContext(ctx, "Goal updated but contribution transaction was not recorded",
			"user_id", owner,
			"goal_id", id,
			"amount", amount.String(),
			"error", err)
		return Contribution{}, err
	}

	status := DeriveStatus(goal, now)
	slog.InfoContext(ctx, "Goal contribution added",
		"user_id", owner,
		"goal_id", id,
		"amount", amount.String(),
		"completed", status.IsCompleted)

	ev := amqp.NewEvent(amqp.EventGoalContribution, owner, id)
	ev.TransactionID = t.ID
	ev.Amount = amount.String()
	s.events.notify(ctx, ev)
	if status.IsCompleted && !wasCompleted {
		s.events.notify(ctx, amqp.NewEvent(amqp.EventGoalCompleted, owner, id))
	}

	return Contribution{
		Goal:        core.GoalView{Goal: goal, GoalStatus: status},
		Amount:      amount,
		OldAmount:   old,
		NewAmount:   goal.CurrentAmount,
		Transaction: t,
	}, nil
}

func (s *GoalService) Delete(ctx context.Context, owner, id string) error {
	now := s.clock()
	u, err := loadUser(ctx, s.repo, owner, now)
	if err != nil {
		return core.Upstream("delete financial goal", err)
	}
	if !u.RemoveGoal(id) {
		return core.NotFound("financial goal")
	}
	u.UpdatedAt = now
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return core.Upstream("delete financial goal", err)
	}

	slog.InfoContext(ctx, "Financial goal deleted", "user_id", owner, "goal_id", id)
	return nil
}
