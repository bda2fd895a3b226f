package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type CreateRecurringRequest struct {
	Template    TransactionRequest `json:"templateTransaction"`
	Frequency   core.Frequency     `json:"frequency"`
	NextDueDate core.Date          `json:"nextDueDate"`
	EndDate     *core.Date         `json:"endDate"`
}

type UpdateRecurringRequest struct {
	Template    *TransactionRequest `json:"templateTransaction"`
	Frequency   *core.Frequency     `json:"frequency"`
	NextDueDate *core.Date          `json:"nextDueDate"`
	EndDate     *core.Date          `json:"endDate"`
	Active      *bool               `json:"isActive"`
}

// TickReport counts the outcome of one scheduler run.
type TickReport struct {
	Due       int `json:"due"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Err returns a partial batch error when any entry failed, nil otherwise.
func (r TickReport) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return core.PartialBatch(
		fmt.Sprintf("%d of %d recurring transactions failed", r.Failed, r.Due), r.Failed, nil)
}

// Scheduler manages recurring templates and materializes the due ones into
// the ledger.
type Scheduler struct {
	repo   storage.Repository
	ledger *LedgerService
	events notifier
	clock  Clock
}

func NewScheduler(repo storage.Repository, ledger *LedgerService, pub Publisher, clock Clock) *Scheduler {
	return &Scheduler{repo: repo, ledger: ledger, events: notifier{pub: pub}, clock: clock}
}

func (s *Scheduler) Create(ctx context.Context, owner string, req CreateRecurringRequest) (core.RecurringTransaction, error) {
	now := s.clock()
	tmpl := req.Template.fields()
	if tmpl.PaymentMethod == "" {
		tmpl.PaymentMethod = core.DefaultPaymentMethod
	}

	r := core.RecurringTransaction{
		ID:          newID(),
		UserID:      owner,
		Template:    tmpl,
		Frequency:   req.Frequency,
		NextDueDate: req.NextDueDate.UTC(),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.EndDate != nil && !req.EndDate.IsZero() {
		end := req.EndDate.UTC()
		r.EndDate = &end
	}
	if err := r.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}
	if err := s.repo.InsertRecurring(ctx, r); err != nil {
		return core.RecurringTransaction{}, core.Upstream("add recurring transaction", err)
	}

	slog.InfoContext(ctx, "Recurring transaction created",
		"user_id", owner,
		"recurring_id", r.ID,
		"frequency", r.Frequency,
		"next_due_date", r.NextDueDate.Format(time.DateOnly))
	return r, nil
}

// List returns the owner's schedules, soonest first. Inactive ones are
// included only on request.
func (s *Scheduler) List(ctx context.Context, owner string, includeInactive bool) ([]core.RecurringTransaction, error) {
	all, err := s.repo.ListRecurring(ctx, owner)
	if err != nil {
		return nil, core.Upstream("fetch recurring transactions", err)
	}
	out := make([]core.RecurringTransaction, 0, len(all))
	for _, r := range all {
		if r.Active || includeInactive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Scheduler) Get(ctx context.Context, owner, id string) (core.RecurringTransaction, error) {
	r, err := s.repo.GetRecurring(ctx, owner, id)
	if err != nil {
		return core.RecurringTransaction{}, storeErr("fetch recurring transaction", "recurring transaction", err)
	}
	return r, nil
}

func (s *Scheduler) Update(ctx context.Context, owner, id string, req UpdateRecurringRequest) (core.RecurringTransaction, error) {
	r, err := s.repo.GetRecurring(ctx, owner, id)
	if err != nil {
		return core.RecurringTransaction{}, storeErr("update recurring transaction", "recurring transaction", err)
	}

	if req.Template != nil {
		tmpl := req.Template.fields()
		if tmpl.PaymentMethod == "" {
			tmpl.PaymentMethod = r.Template.PaymentMethod
		}
		r.Template = tmpl
	}
	if req.Frequency != nil {
		r.Frequency = *req.Frequency
	}
	if req.NextDueDate != nil {
		r.NextDueDate = req.NextDueDate.UTC()
	}
	if req.EndDate != nil {
		if req.EndDate.IsZero() {
			r.EndDate = nil
		} else {
			end := req.EndDate.UTC()
			r.EndDate = &end
		}
	}
	if req.Active != nil {
		r.Active = *req.Active
	}
	if err := r.Validate(); err != nil {
		return core.RecurringTransaction{}, err
	}

	r.UpdatedAt = s.clock()
	if err := s.repo.UpdateRecurring(ctx, r); err != nil {
		return core.RecurringTransaction{}, storeErr("update recurring transaction", "recurring transaction", err)
	}
	return r, nil
}

func (s *Scheduler) Delete(ctx context.Context, owner, id string) error {
	if err := s.repo.DeleteRecurring(ctx, owner, id); err != nil {
		return storeErr("delete recurring transaction", "recurring transaction", err)
	}
	slog.InfoContext(ctx, "Recurring transaction deleted", "user_id", owner, "recurring_id", id)
	return nil
}

// Tick materializes every active schedule due at now. Each entry yields at
// most one transaction per tick and its next due date moves one frequency
// unit past the previous one. A failing entry is logged and skipped.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	due, err := s.repo.DueRecurring(ctx, now)
	if err != nil {
		return TickReport{}, core.Upstream("fetch due recurring transactions", err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"due", len(due),
		"processing_date", now.Format(time.DateOnly))

	report := TickReport{Due: len(due)}
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			report.Failed += report.Due - report.Succeeded - report.Failed
			return report, err
		}
		if err := s.materialize(ctx, r, now); err != nil {
			report.Failed++
			slog.ErrorContext(ctx, "Failed to materialize recurring transaction",
				"recurring_id", r.ID,
				"user_id", r.UserID,
				"error", err)
			continue
		}
		report.Succeeded++
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"succeeded", report.Succeeded,
		"failed", report.Failed)
	return report, nil
}

func (s *Scheduler) materialize(ctx context.Context, r core.RecurringTransaction, now time.Time) error {
	advancer, err := GetAdvancer(r.Frequency)
	if err != nil {
		return err
	}
	if err := r.Template.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	tmpl := r.Template.Clone()
	if tmpl.Currency == "" {
		tmpl.Currency = s.ledger.currencyFor(ctx, r.UserID)
	}
	if tmpl.PaymentMethod == "" {
		tmpl.PaymentMethod = core.DefaultPaymentMethod
	}
	t, err := s.ledger.record(ctx, r.UserID, tmpl, now)
	if err != nil {
		return err
	}

	r.NextDueDate = advancer.Next(r.NextDueDate)
	if r.EndDate != nil && r.NextDueDate.After(*r.EndDate) {
		r.Active = false
	}
	r.UpdatedAt = s.clock()
	if err := s.repo.UpdateRecurring(ctx, r); err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}

	slog.InfoContext(ctx, "Created transaction from recurring template",
		"recurring_id", r.ID,
		"transaction_id", t.ID,
		"amount", t.Amount.String(),
		"frequency", r.Frequency,
		"next_due_date", r.NextDueDate.Format(time.DateOnly),
		"active", r.Active)

	ev := amqp.NewEvent(amqp.EventRecurringMaterialized, r.UserID, r.ID)
	ev.TransactionID = t.ID
	ev.Amount = t.Amount.String()
	s.events.notify(ctx, ev)
	return nil
}
