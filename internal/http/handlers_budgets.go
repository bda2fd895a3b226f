package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

const defaultBudgetLimit = 10

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) error {
	var req services.CreateBudgetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	b, err := s.app.Budgets.Create(r.Context(), userID(r), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Status(http.StatusCreated).Message("Budget created successfully").Data(b).Write(w)
	return nil
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) error {
	q := NewQueryParser(r)
	f := services.BudgetFilter{
		Active:    q.Bool("isActive"),
		Period:    core.BudgetPeriod(q.String("period")),
		Page:      q.Int("page", 1),
		Limit:     q.Int("limit", defaultBudgetLimit),
		Reconcile: q.BoolDefault("includeSpent", true),
	}
	if err := q.Err(); err != nil {
		return err
	}
	page, err := s.app.Budgets.List(r.Context(), userID(r), f)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(page).Write(w)
	return nil
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) error {
	d, err := s.app.Budgets.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		return err
	}
	NewJSONResponse().Data(d).Write(w)
	return nil
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) error {
	var req services.UpdateBudgetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	b, err := s.app.Budgets.Update(r.Context(), userID(r), r.PathValue("id"), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Message("Budget updated successfully").Data(b).Write(w)
	return nil
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) error {
	if err := s.app.Budgets.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		return err
	}
	NewJSONResponse().Message("Budget deleted successfully").Write(w)
	return nil
}

func (s *Server) handleBudgetAnalytics(w http.ResponseWriter, r *http.Request) error {
	period := core.BudgetPeriod(NewQueryParser(r).String("period"))
	a, err := s.app.Budgets.Analytics(r.Context(), userID(r), period)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(a).Write(w)
	return nil
}
