package http

import (
	"net/http"
	"sync/atomic"

	"fintrack/internal/core"
	"fintrack/internal/services"

	"github.com/shopspring/decimal"
)

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) error {
	var req services.CreateGoalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	g, err := s.app.Goals.Create(r.Context(), userID(r), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Status(http.StatusCreated).Message("Financial goal created successfully").Data(g).Write(w)
	return nil
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) error {
	q := NewQueryParser(r)
	list, err := s.app.Goals.List(r.Context(), userID(r), services.GoalFilter{
		Category: core.GoalCategory(q.String("category")),
		Status:   core.GoalStatusFilter(q.String("status")),
	})
	if err != nil {
		return err
	}
	NewJSONResponse().Data(list).Write(w)
	return nil
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) error {
	d, err := s.app.Goals.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		return err
	}
	NewJSONResponse().Data(d).Write(w)
	return nil
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) error {
	var req services.UpdateGoalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	g, err := s.app.Goals.Update(r.Context(), userID(r), r.PathValue("id"), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Message("Financial goal updated successfully").Data(g).Write(w)
	return nil
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) error {
	if err := s.app.Goals.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		return err
	}
	NewJSONResponse().Message("Financial goal deleted successfully").Write(w)
	return nil
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if err := DecodeJSON(w, r, &body); err != nil {
		return err
	}
	c, err := s.app.Goals.Contribute(r.Context(), userID(r), r.PathValue("id"), body.Amount, sanitizeInput(body.Description))
	if err != nil {
		return err
	}
	atomic.AddInt64(&s.appMetrics.goalContributions, 1)
	s.countTransaction()
	NewJSONResponse().Message("Contribution added successfully").Data(c).Write(w)
	return nil
}
