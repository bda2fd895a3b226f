package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"

	"github.com/shopspring/decimal"
)

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) error {
	var req services.CreateAccountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	a, err := s.app.Accounts.Create(r.Context(), userID(r), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Status(http.StatusCreated).Message("Account created successfully").Data(a).Write(w)
	return nil
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) error {
	q := NewQueryParser(r)
	f := services.AccountFilter{
		Type:   core.AccountType(q.String("type")),
		Active: q.Bool("isActive"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := s.app.Accounts.List(r.Context(), userID(r), f)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(list).Write(w)
	return nil
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) error {
	d, err := s.app.Accounts.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		return err
	}
	NewJSONResponse().Data(d).Write(w)
	return nil
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) error {
	var req services.UpdateAccountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	a, err := s.app.Accounts.Update(r.Context(), userID(r), r.PathValue("id"), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Message("Account updated successfully").Data(a).Write(w)
	return nil
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) error {
	if err := s.app.Accounts.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		return err
	}
	NewJSONResponse().Message("Account deleted successfully").Write(w)
	return nil
}

func (s *Server) handleOverrideBalance(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Balance *decimal.Decimal `json:"balance"`
		Reason  string           `json:"reason"`
	}
	if err := DecodeJSON(w, r, &body); err != nil {
		return err
	}
	if body.Balance == nil {
		return core.Validation("balance is required")
	}
	change, err := s.app.Accounts.OverrideBalance(r.Context(), userID(r), r.PathValue("id"), *body.Balance, sanitizeInput(body.Reason))
	if err != nil {
		return err
	}
	NewJSONResponse().Message("Account balance updated successfully").Data(change).Write(w)
	return nil
}
