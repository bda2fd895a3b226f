package http

import (
	"net/http"

	"fintrack/internal/services"
)

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) error {
	var req services.CreateRecurringRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	rt, err := s.app.Recurring.Create(r.Context(), userID(r), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Status(http.StatusCreated).Message("Recurring transaction created successfully").Data(rt).Write(w)
	return nil
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) error {
	q := NewQueryParser(r)
	includeInactive := q.BoolDefault("includeInactive", false)
	if err := q.Err(); err != nil {
		return err
	}
	items, err := s.app.Recurring.List(r.Context(), userID(r), includeInactive)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(items).Write(w)
	return nil
}

func (s *Server) handleGetRecurring(w http.ResponseWriter, r *http.Request) error {
	rt, err := s.app.Recurring.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		return err
	}
	NewJSONResponse().Data(rt).Write(w)
	return nil
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) error {
	var req services.UpdateRecurringRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	rt, err := s.app.Recurring.Update(r.Context(), userID(r), r.PathValue("id"), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Message("Recurring transaction updated successfully").Data(rt).Write(w)
	return nil
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) error {
	if err := s.app.Recurring.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		return err
	}
	NewJSONResponse().Message("Recurring transaction deleted successfully").Write(w)
	return nil
}
