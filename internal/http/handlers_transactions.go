package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

const defaultTransactionLimit = 50

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) error {
	var req services.TransactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	t, err := s.app.Ledger.Create(r.Context(), userID(r), req)
	if err != nil {
		return err
	}
	s.countTransaction()
	s.events.LogTransactionCreated(r.Context(), t.UserID, t.ID, string(t.Type), t.Amount.String())
	NewJSONResponse().Status(http.StatusCreated).Message("Transaction created successfully").Data(t).Write(w)
	return nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) error {
	q := NewQueryParser(r)
	f := services.TransactionFilter{
		Type:          core.TransactionType(q.String("type")),
		Category:      q.String("category"),
		From:          q.Time("startDate"),
		To:            q.TimeEnd("endDate"),
		MinAmount:     q.Amount("minAmount"),
		MaxAmount:     q.Amount("maxAmount"),
		PaymentMethod: q.String("paymentMethod"),
		AccountID:     q.String("accountId"),
		Tags:          q.List("tags"),
		Search:        q.String("search"),
		SortBy:        q.String("sortBy"),
		Asc:           strings.EqualFold(q.String("sortOrder"), "asc"),
		Page:          q.Int("page", 1),
		Limit:         q.Int("limit", defaultTransactionLimit),

		IncludeDeleted: q.BoolDefault("includeDeleted", false),
	}
	if err := q.Err(); err != nil {
		return err
	}
	page, err := s.app.Ledger.List(r.Context(), userID(r), f)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(page).Write(w)
	return nil
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) error {
	q := NewQueryParser(r)
	limit := q.Int("limit", 0)
	if err := q.Err(); err != nil {
		return err
	}
	items, err := s.app.Ledger.Recent(r.Context(), userID(r), limit)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(items).Write(w)
	return nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) error {
	t, err := s.app.Ledger.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		return err
	}
	NewJSONResponse().Data(t).Write(w)
	return nil
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) error {
	var req services.TransactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		return err
	}
	t, err := s.app.Ledger.Update(r.Context(), userID(r), r.PathValue("id"), req)
	if err != nil {
		return err
	}
	NewJSONResponse().Message("Transaction updated successfully").Data(t).Write(w)
	return nil
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) error {
	if err := s.app.Ledger.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		return err
	}
	NewJSONResponse().Message("Transaction deleted successfully").Write(w)
	return nil
}

func (s *Server) handleBulkDeleteTransactions(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		TransactionIDs []string `json:"transactionIds"`
	}
	if err := DecodeJSON(w, r, &body); err != nil {
		return err
	}
	deleted, err := s.app.Ledger.BulkDelete(r.Context(), userID(r), body.TransactionIDs)
	if err != nil {
		return err
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Bulk delete handled",
		log.FieldOperation, log.OpDelete,
		"deleted", deleted)
	NewJSONResponse().
		Message("Transactions deleted successfully").
		Data(map[string]int{"deletedCount": deleted}).
		Write(w)
	return nil
}

func (s *Server) handleDuplicateTransaction(w http.ResponseWriter, r *http.Request) error {
	t, err := s.app.Ledger.Duplicate(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		return err
	}
	s.countTransaction()
	NewJSONResponse().Status(http.StatusCreated).Message("Transaction duplicated successfully").Data(t).Write(w)
	return nil
}
