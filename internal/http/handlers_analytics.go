package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

func (s *Server) handleTransactionAnalytics(w http.ResponseWriter, r *http.Request) error {
	q := NewQueryParser(r)
	rng := services.DateRange{From: q.Time("startDate"), To: q.TimeEnd("endDate")}
	groupBy := core.Granularity(q.String("groupBy"))
	if err := q.Err(); err != nil {
		return err
	}
	report, err := s.app.Analytics.Report(r.Context(), userID(r), rng, groupBy)
	if err != nil {
		return err
	}
	NewJSONResponse().Data(report).Write(w)
	return nil
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) error {
	u, err := s.app.Profiles.Get(r.Context(), userID(r))
	if err != nil {
		return err
	}
	NewJSONResponse().Data(u).Write(w)
	return nil
}

// handleUpdateProfile changes the preferred currency, the only mutable
// profile setting.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Currency string `json:"currency"`
	}
	if err := DecodeJSON(w, r, &body); err != nil {
		return err
	}
	u, err := s.app.Profiles.SetCurrency(r.Context(), userID(r), body.Currency)
	if err != nil {
		return err
	}
	NewJSONResponse().Message("Profile updated successfully").Data(u).Write(w)
	return nil
}
