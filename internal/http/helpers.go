package http

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"fintrack/internal/log"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"

	// UserIDHeader names the caller. Authentication happens upstream of this
	// service; the header is trusted as-is.
	UserIDHeader = "X-User-ID"
)

var validUserID = regexp.MustCompile(`^[A-Za-z0-9_.@:-]{1,128}$`)

// requireUser rejects requests without a well formed X-User-ID and stores the
// caller in the request context.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if !validUserID.MatchString(userID) {
			UnauthorizedError("missing or invalid " + UserIDHeader + " header").Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, log.LoggerContextKey, log.FromContext(ctx).With(log.FieldUserID, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the caller stored by requireUser.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
