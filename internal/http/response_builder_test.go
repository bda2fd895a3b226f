package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fintrack/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "1").
		Message("Created").
		Data(map[string]int{"n": 1}).
		Write(rec)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Custom"))
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"message":"Created","data":{"n":1}}`, rec.Body.String())
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"validation", core.Validation("amount must be greater than 0"), http.StatusBadRequest,
			`{"success":false,"message":"amount must be greater than 0","kind":"validation"}`},
		{"not found", core.NotFound("transaction"), http.StatusNotFound,
			`{"success":false,"message":"transaction not found","kind":"not_found"}`},
		{"conflict", core.Conflict("account in use", 3), http.StatusConflict,
			`{"success":false,"message":"account in use","kind":"referential_conflict","count":3}`},
		{"partial batch", core.PartialBatch("1 of 2 failed", 1, nil), http.StatusMultiStatus,
			`{"success":false,"message":"1 of 2 failed","kind":"partial_batch","count":1}`},
		{"upstream hides cause", core.Upstream("fetch budgets", errors.New("disk on fire")), http.StatusInternalServerError,
			`{"success":false,"message":"failed to fetch budgets","kind":"upstream"}`},
		{"foreign error", errors.New("boom"), http.StatusInternalServerError,
			`{"success":false,"message":"internal error","kind":"upstream"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ErrorResponse(tt.err).Write(rec)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestMethodNotAllowedError(t *testing.T) {
	rec := httptest.NewRecorder()
	MethodNotAllowedError("GET, POST").Write(rec)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
}
