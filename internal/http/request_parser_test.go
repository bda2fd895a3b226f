package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryParser(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/?page=3&active=false&min=12.50&eu=3,75&tags=a,,b%20,&from=2024-01-02&to=2024-01-31&at=2024-01-02T10:00:00%2B02:00&q=%20hi%01%20", nil)
	q := NewQueryParser(r)

	assert.Equal(t, 3, q.Int("page", 1))
	assert.Equal(t, 50, q.Int("limit", 50))
	require.NotNil(t, q.Bool("active"))
	assert.False(t, *q.Bool("active"))
	assert.Nil(t, q.Bool("missing"))
	assert.True(t, q.BoolDefault("missing", true))
	assert.Equal(t, "12.5", q.Amount("min").String())
	assert.Equal(t, "3.75", q.Amount("eu").String())
	assert.Nil(t, q.Amount("max"))
	assert.Equal(t, []string{"a", "b"}, q.List("tags"))
	assert.Empty(t, q.List("missing"))
	assert.Equal(t, "hi", q.String("q"))

	from := q.Time("from")
	require.NotNil(t, from)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), *from)

	to := q.TimeEnd("to")
	require.NotNil(t, to)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC), *to)

	at := q.TimeEnd("at")
	require.NotNil(t, at)
	assert.Equal(t, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), *at, "instants are not stretched")

	assert.NoError(t, q.Err())
}

func TestQueryParserKeepsFirstError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=x&active=maybe&min=lots", nil)
	q := NewQueryParser(r)

	assert.Equal(t, 1, q.Int("page", 1))
	assert.Nil(t, q.Bool("active"))
	assert.Nil(t, q.Amount("min"))

	err := q.Err()
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.Contains(t, err.Error(), `invalid page "x"`)
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "object", body: `{"name":"Cash"}`},
		{name: "empty", body: "", wantErr: "request body is required"},
		{name: "malformed", body: `{"name":`, wantErr: "invalid JSON body"},
		{name: "trailing object", body: `{"name":"a"}{"name":"b"}`, wantErr: "single JSON object"},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`, wantErr: "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst struct {
				Name string `json:"name"`
			}
			err := DecodeJSON(httptest.NewRecorder(), r, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "Cash", dst.Name)
				return
			}
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
