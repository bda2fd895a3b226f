// Package http exposes the ledger services as a JSON API.
//
// This file holds the request side: JSON body decoding and typed query
// parameter parsing. Every parse failure surfaces as a validation error.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// DecodeJSON reads the request body into dst. An empty body, malformed JSON
// and bodies over 1 MiB are validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.Validation("request body is required")
		case errors.As(err, &tooLarge):
			return core.Validation("request body is too large")
		default:
			return core.Validation("invalid JSON body: " + err.Error())
		}
	}
	if dec.More() {
		return core.Validation("request body must contain a single JSON object")
	}
	return nil
}

// QueryParser reads typed query parameters. The first malformed value is
// remembered and reported by Err; later reads still return defaults.
type QueryParser struct {
	values url.Values
	err    error
}

// NewQueryParser creates a parser over the request's query string.
func NewQueryParser(r *http.Request) *QueryParser {
	return &QueryParser{values: r.URL.Query()}
}

func (p *QueryParser) fail(key, value, want string) {
	if p.err == nil {
		p.err = core.Validation(fmt.Sprintf("invalid %s %q: %s", key, value, want))
	}
}

// Err returns the first parse failure, if any.
func (p *QueryParser) Err() error {
	return p.err
}

// String returns the sanitized value of key, or "".
func (p *QueryParser) String(key string) string {
	return sanitizeInput(p.values.Get(key))
}

// Int returns key as an integer, or def when absent.
func (p *QueryParser) Int(key string, def int) int {
	raw := p.String(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, "must be an integer")
		return def
	}
	return n
}

// Bool returns key as a tri-state boolean: nil when absent.
func (p *QueryParser) Bool(key string) *bool {
	raw := p.String(key)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, "must be true or false")
		return nil
	}
	return &b
}

// BoolDefault returns key as a boolean, or def when absent.
func (p *QueryParser) BoolDefault(key string, def bool) bool {
	if b := p.Bool(key); b != nil {
		return *b
	}
	return def
}

// Amount returns key as a non-negative amount, nil when absent. Comma
// decimals such as 3,75 are accepted.
func (p *QueryParser) Amount(key string) *decimal.Decimal {
	raw := p.String(key)
	if raw == "" {
		return nil
	}
	d, err := core.ParseAmount(raw)
	if err != nil {
		p.fail(key, raw, "must be a non-negative number")
		return nil
	}
	return &d
}

// Time returns key as an instant. Both YYYY-MM-DD and RFC 3339 are accepted;
// a bare date means midnight UTC.
func (p *QueryParser) Time(key string) *time.Time {
	t, _ := p.parseTime(key)
	return t
}

// TimeEnd is Time for the closing end of a range: a bare date covers the
// whole day.
func (p *QueryParser) TimeEnd(key string) *time.Time {
	t, dateOnly := p.parseTime(key)
	if t != nil && dateOnly {
		end := t.Add(24*time.Hour - time.Nanosecond)
		return &end
	}
	return t
}

func (p *QueryParser) parseTime(key string) (*time.Time, bool) {
	raw := p.String(key)
	if raw == "" {
		return nil, false
	}
	t, dateOnly, err := core.ParseDate(raw)
	if err != nil {
		p.fail(key, raw, "must be YYYY-MM-DD or RFC 3339")
		return nil, false
	}
	return &t, dateOnly
}

// List splits a comma separated value, dropping empty items.
func (p *QueryParser) List(key string) []string {
	var out []string
	for _, item := range strings.Split(p.String(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
