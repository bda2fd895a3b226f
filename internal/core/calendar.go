package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const Day = 24 * time.Hour

// DaysUntil is the whole number of days from now to target, rounded up.
// It is negative once target is more than a day in the past.
func DaysUntil(target, now time.Time) int {
	return int(math.Ceil(float64(target.Sub(now)) / float64(Day)))
}

// DaysRemaining is DaysUntil clamped at zero.
func DaysRemaining(target, now time.Time) int {
	return max(0, DaysUntil(target, now))
}

// ParseDate accepts a bare YYYY-MM-DD date (midnight UTC) or an RFC 3339
// timestamp. dateOnly reports which form matched.
func ParseDate(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date %q: must be YYYY-MM-DD or RFC 3339", raw)
	}
	return t.UTC(), false, nil
}

// Date is a time.Time read from request bodies, where clients send either a
// calendar date or a full timestamp. An empty string or null is the zero Date.
type Date struct {
	time.Time
}

func DateOf(t time.Time) Date { return Date{Time: t} }

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if raw == "" {
		*d = Date{}
		return nil
	}
	t, _, err := ParseDate(raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}
