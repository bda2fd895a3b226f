// This file implements the Strategy Pattern for advancing recurring schedules.
// Each frequency has its own strategy that computes the next due date from
// the previous one, so late ticks never move the cadence anchor.

package services

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// Advancer is the strategy interface for moving a schedule forward by one unit.
type Advancer interface {
	// Next returns the due date that follows prev.
	Next(prev time.Time) time.Time
}

// DailyAdvancer implements Advancer for daily schedules.
type DailyAdvancer struct{}

func (DailyAdvancer) Next(prev time.Time) time.Time { return prev.AddDate(0, 0, 1) }

// WeeklyAdvancer implements Advancer for weekly schedules.
type WeeklyAdvancer struct{}

func (WeeklyAdvancer) Next(prev time.Time) time.Time { return prev.AddDate(0, 0, 7) }

// MonthlyAdvancer implements Advancer for monthly schedules.
//
// It adds one calendar month with time.AddDate normalisation: Jan 31 moves to
// Mar 2 (or Mar 3 outside leap years), matching how period windows are built.
type MonthlyAdvancer struct{}

func (MonthlyAdvancer) Next(prev time.Time) time.Time { return prev.AddDate(0, 1, 0) }

// YearlyAdvancer implements Advancer for yearly schedules.
type YearlyAdvancer struct{}

func (YearlyAdvancer) Next(prev time.Time) time.Time { return prev.AddDate(1, 0, 0) }

// advancers maps frequencies to their strategies.
var advancers = map[core.Frequency]Advancer{
	core.Daily:   DailyAdvancer{},
	core.Weekly:  WeeklyAdvancer{},
	core.Monthly: MonthlyAdvancer{},
	core.Yearly:  YearlyAdvancer{},
}

// GetAdvancer returns the strategy for frequency, or an error if none is
// registered.
func GetAdvancer(frequency core.Frequency) (Advancer, error) {
	a, ok := advancers[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return a, nil
}

// RegisterAdvancer installs a strategy for a frequency, replacing any existing one.
func RegisterAdvancer(frequency core.Frequency, a Advancer) {
	advancers[frequency] = a
}
