package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the stable, machine-checkable class of a failure.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "referential_conflict"
	KindUpstream     ErrorKind = "upstream"
	KindPartialBatch ErrorKind = "partial_batch"
)

// Error is returned by every service operation that fails for a reason the
// caller can act on. Err holds the underlying cause, if any, for diagnostics.
type Error struct {
	Kind    ErrorKind
	Message string
	// Count is the number of blocking references for KindConflict and the
	// number of failed entries for KindPartialBatch.
	Count int
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrInvalidAmount         = Validation("amount must be greater than 0")
	ErrMalformedAmount       = Validation("amount must be a plain non-negative number")
	ErrInvalidType           = Validation(fmt.Sprintf("type must be one of: %s", joinSet(TransactionTypes)))
	ErrInvalidAccountType    = Validation(fmt.Sprintf("account type must be one of: %s", joinSet(AccountTypes)))
	ErrInvalidPeriod         = Validation(fmt.Sprintf("period must be one of: %s", joinSet(BudgetPeriods)))
	ErrInvalidGoalCategory   = Validation(fmt.Sprintf("category must be one of: %s", joinSet(GoalCategories)))
	ErrInvalidFrequency      = Validation(fmt.Sprintf("frequency must be one of: %s", joinSet(Frequencies)))
	ErrEmptyCategory         = Validation("category is required")
	ErrCategoriesExceedTotal = Validation("category budgets exceed total budget")
	ErrTargetDateNotFuture   = Validation("target date must be in the future")
)

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NotFound reports that entity does not exist or is not owned by the caller.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func Conflict(msg string, count int) *Error {
	return &Error{Kind: KindConflict, Message: msg, Count: count}
}

// Upstream wraps a store or transport failure. The message stays generic.
func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: "failed to " + op, Err: err}
}

func PartialBatch(msg string, failed int, err error) *Error {
	return &Error{Kind: KindPartialBatch, Message: msg, Count: failed, Err: err}
}

// KindOf returns the kind of err, or KindUpstream for errors that did not
// originate here.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func joinSet[T ~string](set []T) string {
	parts := make([]string, len(set))
	for i, v := range set {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
