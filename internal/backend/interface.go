package backend

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Backend is the wired service graph every process shares: one repository,
// an optional event publisher and the services built on top of them.
type Backend struct {
	Repository storage.Repository
	// Events is nil when AMQP_URL is empty or the broker was unreachable.
	Events *amqp.Client
	Caches *cache.Manager

	Ledger    *services.LedgerService
	Accounts  *services.AccountService
	Budgets   *services.BudgetService
	Goals     *services.GoalService
	Recurring *services.Scheduler
	Analytics *services.Analytics
	Profiles  *services.ProfileService

	cleanup []CleanupFunc
}

// Close releases resources in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanup = nil
	return errors.Join(errs...)
}

func (b *Backend) onClose(fn CleanupFunc) {
	b.cleanup = append(b.cleanup, fn)
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend wires a Backend for the provided config
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
	// CreateLedgerWriter returns the mirror target: Google Sheets when a
	// spreadsheet is configured, an in-memory store otherwise.
	CreateLedgerWriter(ctx context.Context, config Config) (sheets.LedgerWriter, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	DefaultCurrency string
	CacheTTL        time.Duration
	CacheSize       int

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Clock overrides the wall clock for every service; nil means UTC now.
	Clock services.Clock
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
