package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
)

const cacheCleanupInterval = time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With("component", "backend"),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{}
	repo, err := f.createRepository(config)
	if err != nil {
		return nil, err
	}
	b.Repository = repo
	b.onClose(repo.Close)

	// Publishing is optional: without a broker, events are skipped and every
	// operation still succeeds.
	var pub services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			b.Events = client
			b.onClose(client.Close)
			pub = client
		}
	}

	var currencies *cache.LRU[string]
	b.Caches = cache.NewManager()
	if config.CacheTTL > 0 {
		size := config.CacheSize
		if size <= 0 {
			size = defaultCacheSize
		}
		currencies = cache.NewLRU[string](size, config.CacheTTL)
		b.Caches.Register(currencies)
		b.Caches.StartCleanup(cacheCleanupInterval)
		b.onClose(func() error {
			b.Caches.Stop()
			return nil
		})
	}

	clock := config.Clock
	if clock == nil {
		clock = services.SystemClock
	}

	b.Ledger = services.NewLedgerService(repo, pub, clock, currencies, config.DefaultCurrency)
	b.Accounts = services.NewAccountService(repo, clock, config.DefaultCurrency)
	b.Budgets = services.NewBudgetService(repo, pub, clock)
	b.Goals = services.NewGoalService(repo, b.Ledger, pub, clock)
	b.Recurring = services.NewScheduler(repo, b.Ledger, pub, clock)
	b.Analytics = services.NewAnalytics(repo)
	b.Profiles = services.NewProfileService(repo, clock, currencies, config.DefaultCurrency)

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type,
		"events_enabled", b.Events != nil,
		"cache_ttl", config.CacheTTL)

	return b, nil
}

func (f *DefaultFactory) createRepository(config Config) (storage.Repository, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite repository", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory repository")
		return storage.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// CreateLedgerWriter implements Factory.CreateLedgerWriter
func (f *DefaultFactory) CreateLedgerWriter(ctx context.Context, config Config) (sheets.LedgerWriter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.InfoContext(ctx, "No spreadsheet configured, mirroring to memory")
		return memory.New(), nil
	}

	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets mirror",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet", config.GoogleSheetName)
	return cli, nil
}
