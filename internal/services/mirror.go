package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// MirrorProcessorConfig holds configuration for the mirror processor
type MirrorProcessorConfig struct {
	// PollInterval is how often to check for pending transactions (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of transactions mirrored per run (default: 20)
	BatchSize int

	// MaxRetries is the number of failed appends before a transaction is
	// marked as a mirror error (default: 3)
	MaxRetries int
}

// DefaultMirrorProcessorConfig returns sensible defaults
func DefaultMirrorProcessorConfig() MirrorProcessorConfig {
	return MirrorProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    20,
		MaxRetries:   3,
	}
}

// MirrorProcessor copies newly recorded transactions to the spreadsheet
// mirror. It polls the store for pending rows and can be nudged by ledger
// events so new rows show up without waiting for the next poll.
type MirrorProcessor struct {
	ledger storage.TransactionStore
	writer sheets.LedgerWriter
	config MirrorProcessorConfig

	batchMu  sync.Mutex
	attempts map[string]int

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorProcessor(ledger storage.TransactionStore, writer sheets.LedgerWriter, config MirrorProcessorConfig) *MirrorProcessor {
	return &MirrorProcessor{
		ledger:   ledger,
		writer:   writer,
		config:   config,
		attempts: map[string]int{},
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *MirrorProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("mirror processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Mirror processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for the loop to exit. After a
// timeout it may be called again to keep waiting.
func (p *MirrorProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Mirror processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *MirrorProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *MirrorProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch mirrors one batch of pending transactions and returns how many
// were appended. Concurrent calls are serialised.
func (p *MirrorProcessor) ProcessBatch(ctx context.Context) int {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	items, err := p.ledger.PendingMirror(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fetch pending mirror batch", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing mirror batch", "count", len(items))

	mirrored := 0
	for _, t := range items {
		if ctx.Err() != nil {
			return mirrored
		}

		ref, err := p.writer.AppendTransaction(ctx, t)
		if err != nil {
			p.handleFailure(ctx, t.ID, err)
			continue
		}
		delete(p.attempts, t.ID)

		if err := p.ledger.SetMirrorStatus(ctx, t.ID, storage.MirrorSynced); err != nil {
			slog.WarnContext(ctx, "Failed to mark transaction as mirrored",
				"transaction_id", t.ID, "error", err)
		}
		mirrored++
		slog.InfoContext(ctx, "Mirrored transaction",
			"transaction_id", t.ID,
			"user_id", t.UserID,
			"row_ref", ref)
	}
	return mirrored
}

func (p *MirrorProcessor) handleFailure(ctx context.Context, id string, cause error) {
	p.attempts[id]++
	attempt := p.attempts[id]
	slog.WarnContext(ctx, "Mirror append failed",
		"transaction_id", id,
		"attempt", attempt,
		"error", cause)

	if attempt < p.config.MaxRetries {
		return
	}
	delete(p.attempts, id)
	if err := p.ledger.SetMirrorStatus(ctx, id, storage.MirrorError); err != nil {
		slog.ErrorContext(ctx, "Failed to mark mirror error",
			"transaction_id", id, "error", err)
		return
	}
	slog.ErrorContext(ctx, "Transaction mirror failed permanently after max retries",
		"transaction_id", id,
		"attempts", attempt)
}
