package main

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"

	"golang.org/x/sync/errgroup"
)

const stopTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, logger, err := cli.LoadAndValidateConfig(log.ComponentWorker)
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}

	ctx, stop := cli.ShutdownContext(logger)
	defer stop()

	app, bc, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer app.Close()

	writer, err := backend.NewFactory(logger.Logger).CreateLedgerWriter(ctx, bc)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize ledger mirror", err)
	}

	mirror := services.NewMirrorProcessor(app.Repository, writer, services.MirrorProcessorConfig{
		PollInterval: cfg.MirrorInterval,
		BatchSize:    cfg.MirrorBatchSize,
		MaxRetries:   cfg.MirrorMaxRetries,
	})
	syncWorker := worker.NewSyncWorker(app.Repository, mirror)

	logger.Info("Performing startup sync check")
	if n := syncWorker.StartupSyncCheck(ctx); n > 0 {
		logger.Info("Startup sync mirrored backlog", "transactions", n)
	}

	if err := mirror.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start mirror processor", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if app.Events != nil {
		g.Go(func() error {
			err := app.Events.Consume(gctx, syncWorker.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, mirroring on the poll interval only",
			"interval", cfg.MirrorInterval)
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return mirror.Stop(stopCtx)
	})

	logger.Info("Ledger mirror worker running",
		"batch_size", cfg.MirrorBatchSize,
		"sheets", cfg.SheetsEnabled())

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		return
	}
	logger.Info("Ledger mirror worker stopped", log.FieldOperation, log.OpShutdown)
}
