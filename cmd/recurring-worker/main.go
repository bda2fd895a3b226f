package main

import (
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg, logger, err := cli.LoadAndValidateConfig(log.ComponentScheduler)
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}

	ctx, stop := cli.ShutdownContext(logger)
	defer stop()

	app, _, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer app.Close()

	interval := cfg.RecurringProcessorInterval
	logger.Info("Recurring processor configured",
		"interval", interval,
		"events", app.Events != nil)

	run := func(now time.Time) {
		report, err := app.Recurring.Tick(ctx, now)
		if err == nil {
			err = report.Err()
		}
		fields := []any{
			log.FieldOperation, log.OpTick,
			"due", report.Due,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"next_check", now.Add(interval).Format(time.TimeOnly),
		}
		if err != nil {
			logger.Error("Recurring processing finished with failures", append(fields, log.FieldError, err)...)
			return
		}
		logger.Info("Recurring processing complete", fields...)
	}

	logger.Info("Running initial recurring processing")
	run(services.SystemClock())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Recurring worker stopped", log.FieldOperation, log.OpShutdown)
			return
		case <-ticker.C:
			run(services.SystemClock())
		}
	}
}

