package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fincon/internal/amqp"
	"fincon/internal/cli"
	"fincon/internal/config"
	applog "fincon/internal/log"
	gsheet "fincon/internal/sheets/google"
	"fincon/internal/storage"
	"fincon/internal/worker"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	cli.MustValidate(logger, cfg.ValidateWorker)

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Starting fincon-worker")
	if err := run(ctx, cfg, logger.WithComponent(applog.ComponentWorker)); err != nil {
		logger.Error("Worker error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	exporter, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		TabPrefix:       cfg.GoogleSheetTabPrefix,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	bus, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer bus.Close()

	w := worker.NewExportWorker(repo, exporter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := bus.ConsumeChanges(gctx, func(ctx context.Context, msg *amqp.ChangeMessage) error {
			if err := w.HandleChange(ctx, msg); err != nil {
				// Acked anyway; the retry loop owns it from here.
				logger.WarnContext(ctx, "Export failed, queued for retry",
					applog.FieldUserID, msg.UserID,
					applog.FieldChangeKind, msg.Kind,
					applog.FieldError, err)
			}
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.ExportRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := w.ProcessPending(gctx); err != nil && gctx.Err() == nil {
					logger.ErrorContext(gctx, "Periodic export retry failed", applog.FieldError, err, "pending", w.Pending())
				}
			}
		}
	})
	return g.Wait()
}
