package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"budgetdash/internal/cli"
	apphttp "budgetdash/internal/http"
	"budgetdash/internal/worker"
)

func cmdServe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "serve")
	addr := fs.String("addr", ":"+e.app.Config.Port, "listen `address`")
	rateLimit := fs.Int("rate-limit", 0, "mutating requests per client per minute (0 uses the default)")
	if err := parse(fs, args); err != nil {
		return err
	}
	logger := e.app.Logger

	// Without a broker the exporter runs in-process and receives changes
	// directly from the service.
	svc := e.svc
	var exporter *worker.ExportWorker
	if e.app.AMQP == nil && e.app.Config.GoogleSpreadsheetID != "" {
		writer, err := cli.SummaryWriter(ctx, e.app.Config)
		if err != nil {
			return err
		}
		exporter = worker.NewExportWorker(e.app.Service, writer, e.app.Config.ExportBatchInterval)
		svc = e.app.ServiceWith(exporter)
	}

	srv := apphttp.NewServer(*addr, svc, apphttp.Options{RateLimit: *rateLimit, Logger: logger})

	exporterDone := make(chan struct{})
	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
		<-exporterDone
	})

	if exporter != nil {
		go func() {
			defer close(exporterDone)
			if err := exporter.SyncAll(shutdownCtx); err != nil {
				logger.Error("Startup export failed", "error", err)
			}
			if err := exporter.Run(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Exporter stopped", "error", err)
			}
		}()
	} else {
		close(exporterDone)
	}

	logger.Info("Starting budgetdash server", "addr", *addr, "months", len(svc.Months()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	cli.WaitForShutdown(shutdownCtx, done)
	return nil
}
