package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetdash/internal/amqp"
	"budgetdash/internal/cli"
	"budgetdash/internal/log"
	"budgetdash/internal/worker"
)

func main() {
	app, err := cli.Bootstrap(context.Background(), cli.Options{Component: log.ComponentWorker})
	if err != nil {
		log.FromContext(context.Background()).Error("Failed to start worker", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	logger := app.Logger
	cfg := app.Config

	logger.Info("Starting budgetdash-worker")

	writer, err := cli.SummaryWriter(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize summary writer", "error", err)
		os.Exit(1)
	}
	exporter := worker.NewExportWorker(app.Service, writer, cfg.ExportBatchInterval)

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
	} else {
		logger.Info("AMQP disabled - exporting on the batch interval only")
	}

	stopped := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		<-stopped
	})

	// Catch up on anything changed while the worker was down.
	logger.Info("Performing startup export")
	if err := exporter.SyncAll(ctx); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeStoreChanged(gctx, exporter.HandleStoreChanged)
		})
	}
	g.Go(func() error {
		return exporter.Run(gctx)
	})

	go func() {
		defer close(stopped)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Worker stopped", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
