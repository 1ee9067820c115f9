package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/m7moud/tcp-queue/internal/config"
	"github.com/m7moud/tcp-queue/internal/queue"
	"github.com/m7moud/tcp-queue/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		config.NewLogger(config.DefaultLogConfig()).WithError(err).Fatal("Failed to load configuration")
	}

	logger := config.NewLogger(cfg.Log)
	logger.WithField("queue_addr", cfg.Server.Addr).Info("Starting reader/writer system...")

	newClient := func() *queue.QueueClient {
		client, err := queue.NewQueueClient(cfg.Server.Addr,
			queue.WithTimeout(cfg.Server.Handler.Timeout),
			queue.WithMaxRequestBytes(cfg.Server.Handler.MaxRequestBytes),
		)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create queue client")
		}
		return client
	}

	reader, err := worker.NewFileReaderWorker(newClient(), cfg.ReaderConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create reader worker")
	}
	defer reader.Close()

	writer, err := worker.NewFileWriterWorker(newClient(), cfg.WriterConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create writer worker")
	}
	defer writer.Close()

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := reader.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "reader worker error")
		}

		return nil
	})

	g.Go(func() error {
		err := writer.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "writer worker error")
		}

		return nil
	})

	// The reader finishes on its own; the writer keeps draining until a signal
	// arrives or a worker fails.
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received signal, shutting down...")
		cancel()
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down workers...")
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Worker failed, shutting down...")
	} else {
		logger.WithFields(logrus.Fields{
			"reader": reader.GetStats(),
			"writer": writer.GetStats(),
		}).Info("All workers completed successfully.")
	}

	logger.Info("System shutting down")
}
