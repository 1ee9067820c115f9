package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/m7moud/tcp-queue/internal/config"
	"github.com/m7moud/tcp-queue/internal/queue"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		config.NewLogger(config.DefaultLogConfig()).WithError(err).Fatal("Failed to load configuration")
	}

	if len(os.Args) > 1 {
		cfg.Server.Addr = os.Args[1]
	}

	logger := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the queue lives for the whole process and is handed to the server
	mq := queue.NewMessageQueue()
	server := queue.NewQueueServer(cfg.Server, mq, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return errors.Wrap(server.Start(ctx), "queue server")
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.WithField("pending", mq.Len()).Info("Shutting down, pending messages are discarded")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("Failed to start queue server")
	}
}
