package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultAddr = "127.0.0.1:7878"

	maxAcceptBackoff = time.Second
)

// ServerConfig holds configuration for the queue server
type ServerConfig struct {
	Addr    string
	Handler HandlerConfig
}

// QueueServer accepts connections and hands each one to its own goroutine.
// It never touches the queue itself.
type QueueServer struct {
	config  ServerConfig
	handler *Handler
	logger  *logrus.Logger

	mu       sync.Mutex
	listener net.Listener
	inflight sync.WaitGroup
}

func NewQueueServer(config ServerConfig, q *MessageQueue, logger *logrus.Logger) *QueueServer {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}

	return &QueueServer{
		config:  config,
		handler: NewHandler(q, config.Handler, logger),
		logger:  logger,
	}
}

// Start binds the configured address and serves until ctx is cancelled.
// Failing to bind is the only error it returns.
func (qs *QueueServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", qs.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return qs.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. It returns nil after ctx is cancelled and
// every in-flight connection has finished.
func (qs *QueueServer) Serve(ctx context.Context, ln net.Listener) error {
	qs.mu.Lock()
	qs.listener = ln
	qs.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()
	defer ln.Close()

	qs.logger.WithFields(logrus.Fields{
		"address": ln.Addr().String(),
		"timeout": qs.handler.config.Timeout.String(),
	}).Info("Queue service listening")

	// in-flight exchanges run to completion, bounded by their own timeout
	connCtx := context.WithoutCancel(ctx)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}

			backoff = nextBackoff(backoff)
			qs.logger.WithError(err).WithField("retry_in", backoff.String()).Error("Accept error")

			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		qs.inflight.Add(1)
		go func() {
			defer qs.inflight.Done()
			_, _ = qs.handler.Handle(connCtx, conn)
		}()
	}

	qs.inflight.Wait()
	qs.logger.Info("Queue service stopped")
	return nil
}

// Addr returns the bound address, or nil before Serve has been called.
func (qs *QueueServer) Addr() net.Addr {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.listener == nil {
		return nil
	}
	return qs.listener.Addr()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}
