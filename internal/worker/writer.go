package worker

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/m7moud/tcp-queue/internal/queue"
)

// FileWriterConfig controls batching and polling for FileWriterWorker.
type FileWriterConfig struct {
	OutputFile    string
	BatchSize     int
	FlushInterval time.Duration
	// PollInterval is how long to wait before retrying an empty queue.
	PollInterval time.Duration
	AppendMode   bool
}

// FileWriterWorker drains Message envelopes from the queue into a file, one
// content line per message, and polls while the queue is empty.
type FileWriterWorker struct {
	config  FileWriterConfig
	queue   queue.QueueService
	logger  logrus.FieldLogger
	written int64
	running atomic.Bool
	file    *os.File
}

// NewFileWriterWorker opens (truncating unless AppendMode) the output file.
func NewFileWriterWorker(q queue.QueueService, config FileWriterConfig, logger logrus.FieldLogger) (*FileWriterWorker, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", config.BatchSize)
	}
	if config.FlushInterval <= 0 || config.PollInterval <= 0 {
		return nil, fmt.Errorf("flush and poll intervals must be positive")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if config.AppendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(config.OutputFile, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	return &FileWriterWorker{
		config: config,
		queue:  q,
		logger: logger.WithField("worker", "writer"),
		file:   file,
	}, nil
}

// Start retrieves messages and appends their content to the output file until
// ctx is cancelled. Pending lines are flushed before it returns.
func (w *FileWriterWorker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("worker already running")
	}
	defer w.running.Store(false)

	batch := make([]*queue.Message, 0, w.config.BatchSize)
	flushTicker := time.NewTicker(w.config.FlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping writer")
			if err := w.flushBatch(batch); err != nil {
				return err
			}
			return ctx.Err()

		case <-flushTicker.C:
			if err := w.flushBatch(batch); err != nil {
				return fmt.Errorf("failed to flush batch: %w", err)
			}
			batch = batch[:0]

		default:
			msg, err := w.queue.Pop(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.WithError(err).Error("failed to pop from queue")
					w.wait(ctx)
				}
				continue
			}

			if msg == nil {
				w.wait(ctx)
				continue
			}

			batch = append(batch, msg)

			if len(batch) >= w.config.BatchSize {
				if err := w.flushBatch(batch); err != nil {
					return fmt.Errorf("failed to flush batch: %w", err)
				}
				batch = batch[:0]
			}
		}
	}
}

func (w *FileWriterWorker) wait(ctx context.Context) {
	timer := time.NewTimer(w.config.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *FileWriterWorker) flushBatch(batch []*queue.Message) error {
	if len(batch) == 0 {
		return nil
	}

	for _, msg := range batch {
		if _, err := w.file.WriteString(msg.Content + "\n"); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}

		atomic.AddInt64(&w.written, 1)
		w.logger.WithFields(logrus.Fields{
			"id":     msg.ID,
			"line":   msg.LineNum,
			"length": len(msg.Content),
		}).Debug("wrote message to file")
	}

	if err := w.file.Sync(); err != nil {
		w.logger.WithError(err).Warn("failed to sync file to disk")
	}

	w.logger.WithFields(logrus.Fields{
		"batch_size": len(batch),
		"total":      atomic.LoadInt64(&w.written),
	}).Info("flushed batch to file")

	return nil
}

// GetStats reports lines written so far along with the flush and poll settings.
func (w *FileWriterWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"written":        atomic.LoadInt64(&w.written),
		"output_file":    w.config.OutputFile,
		"batch_size":     w.config.BatchSize,
		"flush_interval": w.config.FlushInterval.String(),
		"poll_interval":  w.config.PollInterval.String(),
		"append_mode":    w.config.AppendMode,
		"is_running":     w.running.Load(),
	}
}

// Close closes the output file and the queue client; Start must have returned.
func (w *FileWriterWorker) Close() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}
	if w.queue != nil {
		return w.queue.Close()
	}
	return nil
}

// IsRunning reports whether Start is still draining the queue.
func (w *FileWriterWorker) IsRunning() bool {
	return w.running.Load()
}
