package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/m7moud/tcp-queue/internal/queue"
)

// FileReaderConfig sizes the line scanner and the publish batches.
type FileReaderConfig struct {
	InputFile  string
	BatchSize  int
	BufferSize int
}

// FileReaderWorker publishes each line of a file as one Message envelope.
type FileReaderWorker struct {
	config    FileReaderConfig
	queue     queue.QueueService
	logger    logrus.FieldLogger
	processed int64
	skipped   int64
	running   atomic.Bool
}

// NewFileReaderWorker checks the batching parameters; the input file is only
// opened by Start.
func NewFileReaderWorker(q queue.QueueService, config FileReaderConfig, logger logrus.FieldLogger) (*FileReaderWorker, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", config.BatchSize)
	}
	if config.BufferSize <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", config.BufferSize)
	}

	return &FileReaderWorker{
		config: config,
		queue:  q,
		logger: logger.WithField("worker", "reader"),
	}, nil
}

// Start reads the file line by line and pushes every line to the queue. It
// returns once the file is exhausted or ctx is cancelled.
func (w *FileReaderWorker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("worker already running")
	}
	defer w.running.Store(false)

	file, err := os.Open(w.config.InputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, w.config.BufferSize)
	scanner.Buffer(buf, w.config.BufferSize)

	lineNum := 0
	batch := make([]*queue.Message, 0, w.config.BatchSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			w.logger.Info("context cancelled, stopping reader")
			return err
		}

		lineNum++
		batch = append(batch, &queue.Message{
			ID:        uuid.NewString(),
			Content:   scanner.Text(),
			Timestamp: time.Now(),
			LineNum:   lineNum,
		})

		if len(batch) >= w.config.BatchSize {
			if err := w.processBatch(ctx, batch); err != nil {
				return fmt.Errorf("failed to process batch: %w", err)
			}
			batch = batch[:0]
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	if err := w.processBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to flush final batch: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"processed": atomic.LoadInt64(&w.processed),
		"skipped":   atomic.LoadInt64(&w.skipped),
		"file":      w.config.InputFile,
	}).Info("file reading completed")

	return nil
}

func (w *FileReaderWorker) processBatch(ctx context.Context, batch []*queue.Message) error {
	for _, msg := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.queue.Push(ctx, msg)
		if errors.Is(err, queue.ErrMessageTooLarge) {
			// one oversized line must not stop the rest of the file
			atomic.AddInt64(&w.skipped, 1)
			w.logger.WithError(err).WithFields(logrus.Fields{
				"line":   msg.LineNum,
				"length": len(msg.Content),
			}).Warn("skipping line too large for the queue")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to push line %d: %w", msg.LineNum, err)
		}
		atomic.AddInt64(&w.processed, 1)

		w.logger.WithFields(logrus.Fields{
			"id":     msg.ID,
			"line":   msg.LineNum,
			"length": len(msg.Content),
		}).Debug("pushed message to queue")
	}
	return nil
}

// GetStats reports lines published and lines skipped for exceeding the
// request limit.
func (w *FileReaderWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"processed":   atomic.LoadInt64(&w.processed),
		"skipped":     atomic.LoadInt64(&w.skipped),
		"input_file":  w.config.InputFile,
		"batch_size":  w.config.BatchSize,
		"buffer_size": w.config.BufferSize,
		"is_running":  w.running.Load(),
	}
}

// Close releases the queue client; Start must have returned.
func (w *FileReaderWorker) Close() error {
	if w.queue != nil {
		return w.queue.Close()
	}
	return nil
}

// IsRunning reports whether Start is still scanning the file.
func (w *FileReaderWorker) IsRunning() bool {
	return w.running.Load()
}
