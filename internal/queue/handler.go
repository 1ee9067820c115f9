package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout         = 1000 * time.Millisecond
	DefaultMaxRequestBytes = 64 << 10
)

// Response literals written back to clients. Every response ends with "\n".
const (
	ResponseOK         = "OK"
	ResponseQueueEmpty = "Error: Queue empty!"

	reasonTooLarge = "Request too large"
)

func formatGot(msg string) string {
	return fmt.Sprintf("Got: %q", msg)
}

func formatError(reason string) string {
	return fmt.Sprintf("Error: %s!", reason)
}

// HandlerConfig bounds a single exchange.
type HandlerConfig struct {
	Timeout         time.Duration
	MaxRequestBytes int64
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = DefaultMaxRequestBytes
	}
	return c
}

// Outcome is how a handled connection ended.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeRejected
	OutcomePublished
	OutcomeRetrieved
	OutcomeEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomePublished:
		return "published"
	case OutcomeRetrieved:
		return "retrieved"
	case OutcomeEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// Handler drives one request/response exchange against a shared queue.
type Handler struct {
	queue  *MessageQueue
	config HandlerConfig
	logger logrus.FieldLogger
}

func NewHandler(q *MessageQueue, config HandlerConfig, logger logrus.FieldLogger) *Handler {
	return &Handler{
		queue:  q,
		config: config.withDefaults(),
		logger: logger,
	}
}

// Handle reads the whole request until the client half-closes, applies it to
// the queue and writes exactly one response. The connection is always closed
// on return. The exchange is abandoned once Timeout elapses or ctx is done; a
// queue operation that already happened is not undone.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) (Outcome, error) {
	defer conn.Close()

	log := h.logger.WithFields(logrus.Fields{
		"conn_id":     uuid.NewString(),
		"remote_addr": conn.RemoteAddr().String(),
	})
	log.Info("client connected")

	outcome, err := h.exchange(ctx, conn, log)
	if err != nil {
		log.WithError(err).WithField("outcome", outcome.String()).Warn("connection dropped")
		return outcome, err
	}

	log.WithField("outcome", outcome.String()).Debug("connection closed")
	return outcome, nil
}

func (h *Handler) exchange(ctx context.Context, conn net.Conn, log logrus.FieldLogger) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to set deadline: %w", err)
	}

	// unblock pending I/O if the parent context goes away first
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	raw, err := io.ReadAll(io.LimitReader(conn, h.config.MaxRequestBytes+1))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to read request: %w", h.cause(ctx, err))
	}

	if int64(len(raw)) > h.config.MaxRequestBytes {
		log.WithField("limit", h.config.MaxRequestBytes).Warn("request too large")
		outcome, err := h.respond(ctx, conn, OutcomeRejected, formatError(reasonTooLarge))
		if err == nil {
			drain(conn)
		}
		return outcome, err
	}

	log.WithField("request", string(raw)).Debug("received request")

	cmd, err := Parse(string(raw))
	if err != nil {
		log.WithError(err).Warn("failed to parse command")
		return h.respond(ctx, conn, OutcomeRejected, formatError(err.Error()))
	}

	log.WithField("command", cmd.Kind.String()).Debug("dispatching command")

	switch cmd.Kind {
	case CommandPublish:
		h.queue.Enqueue(cmd.Message)
		return h.respond(ctx, conn, OutcomePublished, ResponseOK)
	case CommandRetrieve:
		msg, ok := h.queue.Dequeue()
		if !ok {
			log.Debug("queue empty")
			return h.respond(ctx, conn, OutcomeEmpty, ResponseQueueEmpty)
		}
		return h.respond(ctx, conn, OutcomeRetrieved, formatGot(msg))
	default:
		return OutcomeFailed, fmt.Errorf("unhandled command kind %v", cmd.Kind)
	}
}

func (h *Handler) respond(ctx context.Context, conn net.Conn, outcome Outcome, response string) (Outcome, error) {
	if _, err := io.WriteString(conn, response+"\n"); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to write response: %w", h.cause(ctx, err))
	}
	return outcome, nil
}

// cause attaches the context error to the deadline error it provoked. The
// socket deadline and the context timer expire together, so the deadline is
// checked directly as well.
func (h *Handler) cause(ctx context.Context, err error) error {
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

// drain consumes unread input after the response is sent so closing the
// socket does not reset the connection before the client reads it.
func drain(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	_, _ = io.Copy(io.Discard, conn)
}
