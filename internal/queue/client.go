package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	ErrQueueEmpty       = errors.New("queue empty")
	ErrClientClosed     = errors.New("client closed")
	ErrMessageTooLarge  = errors.New("message exceeds request limit")
	ErrMultilineContent = errors.New("message content contains a newline")
)

// ServerError is an "Error: <reason>!" response other than the empty queue.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Reason)
}

// ClientOption configures a QueueClient.
type ClientOption func(*QueueClient)

// WithTimeout bounds every exchange that has no earlier ctx deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(qc *QueueClient) {
		qc.timeout = d
	}
}

// WithMaxRequestBytes sets the server's request limit so oversized publishes
// fail locally instead of being rejected by the server.
func WithMaxRequestBytes(n int64) ClientOption {
	return func(qc *QueueClient) {
		qc.maxRequest = n
	}
}

// QueueClient opens a fresh connection for every command, matching the
// server's one-request-per-connection protocol.
type QueueClient struct {
	addr       string
	timeout    time.Duration
	maxRequest int64
	dialer     net.Dialer
	closed     atomic.Bool
}

var _ QueueService = (*QueueClient)(nil)

func NewQueueClient(addr string, opts ...ClientOption) (*QueueClient, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	qc := &QueueClient{
		addr:       addr,
		timeout:    DefaultTimeout,
		maxRequest: DefaultMaxRequestBytes,
	}
	for _, opt := range opts {
		opt(qc)
	}

	return qc, nil
}

// Do sends one raw command and returns the server's response without its
// trailing newline.
func (qc *QueueClient) Do(ctx context.Context, raw string) (string, error) {
	if qc.closed.Load() {
		return "", ErrClientClosed
	}

	if _, ok := ctx.Deadline(); !ok && qc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qc.timeout)
		defer cancel()
	}

	conn, err := qc.dialer.DialContext(ctx, "tcp", qc.addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	if _, err := io.WriteString(conn, raw+"\n"); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	// the server reads until EOF, so signal the end of the request
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return "", fmt.Errorf("failed to close write side: %w", err)
		}
	}

	response, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	return strings.TrimSuffix(string(response), "\n"), nil
}

// Publish appends content to the queue. The server trims surrounding
// whitespace from the payload, so Retrieve hands back the trimmed text.
// Content containing "\n" fails with ErrMultilineContent and content that
// would not fit the request limit fails with ErrMessageTooLarge; neither
// reaches the server.
func (qc *QueueClient) Publish(ctx context.Context, content string) error {
	if strings.Contains(content, "\n") {
		return ErrMultilineContent
	}

	request := verbPublish + " " + content
	if qc.maxRequest > 0 && int64(len(request)+1) > qc.maxRequest {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(request)+1, qc.maxRequest)
	}

	response, err := qc.Do(ctx, request)
	if err != nil {
		return err
	}

	if response != ResponseOK {
		return responseError(response)
	}

	return nil
}

// Retrieve returns ErrQueueEmpty when there is nothing to take.
func (qc *QueueClient) Retrieve(ctx context.Context) (string, error) {
	response, err := qc.Do(ctx, verbRetrieve)
	if err != nil {
		return "", err
	}

	quoted, ok := strings.CutPrefix(response, "Got: ")
	if !ok {
		return "", responseError(response)
	}

	msg, err := strconv.Unquote(quoted)
	if err != nil {
		return "", fmt.Errorf("malformed response %q: %w", response, err)
	}

	return msg, nil
}

func (qc *QueueClient) Push(ctx context.Context, msg *Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return qc.Publish(ctx, data)
}

// encodeMessage leaves <, > and & unescaped so the envelope stays close to
// the size of its content.
func encodeMessage(msg *Message) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func (qc *QueueClient) Pop(ctx context.Context) (*Message, error) {
	payload, err := qc.Retrieve(ctx)
	if errors.Is(err, ErrQueueEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

func (qc *QueueClient) Close() error {
	qc.closed.Store(true)
	return nil
}

func responseError(response string) error {
	if response == ResponseQueueEmpty {
		return ErrQueueEmpty
	}

	if reason, ok := strings.CutPrefix(response, "Error: "); ok {
		return &ServerError{Reason: strings.TrimSuffix(reason, "!")}
	}

	return fmt.Errorf("unexpected response %q", response)
}
