package queue

import (
	"context"
	"time"
)

// Message is the JSON envelope the file workers publish. The server treats it
// as opaque text.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	LineNum   int       `json:"line_num"`
	Timestamp time.Time `json:"timestamp"`
}

// QueueService defines the interface for queue operations
type QueueService interface {
	Push(ctx context.Context, msg *Message) error
	// Pop returns nil, nil when the queue is empty.
	Pop(ctx context.Context) (*Message, error)
	Close() error
}
