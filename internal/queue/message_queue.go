package queue

import "sync"

// MessageQueue is an unbounded FIFO of text messages. A single mutex guards
// every access; it is held only for the slice operation itself.
type MessageQueue struct {
	messages []string
	mu       sync.Mutex
}

func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		messages: make([]string, 0),
	}
}

func (mq *MessageQueue) Enqueue(msg string) {
	mq.mu.Lock()
	mq.messages = append(mq.messages, msg)
	mq.mu.Unlock()
}

// Dequeue removes and returns the oldest message. The second result is false
// when the queue is empty, in which case nothing is modified.
func (mq *MessageQueue) Dequeue() (string, bool) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if len(mq.messages) == 0 {
		return "", false
	}

	msg := mq.messages[0]
	mq.messages[0] = ""
	mq.messages = mq.messages[1:]
	if len(mq.messages) == 0 {
		// release the backing array once drained
		mq.messages = make([]string, 0)
	}
	return msg, true
}

func (mq *MessageQueue) Len() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return len(mq.messages)
}
