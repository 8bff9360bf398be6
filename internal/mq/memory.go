package mq

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by a closed MemoryBackend.
var ErrClosed = errors.New("mq: backend closed")

// MemoryBackend delivers messages in-process. It backs single-binary
// deployments and tests; a failed handler puts the message back once.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]chan Message
	closed chan struct{}
	once   sync.Once
	size   int
}

func NewMemoryBackend(size int) *MemoryBackend {
	if size <= 0 {
		size = 64
	}
	return &MemoryBackend{
		queues: make(map[string]chan Message),
		closed: make(chan struct{}),
		size:   size,
	}
}

func (m *MemoryBackend) queue(channel string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[channel]
	if !ok {
		q = make(chan Message, m.size)
		m.queues[channel] = q
	}
	return q
}

func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	msg := Message{
		ID:         uuid.NewString(),
		Data:       append([]byte(nil), data...),
		Attributes: maps.Clone(attrs),
	}
	select {
	case <-m.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	case m.queue(channel) <- msg:
		return msg.ID, nil
	}
}

func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	q := m.queue(channel)
	retried := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return ErrClosed
		case msg := <-q:
			if err := handler(ctx, msg); err != nil && !retried[msg.ID] {
				retried[msg.ID] = true
				select {
				case q <- msg:
				default:
				}
				continue
			}
			delete(retried, msg.ID)
		}
	}
}

func (m *MemoryBackend) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}
