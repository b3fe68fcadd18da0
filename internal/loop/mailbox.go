package loop

import (
	"context"
	"sync"

	"github.com/matheus3301/dialog/internal/model"
)

// Mailbox is an unbounded FIFO of Msgs. Post never blocks and never drops.
type Mailbox struct {
	mu     sync.Mutex
	queue  []model.Msg
	signal chan struct{}
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{signal: make(chan struct{}, 1)}
}

// Post enqueues msg. It is safe to call from any goroutine.
func (m *Mailbox) Post(msg model.Msg) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Receive returns the oldest Msg, waiting until one arrives or ctx ends.
func (m *Mailbox) Receive(ctx context.Context) (model.Msg, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return msg, nil
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued Msgs.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
