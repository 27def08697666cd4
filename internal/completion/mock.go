package completion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/coinchat/internal/exchange"
)

// Mock is an offline completer. With no scripted replies it answers with a
// canned acknowledgement of the user's message.
type Mock struct {
	mu       sync.Mutex
	name     string
	replies  []string
	next     int
	err      error
	delay    time.Duration
	requests []exchange.Request
}

var _ exchange.Completer = (*Mock)(nil)

// NewMock returns a Mock answering as name.
func NewMock(name string) *Mock {
	if name == "" {
		name = "AI"
	}
	return &Mock{name: name}
}

// SetReplies scripts the replies returned in order, cycling at the end.
func (m *Mock) SetReplies(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = replies
	m.next = 0
}

// SetError makes every call fail with err.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every call wait d, or until the context is done.
func (m *Mock) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Requests returns a copy of every request received.
func (m *Mock) Requests() []exchange.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]exchange.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *Mock) Complete(ctx context.Context, req exchange.Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	delay, err := m.delay, m.err
	reply := ""
	if len(m.replies) > 0 {
		reply = m.replies[m.next%len(m.replies)]
		m.next++
	}
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("completion: mock: %w: %w", exchange.ErrTransport, ctx.Err())
		case <-t.C:
		}
	}
	if err != nil {
		return "", err
	}
	if reply == "" {
		reply = fmt.Sprintf("%s here. You said: %q", m.name, req.Text)
	}
	return reply, nil
}
