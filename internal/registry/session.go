package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session is one authenticated live connection. The transport drains Out
// until Done is closed.
type Session struct {
	ID          string
	PlayerID    string
	Username    string
	ConnectedAt time.Time

	out  chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeCode   string
	closeReason string

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func newSession(id, playerID, username string, queue int, now time.Time) *Session {
	if queue <= 0 {
		queue = 1
	}
	return &Session{
		ID:          id,
		PlayerID:    playerID,
		Username:    username,
		ConnectedAt: now,
		out:         make(chan []byte, queue),
		done:        make(chan struct{}),
	}
}

// NewDetached builds a session that is not tracked by any registry. Used by tests
// of components that only need a delivery endpoint.
func NewDetached(id, playerID string, queue int) *Session {
	return newSession(id, playerID, playerID, queue, time.Now())
}

// Send enqueues b without blocking. It reports false if the queue is full or
// the session is closed.
func (s *Session) Send(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- b:
		s.sent.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Session) Out() <-chan []byte { return s.out }

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close marks the session closed with a wire error code and reason. Only the
// first call wins.
func (s *Session) Close(code, reason string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		close(s.done)
	})
}

// CloseReason is valid once Done is closed.
func (s *Session) CloseReason() (code, reason string) {
	<-s.done
	return s.closeCode, s.closeReason
}

// Drain returns whatever is still queued without blocking.
func (s *Session) Drain() [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-s.out:
			out = append(out, b)
		default:
			return out
		}
	}
}

func (s *Session) QueueLen() int { return len(s.out) }

func (s *Session) Stats() (sent, dropped uint64) { return s.sent.Load(), s.dropped.Load() }
