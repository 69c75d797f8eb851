package serialport

import "sync"

// DefaultMailboxLimit bounds the bytes held between two ticks
const DefaultMailboxLimit = 1 << 20

// Mailbox is the single-slot hand-off between the listener goroutine and
// the tick loop. Put appends to the slot; Take swaps it out whole.
type Mailbox struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	dropped uint64
}

// NewMailbox creates a mailbox holding at most limit bytes
func NewMailbox(limit int) *Mailbox {
	if limit <= 0 {
		limit = DefaultMailboxLimit
	}
	return &Mailbox{limit: limit}
}

// Put appends p. When the slot would exceed its limit the oldest bytes are
// discarded.
func (m *Mailbox) Put(p []byte) {
	if len(p) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf = append(m.buf, p...)
	if over := len(m.buf) - m.limit; over > 0 {
		m.buf = append(m.buf[:0:0], m.buf[over:]...)
		m.dropped += uint64(over)
	}
}

// Take returns everything delivered since the previous Take, or nil
func (m *Mailbox) Take() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.buf
	m.buf = nil
	return out
}

// Dropped returns the number of bytes discarded by the limit
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
