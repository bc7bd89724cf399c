// ABOUTME: Per-key FIFO text buffer shared by the bridge and the polling consumer.
// ABOUTME: All mutation goes through Enqueue/Dequeue/Reset under a single mutex.

package mailbox

import (
	"sort"
	"sync"
)

// Policy selects what Enqueue does when a bounded buffer is full.
type Policy string

// Capacity policies for bounded mailboxes.
const (
	// PolicyReject refuses the new message.
	PolicyReject Policy = "reject"

	// PolicyDropOldest evicts the head to make room for the new message.
	PolicyDropOldest Policy = "drop-oldest"
)

// Mailbox is an ordered, per-key FIFO text buffer. The zero value is not
// usable; construct with New or NewBounded. A Mailbox is safe for
// concurrent use.
type Mailbox struct {
	mu       sync.Mutex
	buffers  map[string][]string
	capacity int // 0 = unbounded
	policy   Policy
}

// New creates an unbounded mailbox.
func New() *Mailbox {
	return &Mailbox{
		buffers: make(map[string][]string),
	}
}

// NewBounded creates a mailbox whose per-key buffers hold at most capacity
// messages, applying the given policy when full. A capacity of zero means
// unbounded and the policy is ignored.
func NewBounded(capacity int, policy Policy) *Mailbox {
	return &Mailbox{
		buffers:  make(map[string][]string),
		capacity: capacity,
		policy:   policy,
	}
}

// IsEmpty reports whether the key holds no messages. An unknown key is
// empty.
func (m *Mailbox) IsEmpty(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers[key]) == 0
}

// Reset replaces the key's buffer with an empty one, creating the key if
// absent. Idempotent.
func (m *Mailbox) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffers[key] = nil
}

// Enqueue appends message to the tail of the key's buffer, creating the
// key if absent. Returns false only when a bounded mailbox with the reject
// policy is full; an unbounded mailbox always accepts.
func (m *Mailbox) Enqueue(key, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.buffers[key]
	if m.capacity > 0 && len(buf) >= m.capacity {
		switch m.policy {
		case PolicyDropOldest:
			buf = buf[1:]
		default:
			return false
		}
	}

	m.buffers[key] = append(buf, message)
	return true
}

// Dequeue removes and returns the oldest message for the key. The second
// return value is false when the key is empty or unknown; that is the
// "no message" sentinel, not an error.
func (m *Mailbox) Dequeue(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.buffers[key]
	if len(buf) == 0 {
		return "", false
	}

	head := buf[0]
	m.buffers[key] = buf[1:]
	return head, true
}

// Len returns the number of messages queued under the key.
func (m *Mailbox) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers[key])
}

// Inspect returns a snapshot of the key's buffer in FIFO order. The
// returned slice is a copy; mutating it does not affect the mailbox.
func (m *Mailbox) Inspect(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.buffers[key]
	snapshot := make([]string, len(buf))
	copy(snapshot, buf)
	return snapshot
}

// Keys returns the known keys in sorted order, including keys whose
// buffers are currently empty.
func (m *Mailbox) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.buffers))
	for k := range m.buffers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
