// ABOUTME: Tests for the per-key FIFO mailbox data structure.
// ABOUTME: Covers ordering, empty sentinel, reset idempotence, capacity policies, and concurrent dequeues.

package mailbox

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFOOrder(t *testing.T) {
	box := New()

	box.Enqueue("u1", "A")
	box.Enqueue("u1", "B")
	box.Enqueue("u1", "C")

	for _, want := range []string{"A", "B", "C"} {
		got, ok := box.Dequeue("u1")
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	// Drained key behaves like an unknown key
	_, ok := box.Dequeue("u1")
	assert.False(t, ok)
}

func TestMailbox_UnknownKeyIsEmpty(t *testing.T) {
	box := New()

	assert.True(t, box.IsEmpty("never-seen"))
	assert.Equal(t, 0, box.Len("never-seen"))
	assert.Empty(t, box.Inspect("never-seen"))

	_, ok := box.Dequeue("never-seen")
	assert.False(t, ok)
}

func TestMailbox_ResetIdempotent(t *testing.T) {
	box := New()

	box.Enqueue("u1", "A")
	box.Enqueue("u1", "B")

	box.Reset("u1")
	assert.True(t, box.IsEmpty("u1"))

	_, ok := box.Dequeue("u1")
	assert.False(t, ok)

	// Reset twice is the same as once, and resetting an unknown key works
	box.Reset("u1")
	box.Reset("u2")
	assert.True(t, box.IsEmpty("u1"))
	assert.True(t, box.IsEmpty("u2"))
}

func TestMailbox_KeysAreIndependent(t *testing.T) {
	box := New()

	box.Enqueue("u1", "for-u1")
	box.Enqueue("u2", "for-u2")

	got, ok := box.Dequeue("u2")
	require.True(t, ok)
	assert.Equal(t, "for-u2", got)

	assert.False(t, box.IsEmpty("u1"))
	assert.True(t, box.IsEmpty("u2"))
}

func TestMailbox_InspectIsSnapshot(t *testing.T) {
	box := New()

	box.Enqueue("u1", "A")
	box.Enqueue("u1", "B")

	snap := box.Inspect("u1")
	assert.Equal(t, []string{"A", "B"}, snap)

	snap[0] = "mutated"
	assert.Equal(t, []string{"A", "B"}, box.Inspect("u1"))

	// Inspect does not consume
	assert.Equal(t, 2, box.Len("u1"))
}

func TestMailbox_Keys(t *testing.T) {
	box := New()

	box.Enqueue("b", "x")
	box.Enqueue("a", "y")
	box.Reset("c") // empty but known

	assert.Equal(t, []string{"a", "b", "c"}, box.Keys())
}

func TestMailbox_CapacityReject(t *testing.T) {
	box := NewBounded(2, PolicyReject)

	assert.True(t, box.Enqueue("u1", "A"))
	assert.True(t, box.Enqueue("u1", "B"))
	assert.False(t, box.Enqueue("u1", "C"))

	assert.Equal(t, []string{"A", "B"}, box.Inspect("u1"))

	// Draining frees room again
	box.Dequeue("u1")
	assert.True(t, box.Enqueue("u1", "C"))
	assert.Equal(t, []string{"B", "C"}, box.Inspect("u1"))
}

func TestMailbox_CapacityDropOldest(t *testing.T) {
	box := NewBounded(2, PolicyDropOldest)

	assert.True(t, box.Enqueue("u1", "A"))
	assert.True(t, box.Enqueue("u1", "B"))
	assert.True(t, box.Enqueue("u1", "C"))

	assert.Equal(t, []string{"B", "C"}, box.Inspect("u1"))
}

func TestMailbox_NoDoubleDelivery(t *testing.T) {
	box := New()

	const n = 500
	for i := 0; i < n; i++ {
		box.Enqueue("u1", fmt.Sprintf("msg-%d", i))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)

	// Hammer the same key from many goroutines; every message must be
	// delivered exactly once and nothing may be invented.
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, ok := box.Dequeue("u1")
				if !ok {
					return
				}
				mu.Lock()
				seen[msg]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for msg, count := range seen {
		assert.Equal(t, 1, count, "message %q delivered %d times", msg, count)
	}
	assert.True(t, box.IsEmpty("u1"))
}
