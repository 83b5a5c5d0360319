// Package ring moves packet buffers between processing stages.
//
// A Ring is a bounded FIFO. Enqueue never blocks: a full ring reports
// ErrRingFull and the caller keeps ownership of the buffer. Consumers poll
// with Dequeue/DequeueBurst and may park on Ready between polls.
package ring

import (
	"sync"

	"github.com/pkg/errors"

	"l3engine/pkg/mbuf"
)

const DEFAULT_RING_CAPACITY = 512

var (
	ErrRingFull  = errors.New("ring: no space left")
	ErrRingEmpty = errors.New("ring: not enough entries")
)

type Ring struct {
	name string

	mu    sync.Mutex
	slots []*mbuf.Buf
	head  int
	count int

	ready chan struct{}
}

// Create a ring holding at most capacity buffers
func New(name string, capacity int) *Ring {
	if capacity <= 0 {
		capacity = DEFAULT_RING_CAPACITY
	}
	return &Ring{
		name:  name,
		slots: make([]*mbuf.Buf, capacity),
		ready: make(chan struct{}, 1),
	}
}

func (r *Ring) Name() string {
	return r.name
}

// Capacity returns the maximum number of entries
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Count returns the number of queued entries
func (r *Ring) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Ready is signalled after an enqueue. A receive only means the ring was
// non-empty at some point; consumers still have to check what they dequeue.
func (r *Ring) Ready() <-chan struct{} {
	return r.ready
}

// Enqueue a single buffer
func (r *Ring) Enqueue(b *mbuf.Buf) error {
	r.mu.Lock()
	if r.count == len(r.slots) {
		r.mu.Unlock()
		return errors.Wrapf(ErrRingFull, "ring %s", r.name)
	}
	r.push(b)
	r.mu.Unlock()
	r.notify()
	return nil
}

// EnqueueBulk queues all of bufs or none of them.
func (r *Ring) EnqueueBulk(bufs []*mbuf.Buf) error {
	if len(bufs) == 0 {
		return nil
	}
	r.mu.Lock()
	if len(r.slots)-r.count < len(bufs) {
		r.mu.Unlock()
		return errors.Wrapf(ErrRingFull, "ring %s: %d entries requested", r.name, len(bufs))
	}
	for _, b := range bufs {
		r.push(b)
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// Dequeue a single buffer
func (r *Ring) Dequeue() (*mbuf.Buf, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil, errors.Wrapf(ErrRingEmpty, "ring %s", r.name)
	}
	return r.pop(), nil
}

// DequeueBurst fills bufs with up to len(bufs) entries and returns how many
// were written.
func (r *Ring) DequeueBurst(bufs []*mbuf.Buf) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for n < len(bufs) && r.count > 0 {
		bufs[n] = r.pop()
		n++
	}
	return n
}

// Drain frees every queued buffer and returns how many there were.
func (r *Ring) Drain() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for r.count > 0 {
		r.pop().Free()
		n++
	}
	return n
}

func (r *Ring) push(b *mbuf.Buf) {
	r.slots[(r.head+r.count)%len(r.slots)] = b
	r.count++
}

func (r *Ring) pop() *mbuf.Buf {
	b := r.slots[r.head]
	r.slots[r.head] = nil
	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return b
}

func (r *Ring) notify() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}
