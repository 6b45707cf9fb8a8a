// Package queue implements the pooled bounded FIFO shared by the mapping
// and skeleton-detection protocols: a fixed-capacity queue of reusable
// items where every slot is, at any instant, owned by exactly one of the
// free pool, the queue itself, a producer filling it, or a consumer
// reading it. The free list and the queue are slices guarded by one mutex,
// with a sync.Cond broadcast on every change; the pool is generic over the
// item type.
package queue

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/sgolodetz/smg-comms-go/internal/metrics"
)

// OverflowPolicy selects what BeginPush does when the queue is already
// at capacity.
type OverflowPolicy int

const (
	// PolicyBlock makes the producer wait for a consumer to free a slot.
	PolicyBlock OverflowPolicy = iota
	// PolicyDiscardOldest atomically evicts the oldest queued item and
	// recycles it as the producer's write slot.
	PolicyDiscardOldest
	// PolicyReplaceRandom evicts a uniformly-random queued item instead
	// of always the oldest.
	PolicyReplaceRandom
)

// ErrStopped is returned by BeginPush/Peek when the caller's stop channel
// fires before an item becomes available.
var ErrStopped = errors.New("queue: stopped waiting")

// Pool is a fixed-capacity FIFO of *T, backed by capacity pre-allocated
// items. It must be initialised with Initialise before use.
type Pool[T any] struct {
	policy OverflowPolicy

	mu      sync.Mutex
	changed sync.Cond

	free  []*T // free-list; LIFO is fine, order carries no meaning
	queue []*T // FIFO of published items, oldest first
}

// New constructs an uninitialised pool with the given overflow policy.
// Call Initialise before any other method.
func New[T any](policy OverflowPolicy) *Pool[T] {
	p := &Pool[T]{policy: policy}
	p.changed.L = &p.mu
	return p
}

// Initialise allocates capacity items via factory into the free pool.
// Must be called exactly once before first use.
func (p *Pool[T]) Initialise(capacity int, factory func() *T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = make([]*T, 0, capacity)
	p.queue = make([]*T, 0, capacity)
	for i := 0; i < capacity; i++ {
		p.free = append(p.free, factory())
	}
}

// Handle represents a slot checked out by a producer. Get returns the
// item to fill (BeginPush returns no handle at all, only ErrStopped, if the
// caller's stop channel fired). Commit publishes the filled item at the
// queue's tail; Discard returns the slot to the free pool instead. A handle
// on which neither is called keeps its slot checked out.
type Handle[T any] struct {
	pool      *Pool[T]
	item      *T
	committed bool
}

// Get returns the item to populate, or nil if the handle carries no slot.
func (h *Handle[T]) Get() *T { return h.item }

// Commit publishes the held item onto the queue tail. It is a no-op if
// the handle carries no slot.
func (h *Handle[T]) Commit() {
	if h.item == nil || h.committed {
		return
	}
	h.committed = true
	h.pool.mu.Lock()
	h.pool.queue = append(h.pool.queue, h.item)
	h.pool.mu.Unlock()
	h.pool.changed.Broadcast()
}

// Discard returns the held item to the free pool without publishing it.
// It is a no-op if the handle carries no slot or was already committed.
func (h *Handle[T]) Discard() {
	if h.item == nil || h.committed {
		return
	}
	h.committed = true
	h.pool.mu.Lock()
	h.pool.free = append(h.pool.free, h.item)
	h.pool.mu.Unlock()
	h.pool.changed.Broadcast()
}

// BeginPush blocks until a free pool slot is available, or stop fires,
// whichever comes first. Under PolicyDiscardOldest or
// PolicyReplaceRandom, it never blocks once the queue is at capacity: it
// evicts a queued item instead and hands its slot back to the producer.
// The returned handle must eventually have Commit or Discard called on
// it (typically via defer), mirroring the Python context-manager
// push_handler's scope-exit commit.
func (p *Pool[T]) BeginPush(stop <-chan struct{}) (*Handle[T], error) {
	p.mu.Lock()

	stopped := p.watchStop(stop)
	defer stopped.cancel()

	for {
		if len(p.free) > 0 {
			item := p.free[len(p.free)-1]
			p.free = p.free[:len(p.free)-1]
			p.mu.Unlock()
			return &Handle[T]{pool: p, item: item}, nil
		}

		if p.policy != PolicyBlock && len(p.queue) > 0 {
			idx := 0
			if p.policy == PolicyReplaceRandom {
				idx = rand.Intn(len(p.queue))
			}
			item := p.queue[idx]
			p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
			p.mu.Unlock()
			metrics.IncPoolDiscard()
			return &Handle[T]{pool: p, item: item}, nil
		}

		if stopped.fired() {
			p.mu.Unlock()
			return nil, ErrStopped
		}
		p.changed.Wait()
	}
}

// Peek blocks until an item is at the head of the queue, or stop fires.
// The returned item remains valid (and at the head) until Pop is called.
func (p *Pool[T]) Peek(stop <-chan struct{}) (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stopped := p.watchStop(stop)
	defer stopped.cancel()

	for len(p.queue) == 0 {
		if stopped.fired() {
			return nil, ErrStopped
		}
		p.changed.Wait()
	}
	return p.queue[0], nil
}

// Pop removes the head item and returns its slot to the free pool.
func (p *Pool[T]) Pop(stop <-chan struct{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stopped := p.watchStop(stop)
	defer stopped.cancel()

	for len(p.queue) == 0 {
		if stopped.fired() {
			return ErrStopped
		}
		p.changed.Wait()
	}
	item := p.queue[0]
	p.queue = p.queue[1:]
	p.free = append(p.free, item)
	p.changed.Broadcast()
	return nil
}

// Empty reports whether the queue currently holds no published items.
func (p *Pool[T]) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0
}

// Len returns the number of currently published (queued, unpopped) items.
// Used for queue-depth sampling; see mapping.Server's client-tracking path.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// stopWatch bridges a <-chan struct{} stop signal into the Cond-based
// waiters above: a goroutine wakes every blocked waiter once stop fires
// so they can re-check their condition and observe it.
type stopWatch struct {
	cond *sync.Cond
	flag *bool
	done chan struct{}
}

func (p *Pool[T]) watchStop(stop <-chan struct{}) *stopWatch {
	flag := new(bool)
	w := &stopWatch{cond: &p.changed, flag: flag, done: make(chan struct{})}
	if stop == nil {
		close(w.done)
		return w
	}
	go func() {
		select {
		case <-stop:
			p.mu.Lock()
			*flag = true
			p.mu.Unlock()
			p.changed.Broadcast()
		case <-w.done:
		}
	}()
	return w
}

func (w *stopWatch) fired() bool {
	return *w.flag
}

func (w *stopWatch) cancel() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}
