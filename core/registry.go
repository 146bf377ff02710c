package core

import (
	"context"
	"sync/atomic"
)

// Worker is the handle of one connection goroutine.
type Worker struct {
	id   uint64
	done chan struct{}
}

// ID returns the worker's sequence number.
func (w *Worker) ID() uint64 { return w.id }

// Done is closed when the worker's function returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) finished() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// WorkerRegistry tracks live workers for join-on-shutdown. It is owned by
// the accept loop and is not safe for concurrent use; workers only signal
// completion through their done channel and never touch the registry.
//
// Every handle present was started and not yet joined. Growth multiplies
// capacity by 3/2 and copies every existing handle into the new backing
// array.
type WorkerRegistry struct {
	workers []*Worker
	maxCap  int
	nextID  uint64
	grows   int
	joined  atomic.Uint64
}

// NewWorkerRegistry creates a registry with the given initial capacity.
// maxCap bounds growth; 0 leaves it unbounded.
func NewWorkerRegistry(initialCap, maxCap int) *WorkerRegistry {
	if initialCap <= 0 {
		initialCap = RegistryInitialCap
	}
	if maxCap > 0 && initialCap > maxCap {
		initialCap = maxCap
	}
	return &WorkerRegistry{
		workers: make([]*Worker, 0, initialCap),
		maxCap:  maxCap,
	}
}

// Len returns the number of registered, unjoined workers.
func (r *WorkerRegistry) Len() int { return len(r.workers) }

// Cap returns the registry's current capacity.
func (r *WorkerRegistry) Cap() int { return cap(r.workers) }

// Grows returns how many times the registry has reallocated.
func (r *WorkerRegistry) Grows() int { return r.grows }

// Joined returns the total number of workers joined so far.
func (r *WorkerRegistry) Joined() uint64 { return r.joined.Load() }

// Spawn starts fn on a new goroutine and records its handle. If the
// registry is full and cannot grow, fn is not started and
// ErrRegistryExhausted is returned; existing entries are untouched.
func (r *WorkerRegistry) Spawn(fn func()) (*Worker, error) {
	if err := r.reserve(); err != nil {
		return nil, err
	}

	r.nextID++
	w := &Worker{id: r.nextID, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		fn()
	}()

	r.workers = append(r.workers, w)
	return w, nil
}

func (r *WorkerRegistry) reserve() error {
	if len(r.workers) < cap(r.workers) {
		return nil
	}

	old := cap(r.workers)
	newCap := old * registryGrowthNum / registryGrowthDen
	if newCap <= old {
		newCap = old + 1
	}
	if r.maxCap > 0 && newCap > r.maxCap {
		newCap = r.maxCap
	}
	if newCap <= old {
		return ErrRegistryExhausted
	}

	grown := make([]*Worker, len(r.workers), newCap)
	copy(grown, r.workers)
	r.workers = grown
	r.grows++
	return nil
}

// Reap joins and removes workers that have already finished, keeping the
// order of the rest. It never blocks.
func (r *WorkerRegistry) Reap() int {
	kept := r.workers[:0]
	for _, w := range r.workers {
		if w.finished() {
			r.joined.Add(1)
			continue
		}
		kept = append(kept, w)
	}
	reaped := len(r.workers) - len(kept)
	clear(r.workers[len(kept):])
	r.workers = kept
	return reaped
}

// JoinAll waits for every registered worker exactly once, then clears the
// registry. If ctx ends first, the workers not yet joined stay registered
// and ctx.Err() is returned.
func (r *WorkerRegistry) JoinAll(ctx context.Context) error {
	for i, w := range r.workers {
		select {
		case <-w.done:
			r.joined.Add(1)
			r.workers[i] = nil
		case <-ctx.Done():
			r.workers = append(r.workers[:0], r.workers[i:]...)
			clear(r.workers[len(r.workers):cap(r.workers)])
			return ctx.Err()
		}
	}
	r.workers = r.workers[:0]
	return nil
}
