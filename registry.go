package coro

import (
	"sync"
	"weak"
)

// registryEntry pairs a weak reference to a task's Frame with the closure
// that can settle its promise if the task is abandoned before it ever
// starts. reject is nil for frames constructed outside NewTask (e.g. the
// trivial frames Executor.Post wraps plain callbacks in), which aren't
// tracked at all.
type registryEntry struct {
	frame  weak.Pointer[Frame]
	name   string
	reject func(err error)
}

// registry tracks live, not-yet-final task frames using weak pointers, so
// a periodic scavenge can detect ones that were garbage collected (or
// settled) without ever being awaited, without itself keeping them alive.
//
// Same map-plus-ring-buffer shape as a classic weak-reference leak tracker:
// batched Scavenge avoiding a full-table walk on every tick, and a
// compact-on-low-load-factor policy. Tracks *Frame rather than a concrete
// promise type, since Frame carries no type parameter; one registry is
// shared across every task[T] instantiation rather than one per T.
type registry struct {
	data       map[uint64]registryEntry
	ring       []uint64
	head       int
	nextID     uint64
	tombstones int // ring slots zeroed since the last compactAndRenew
	mu         sync.RWMutex
	scavengeMu sync.Mutex
}

func newRegistry() *registry {
	return &registry{
		data:   make(map[uint64]registryEntry),
		ring:   make([]uint64, 0, 1024),
		nextID: 1,
	}
}

// taskRegistry is the process-wide registry every NewTask registers into.
var taskRegistry = newRegistry()

func (r *registry) track(f *Frame, name string, reject func(err error)) uint64 {
	wp := weak.Make(f)
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.data[id] = registryEntry{frame: wp, name: name, reject: reject}
	r.ring = append(r.ring, id)
	return id
}

func (r *registry) untrack(id uint64) {
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
}

func frameIsDone(f *Frame) bool {
	switch f.state.Load() {
	case frameFinal, frameDestroyed:
		return true
	default:
		return false
	}
}

// Scavenge walks up to batchSize ring slots starting at the cursor,
// wrapping modulo the ring length, and clears any whose frame has been
// garbage collected or has already reached its final state. Intended to be
// called periodically (e.g. from a maintenance goroutine) rather than on
// every task completion, so a single pass only ever costs O(batchSize).
func (r *registry) Scavenge(batchSize int) {
	if batchSize <= 0 {
		return
	}
	r.scavengeMu.Lock()
	defer r.scavengeMu.Unlock()

	r.mu.RLock()
	total := len(r.ring)
	if total == 0 {
		r.mu.RUnlock()
		return
	}
	if batchSize > total {
		batchSize = total
	}

	// stale collects ring indices whose frame is gone or finished; the
	// liveness check happens under RLock since weak.Pointer.Value doesn't
	// touch registry state and holding RLock a little longer here avoids
	// a second pass over the batch.
	stale := make([]int, 0, batchSize)
	for n := 0; n < batchSize; n++ {
		idx := (r.head + n) % total
		id := r.ring[idx]
		if id == 0 {
			continue
		}
		e, ok := r.data[id]
		if !ok {
			continue
		}
		if f := e.frame.Value(); f == nil || frameIsDone(f) {
			stale = append(stale, idx)
		}
	}
	wrapped := r.head+batchSize >= total
	r.mu.RUnlock()

	r.mu.Lock()
	for _, idx := range stale {
		if id := r.ring[idx]; id != 0 {
			delete(r.data, id)
			r.ring[idx] = 0
		}
	}
	r.head = (r.head + batchSize) % total
	r.tombstones += len(stale)
	// Compact once more than a quarter of the ring is tombstones, checked only at the
	// point a batch crosses the end of the ring rather than on every call.
	if wrapped && len(r.ring) > 256 && r.tombstones*4 > len(r.ring) {
		r.compactAndRenew()
		r.tombstones = 0
	}
	r.mu.Unlock()
}

// compactAndRenew drops null markers from the ring and rebuilds the map, so
// a long-lived process doesn't retain an ever-growing ring of tombstones.
// Must be called with mu held. Filters r.ring in place (the write cursor
// never outruns the read cursor) instead of building a second slice.
func (r *registry) compactAndRenew() {
	live := make(map[uint64]registryEntry, len(r.data))
	kept := r.ring[:0]
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if e, ok := r.data[id]; ok {
			live[id] = e
			kept = append(kept, id)
		}
	}
	r.ring, r.data, r.head = kept, live, 0
}

// RejectAll settles every tracked task that never started with err, so a
// process shutdown doesn't leave never-awaited tasks silently unreachable.
// Tasks that have already begun running are left alone: their body is a
// live goroutine this registry cannot safely force to a conclusion, only
// a framePreInitial frame can be settled without racing one.
func (r *registry) RejectAll(err error) {
	r.mu.Lock()
	entries := make([]registryEntry, 0, len(r.data))
	for _, e := range r.data {
		entries = append(entries, e)
	}
	r.data = make(map[uint64]registryEntry)
	r.ring = r.ring[:0]
	r.head = 0
	r.mu.Unlock()

	for _, e := range entries {
		if e.reject == nil {
			continue
		}
		f := e.frame.Value()
		if f == nil || f.state.Load() == framePreInitial {
			logLeakedTask(e.name, err)
			e.reject(err)
		}
	}
}

// ScavengeTasks runs a bounded leak-scavenging pass over every task[T] ever
// constructed via NewTask or Go, regardless of its type parameter. Call it
// periodically (e.g. from a ticker) in long-running processes that create
// many tasks; it is not required for correctness.
func ScavengeTasks(batchSize int) { taskRegistry.Scavenge(batchSize) }

// RejectLeakedTasks settles, with err, every registered task that was
// constructed but never started. Intended for use during process shutdown
// alongside Executor.Close.
func RejectLeakedTasks(err error) { taskRegistry.RejectAll(err) }
