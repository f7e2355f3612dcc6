package snitray

import (
	"context"
	"sync"
)

// loopEvent is the internal result type produced by a slab-resident
// goroutine: a pre-decoded Event ready for delivery, or a decode/transport
// error to be logged and swallowed (spec.md §7: bus errors never reach the
// consumer).
type loopEvent struct {
	event *Event
	err   error

	// apply, if set, is invoked by the loop goroutine once this result is
	// taken from the slab, before the event (if any) is delivered. It is
	// how a background computation mutates itemTracker state — adding a
	// newly armed trackedItem, or removing one being finalized — without
	// any goroutine but the loop's own ever touching the tracker's write
	// path.
	apply func()
}

// slabSlot holds one in-flight (or just-resolved) background computation.
type slabSlot struct {
	done  bool
	event loopEvent
}

// futureSlab is the Go-idiomatic rendition of spec.md's FutureSlab arena.
// Where the Rust original occupies a slot with a manually-polled Future and
// frees it the instant a synchronous poll resolves it, this port always
// resolves asynchronously: reserve hands out a stable index immediately,
// spawn launches a goroutine bound to the caller's context that computes a
// loopEvent and reports it back, and take removes the slot once its result
// has been collected. The index returned by reserve never changes for the
// lifetime of the pending computation (spec property P3, slot stability),
// and slots are only ever touched through this type's methods, mirroring
// the single-owner-goroutine discipline documented for pendingPauseStates in
// the teacher this module adapts.
type futureSlab struct {
	mu       sync.Mutex
	occupied map[int]*slabSlot
	free     []int
	next     int
}

func newFutureSlab() *futureSlab {
	return &futureSlab{occupied: make(map[int]*slabSlot)}
}

// reserve allocates a slot and returns its stable index.
func (s *futureSlab) reserve() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx int
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = s.next
		s.next++
	}
	s.occupied[idx] = &slabSlot{}
	return idx
}

// resolve records the result of the computation occupying idx. It is a
// no-op if idx was already taken (can happen only if the caller takes a
// slot concurrently with its own resolution, which this package never
// does).
func (s *futureSlab) resolve(idx int, ev loopEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.occupied[idx]; ok {
		slot.done = true
		slot.event = ev
	}
}

// take removes and returns the result occupying idx, freeing the slot for
// reuse. ok is false if idx is unoccupied or not yet resolved.
func (s *futureSlab) take(idx int) (loopEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.occupied[idx]
	if !ok || !slot.done {
		return loopEvent{}, false
	}
	delete(s.occupied, idx)
	s.free = append(s.free, idx)
	return slot.event, true
}

// len reports the number of in-flight or unclaimed-but-resolved slots; only
// tests read it.
func (s *futureSlab) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.occupied)
}

// spawn reserves a slot, launches work in its own goroutine bound to ctx,
// and wakes rs with a wakeFuture tag once work returns. It returns the
// reserved index so the caller can correlate the eventual wake.
func (s *futureSlab) spawn(ctx context.Context, rs *readySet, work func(context.Context) loopEvent) int {
	idx := s.reserve()
	go func() {
		ev := work(ctx)
		s.resolve(idx, ev)
		rs.wake(wakeSource{kind: wakeFuture, index: idx})
	}()
	return idx
}
