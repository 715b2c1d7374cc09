// Package queue implements the ordered LogItem list, marker normalization,
// and the now-playing/meter projection that sits behind it.
package queue

import (
	"fmt"

	"github.com/studiocommand/engine/internal/apierr"
	"github.com/studiocommand/engine/internal/model"

	"sync"
)

// State is PlayoutState: the queue, the now-playing projection, and the
// latest meter snapshot, all guarded by a single many-readers/one-writer
// lock. It keeps no track-start timestamp; position comes only from
// SetPosition.
type State struct {
	mu sync.RWMutex

	items []*model.LogItem
	now   model.NowPlaying
	vu    model.VuLevels
}

// New returns an empty state.
func New() *State {
	return &State{}
}

// clone deep-copies items for safe use outside the lock (persistence
// snapshots, JSON responses).
func clone(items []*model.LogItem) []*model.LogItem {
	out := make([]*model.LogItem, len(items))
	for i, it := range items {
		cp := *it
		out[i] = &cp
	}
	return out
}

// Snapshot returns a deep copy of the current queue, safe to use after the
// lock has been released (e.g. to persist).
func (s *State) Snapshot() []*model.LogItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

// NowPlaying returns the current now-playing projection.
func (s *State) NowPlaying() model.NowPlaying {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Vu returns the current meter snapshot.
func (s *State) Vu() model.VuLevels {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vu
}

// HeadID returns the id of the first queue item, or "" if the queue is
// empty. The playout writer polls this every tick to detect operator
// interruption (skip/dump) without a dedicated cancellation signal.
func (s *State) HeadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return ""
	}
	return s.items[0].ID
}

// Head returns a copy of the first queue item, or nil.
func (s *State) Head() *model.LogItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return nil
	}
	cp := *s.items[0]
	return &cp
}

// normalize is the sole source of truth for markers: first item playing,
// second (if any) next, all others queued except locked items, which are
// preserved. Must be called with the write lock held.
func (s *State) normalize() {
	for i, it := range s.items {
		switch {
		case i == 0:
			it.State = model.MarkerPlaying
		case i == 1:
			it.State = model.MarkerNext
		case it.State == model.MarkerLocked:
			// preserved
		default:
			it.State = model.MarkerQueued
		}
	}
	s.reseedNowPlaying()
}

// reseedNowPlaying rebuilds the now-playing projection from index 0. Must
// be called with the write lock held.
func (s *State) reseedNowPlaying() {
	if len(s.items) == 0 {
		s.now = model.NowPlaying{}
		s.vu = model.VuLevels{}
		return
	}
	head := s.items[0]
	dur := head.DurationSeconds()
	pos := s.now.Pos
	posFrac := s.now.PosFrac
	// Position is clamped to duration only when duration is known;
	// otherwise preserved to avoid UI jitter. A freshly adopted head
	// with a different title always resets position.
	if s.now.Title != head.Title || s.now.Artist != head.Artist {
		pos = 0
		posFrac = 0
	} else if dur > 0 && pos > dur {
		pos = dur
		posFrac = float64(dur)
	}
	s.now = model.NowPlaying{
		Title:   head.Title,
		Artist:  head.Artist,
		Dur:     dur,
		Pos:     pos,
		PosFrac: posFrac,
	}
}

// Remove removes the item at index. index == 0 or out of bounds is a
// client error; the caller should use AdvanceIfHead for the head.
func (s *State) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index == 0 || index < 0 || index >= len(s.items) {
		return apierr.Client("index %d out of range", index)
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
	s.normalize()
	return nil
}

// Move moves the item at from to position to. Both must be > 0 and in
// bounds; from == to is a no-op success.
func (s *State) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	if from <= 0 || to <= 0 || from >= n || to >= n {
		return apierr.Client("move indices out of range")
	}
	if from == to {
		return nil
	}
	it := s.items[from]
	s.items = append(s.items[:from], s.items[from+1:]...)
	insertAt := to
	if insertAt > len(s.items) {
		insertAt = len(s.items)
	}
	s.items = append(s.items[:insertAt], append([]*model.LogItem{it}, s.items[insertAt:]...)...)
	s.normalize()
	return nil
}

// Reorder pins index 0 and rebuilds items[1:] to match order, a list of
// ids. Fails without mutation on length mismatch, duplicates, or unknown
// ids.
func (s *State) Reorder(order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		if len(order) != 0 {
			return apierr.Client("reorder length mismatch")
		}
		return nil
	}

	tail := s.items[1:]
	if len(order) != len(tail) {
		return apierr.Client("reorder length mismatch: want %d got %d", len(tail), len(order))
	}

	byID := make(map[string]*model.LogItem, len(tail))
	for _, it := range tail {
		byID[it.ID] = it
	}

	seen := make(map[string]bool, len(order))
	rebuilt := make([]*model.LogItem, 0, len(order))
	for _, id := range order {
		if seen[id] {
			return apierr.Client("duplicate id %q in reorder", id)
		}
		seen[id] = true
		it, ok := byID[id]
		if !ok {
			return apierr.Client("unknown id %q in reorder", id)
		}
		rebuilt = append(rebuilt, it)
	}

	s.items = append(s.items[:1], rebuilt...)
	s.normalize()
	return nil
}

// Insert inserts item after position `after`. On an empty queue the item
// becomes playing at index 0 regardless of after; otherwise after is
// clamped to len-1 and the item lands at after+1, marked queued.
func (s *State) Insert(after int, item *model.LogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		return apierr.Client("item id is required")
	}
	for _, it := range s.items {
		if it.ID == item.ID {
			return apierr.Client("duplicate id %q", item.ID)
		}
	}

	if len(s.items) == 0 {
		item.State = model.MarkerPlaying
		s.items = []*model.LogItem{item}
		s.normalize()
		return nil
	}

	if after < 0 {
		after = 0
	}
	if after > len(s.items)-1 {
		after = len(s.items) - 1
	}
	item.State = model.MarkerQueued
	idx := after + 1
	s.items = append(s.items[:idx], append([]*model.LogItem{item}, s.items[idx:]...)...)
	s.normalize()
	return nil
}

// AdvanceIfHead advances only if the current head id still matches
// expectedID. Returns ok=false if the head has already moved on (e.g.
// an operator skip raced the writer).
func (s *State) AdvanceIfHead(expectedID string, reason model.Marker) (removed *model.LogItem, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 || s.items[0].ID != expectedID {
		return nil, false
	}
	removedItem := s.items[0]
	removedCopy := *removedItem
	removedCopy.State = reason
	s.items = s.items[1:]
	s.now = model.NowPlaying{}
	s.vu = model.VuLevels{}
	s.normalize()
	return &removedCopy, true
}

// Append adds items to the tail, all marked queued, then renormalizes.
// Used by the top-up controller.
func (s *State) Append(items ...*model.LogItem) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	s.normalize()
}

// Replace swaps the whole queue (used by Reload/demo and by persistence
// load) and renormalizes.
func (s *State) Replace(items []*model.LogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.now = model.NowPlaying{}
	s.vu = model.VuLevels{}
	s.normalize()
}

// Len returns the current queue length.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetPosition updates the now-playing position, clamping to duration only
// when duration is known. Called from the playout writer at ~30 Hz under
// the write lock.
func (s *State) SetPosition(posFrac float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now.Dur > 0 && posFrac > float64(s.now.Dur) {
		posFrac = float64(s.now.Dur)
	}
	s.now.PosFrac = posFrac
	s.now.Pos = int(posFrac)
}

// UpdateVu applies one-pole-smoothed meter values, already computed by
// the caller (internal/meter).
func (s *State) UpdateVu(vu model.VuLevels) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vu = vu
}

// String implements fmt.Stringer for debug logging.
func (s *State) String() string {
	return fmt.Sprintf("queue(len=%d)", s.Len())
}
