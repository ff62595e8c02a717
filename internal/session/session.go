// Package session implements the per-unit flashcard study session: deck
// order, cursor, reveal flag, and the mastered/again bookkeeping that drives
// deck rebuilds. All operations are total; invalid input is clamped or
// ignored so the interactive loop never sees an error.
package session

import (
	"math/rand"
	"sort"
	"time"

	"github.com/samber/lo"

	"hanmadi-backend/internal/deck"
	"hanmadi-backend/internal/models"
)

// Phase is the session's lifecycle state.
type Phase string

const (
	PhaseEmpty    Phase = "empty"    // unit has zero cards
	PhaseLoading  Phase = "loading"  // progress not yet restored
	PhaseActive   Phase = "active"   // deck non-empty, cursor valid
	PhaseComplete Phase = "complete" // active index set empty for current mode
)

// Outcome is a learner's rating of the current card.
type Outcome string

const (
	OutcomeAgain    Outcome = "again"
	OutcomeMastered Outcome = "mastered"
)

// Session holds the mutable study state for one (subject, unit) pair. It is
// not safe for concurrent use; callers serialize access per session.
type Session struct {
	unit     string
	size     int
	phase    Phase
	mode     models.Mode
	shuffle  bool
	deckIdx  []int
	cursor   int
	revealed bool
	mastered map[int]struct{}
	again    map[int]struct{}
	rng      *rand.Rand
}

// New creates a session for a unit with size cards. The session starts in
// PhaseLoading (or PhaseEmpty for a zero-card unit) until Restore or
// Activate finishes the load step.
func New(unit string, size int, rng *rand.Rand) *Session {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Session{
		unit:     unit,
		size:     size,
		phase:    PhaseLoading,
		mode:     models.ModeAll,
		mastered: make(map[int]struct{}),
		again:    make(map[int]struct{}),
		rng:      rng,
	}
	if size == 0 {
		s.phase = PhaseEmpty
	}
	return s
}

// Activate finishes loading with no stored progress.
func (s *Session) Activate() {
	if s.phase != PhaseLoading {
		return
	}
	s.rebuildFull(false)
}

// Restore applies a stored snapshot and moves the session out of
// PhaseLoading. Out-of-range indices are dropped; an index appearing in both
// sets stays mastered so the disjointness invariant holds from the start.
func (s *Session) Restore(snap models.ProgressSnapshot) {
	if s.phase == PhaseEmpty {
		return
	}

	s.mastered = make(map[int]struct{})
	s.again = make(map[int]struct{})
	for _, idx := range snap.Mastered {
		if idx >= 0 && idx < s.size {
			s.mastered[idx] = struct{}{}
		}
	}
	for _, idx := range snap.Again {
		if idx < 0 || idx >= s.size {
			continue
		}
		if _, done := s.mastered[idx]; !done {
			s.again[idx] = struct{}{}
		}
	}

	if snap.Mode.Valid() {
		s.mode = snap.Mode
	}
	s.shuffle = snap.Shuffle

	active := deck.Active(s.mode, s.size, s.again, s.mastered)
	if len(snap.DeckOrder) > 0 && deck.SameMembers(snap.DeckOrder, active) {
		s.deckIdx = append([]int(nil), snap.DeckOrder...)
	} else {
		s.deckIdx = deck.Build(active, s.shuffle, s.rng)
	}

	s.cursor = clamp(snap.Cursor, 0, len(s.deckIdx)-1)
	s.revealed = false
	s.settlePhase()
}

// Reveal toggles the answer side. Allowed only while active; it has no other
// side effects.
func (s *Session) Reveal() {
	if s.phase != PhaseActive {
		return
	}
	s.revealed = !s.revealed
}

// Rate records the learner's outcome for the card under the cursor, advances
// to the next card with wraparound, and rebuilds the deck if its membership
// no longer matches the active set. Rating an empty deck is a no-op, and a
// mastered card ignores further "again" ratings.
func (s *Session) Rate(outcome Outcome) {
	if s.phase != PhaseActive || len(s.deckIdx) == 0 {
		return
	}

	card := s.deckIdx[s.cursor]
	switch outcome {
	case OutcomeMastered:
		s.mastered[card] = struct{}{}
		delete(s.again, card)
	case OutcomeAgain:
		if _, done := s.mastered[card]; !done {
			s.again[card] = struct{}{}
		}
	default:
		return
	}

	s.cursor = (s.cursor + 1) % len(s.deckIdx)
	s.revealed = false
	s.reconcileDeck()
}

// Next advances the cursor with wraparound.
func (s *Session) Next() {
	s.step(1)
}

// Previous moves the cursor back with wraparound.
func (s *Session) Previous() {
	s.step(-1)
}

func (s *Session) step(delta int) {
	if s.phase != PhaseActive || len(s.deckIdx) == 0 {
		return
	}
	n := len(s.deckIdx)
	s.cursor = ((s.cursor+delta)%n + n) % n
	s.revealed = false
}

// Seek jumps to a deck position, clamped into range.
func (s *Session) Seek(position int) {
	if s.phase != PhaseActive || len(s.deckIdx) == 0 {
		return
	}
	s.cursor = clamp(position, 0, len(s.deckIdx)-1)
	s.revealed = false
}

// SetMode switches between studying all cards and only the flagged ones,
// rebuilding the deck with a fresh order and keeping the learner on the
// current card when it survives the switch.
func (s *Session) SetMode(mode models.Mode) {
	if s.phase == PhaseEmpty || s.phase == PhaseLoading || !mode.Valid() {
		return
	}
	s.mode = mode
	s.rebuildFull(true)
}

// SetShuffle enables or disables shuffling. Toggling rebuilds the deck; use
// Reshuffle for a fresh permutation while shuffle stays on.
func (s *Session) SetShuffle(enabled bool) {
	if s.phase == PhaseEmpty || s.phase == PhaseLoading || s.shuffle == enabled {
		return
	}
	s.shuffle = enabled
	s.rebuildFull(true)
}

// Reshuffle re-rolls the permutation. No-op unless shuffle is on.
func (s *Session) Reshuffle() {
	if s.phase != PhaseActive || !s.shuffle {
		return
	}
	s.rebuildFull(true)
}

// Reset clears all progress for the unit: both sets emptied, mode back to
// all, shuffle off, ordered deck, cursor at the start. Calling it twice
// yields the same state as calling it once.
func (s *Session) Reset() {
	if s.phase == PhaseEmpty {
		return
	}
	s.mastered = make(map[int]struct{})
	s.again = make(map[int]struct{})
	s.mode = models.ModeAll
	s.shuffle = false
	s.rebuildFull(false)
}

// rebuildFull rebuilds the deck from scratch for the current mode, rolling a
// fresh permutation when shuffle is on. With preserve set, the card under
// the cursor keeps its place if it is still in the deck.
func (s *Session) rebuildFull(preserve bool) {
	var current = -1
	if preserve && s.cursor < len(s.deckIdx) {
		current = s.deckIdx[s.cursor]
	}

	active := deck.Active(s.mode, s.size, s.again, s.mastered)
	s.deckIdx = deck.Build(active, s.shuffle, s.rng)

	s.cursor = 0
	if current >= 0 {
		if pos := deck.PositionOf(s.deckIdx, current); pos >= 0 {
			s.cursor = pos
		}
	}
	s.revealed = false
	s.settlePhase()
}

// reconcileDeck applies the membership rebuild rule after a rating: when the
// active set's contents drift from the deck's, drop stale entries in place
// (keeping the current order rather than re-rolling) and append any newly
// active indices in ascending order.
func (s *Session) reconcileDeck() {
	active := deck.Active(s.mode, s.size, s.again, s.mastered)
	if deck.SameMembers(s.deckIdx, active) {
		return
	}

	var current = -1
	if s.cursor < len(s.deckIdx) {
		current = s.deckIdx[s.cursor]
	}

	activeSet := lo.SliceToMap(active, func(idx int) (int, struct{}) {
		return idx, struct{}{}
	})
	kept := lo.Filter(s.deckIdx, func(idx int, _ int) bool {
		_, ok := activeSet[idx]
		return ok
	})
	keptSet := lo.SliceToMap(kept, func(idx int) (int, struct{}) {
		return idx, struct{}{}
	})
	for _, idx := range active {
		if _, ok := keptSet[idx]; !ok {
			kept = append(kept, idx)
		}
	}
	s.deckIdx = kept

	s.cursor = 0
	if current >= 0 {
		if pos := deck.PositionOf(s.deckIdx, current); pos >= 0 {
			s.cursor = pos
		}
	}
	s.settlePhase()
}

func (s *Session) settlePhase() {
	if s.size == 0 {
		s.phase = PhaseEmpty
		return
	}
	if len(s.deckIdx) == 0 {
		s.phase = PhaseComplete
		s.cursor = 0
		s.revealed = false
		return
	}
	s.phase = PhaseActive
}

// Snapshot captures the full session state for persistence.
func (s *Session) Snapshot() models.ProgressSnapshot {
	return models.ProgressSnapshot{
		Mastered:  sortedKeys(s.mastered),
		Again:     sortedKeys(s.again),
		Mode:      s.mode,
		Shuffle:   s.shuffle,
		DeckOrder: append([]int(nil), s.deckIdx...),
		Cursor:    s.cursor,
		UpdatedAt: time.Now().UTC(),
	}
}

// Accessors.

func (s *Session) Unit() string          { return s.unit }
func (s *Session) Size() int             { return s.size }
func (s *Session) Phase() Phase          { return s.phase }
func (s *Session) Mode() models.Mode     { return s.mode }
func (s *Session) ShuffleEnabled() bool  { return s.shuffle }
func (s *Session) Cursor() int           { return s.cursor }
func (s *Session) Revealed() bool        { return s.revealed }
func (s *Session) MasteredIndices() []int { return sortedKeys(s.mastered) }
func (s *Session) AgainIndices() []int    { return sortedKeys(s.again) }

// Deck returns a copy of the current deck order.
func (s *Session) Deck() []int {
	return append([]int(nil), s.deckIdx...)
}

// CurrentCard returns the card index under the cursor, if any.
func (s *Session) CurrentCard() (int, bool) {
	if s.phase != PhaseActive || len(s.deckIdx) == 0 {
		return 0, false
	}
	return s.deckIdx[s.cursor], true
}

func sortedKeys(set map[int]struct{}) []int {
	keys := lo.Keys(set)
	sort.Ints(keys)
	return keys
}

func clamp(v, low, high int) int {
	if high < low {
		return low
	}
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
