package session

import (
	"math/rand"
	"reflect"
	"testing"

	"hanmadi-backend/internal/models"
)

func newActive(t *testing.T, size int) *Session {
	t.Helper()
	s := New("1과", size, rand.New(rand.NewSource(1)))
	s.Activate()
	if size > 0 && s.Phase() != PhaseActive {
		t.Fatalf("Expected active phase after Activate, got %s", s.Phase())
	}
	return s
}

func TestNewPhases(t *testing.T) {
	if got := New("1과", 0, nil).Phase(); got != PhaseEmpty {
		t.Errorf("Expected empty phase for zero-card unit, got %s", got)
	}
	if got := New("1과", 3, nil).Phase(); got != PhaseLoading {
		t.Errorf("Expected loading phase, got %s", got)
	}
}

func TestRateAgainKeepsDeck(t *testing.T) {
	s := newActive(t, 5)

	s.Rate(OutcomeAgain)

	if got := s.AgainIndices(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("Expected again set [0], got %v", got)
	}
	if s.Cursor() != 1 {
		t.Errorf("Expected cursor 1, got %d", s.Cursor())
	}
	if got := s.Deck(); !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("Expected deck unchanged in all mode, got %v", got)
	}
}

func TestAgainModeCompletes(t *testing.T) {
	s := newActive(t, 5)
	s.Rate(OutcomeAgain)

	s.SetMode(models.ModeAgain)
	if got := s.Deck(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("Expected again-mode deck [0], got %v", got)
	}
	if s.Cursor() != 0 {
		t.Fatalf("Expected cursor 0 after mode switch, got %d", s.Cursor())
	}

	s.Rate(OutcomeMastered)

	if s.Phase() != PhaseComplete {
		t.Errorf("Expected complete phase, got %s", s.Phase())
	}
	if got := s.MasteredIndices(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("Expected mastered set [0], got %v", got)
	}
	if len(s.AgainIndices()) != 0 {
		t.Errorf("Expected empty again set, got %v", s.AgainIndices())
	}
}

func TestCompleteRecoversOnModeSwitch(t *testing.T) {
	s := newActive(t, 2)
	s.SetMode(models.ModeAgain)
	if s.Phase() != PhaseComplete {
		t.Fatalf("Expected complete phase with empty again set, got %s", s.Phase())
	}

	s.SetMode(models.ModeAll)

	if s.Phase() != PhaseActive {
		t.Errorf("Expected active phase after switching back, got %s", s.Phase())
	}
	if got := s.Deck(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("Expected full deck, got %v", got)
	}
}

func TestMasteredIsSticky(t *testing.T) {
	s := newActive(t, 3)

	s.Rate(OutcomeMastered)
	s.Seek(0)
	s.Rate(OutcomeAgain)

	if got := s.MasteredIndices(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("Expected card 0 to stay mastered, got %v", got)
	}
	if len(s.AgainIndices()) != 0 {
		t.Errorf("Expected again rating on mastered card to be ignored, got %v", s.AgainIndices())
	}
	if s.Cursor() != 1 {
		t.Errorf("Expected cursor to advance regardless, got %d", s.Cursor())
	}
}

func TestSetsStayDisjoint(t *testing.T) {
	s := newActive(t, 6)
	rng := rand.New(rand.NewSource(99))

	for i := 0; i < 200 && s.Phase() == PhaseActive; i++ {
		if rng.Intn(2) == 0 {
			s.Rate(OutcomeMastered)
		} else {
			s.Rate(OutcomeAgain)
		}

		seen := make(map[int]bool)
		for _, idx := range s.MasteredIndices() {
			seen[idx] = true
		}
		for _, idx := range s.AgainIndices() {
			if seen[idx] {
				t.Fatalf("Index %d in both mastered and again after %d ratings", idx, i+1)
			}
		}
	}
}

func TestNextWrapsAround(t *testing.T) {
	s := newActive(t, 4)

	for i := 0; i < 4; i++ {
		s.Next()
	}
	if s.Cursor() != 0 {
		t.Errorf("Expected cursor back at 0 after full loop, got %d", s.Cursor())
	}

	s.Previous()
	if s.Cursor() != 3 {
		t.Errorf("Expected cursor 3 after Previous from 0, got %d", s.Cursor())
	}
}

func TestSeekClamps(t *testing.T) {
	s := newActive(t, 4)

	s.Seek(99)
	if s.Cursor() != 3 {
		t.Errorf("Expected cursor clamped to 3, got %d", s.Cursor())
	}

	s.Seek(-5)
	if s.Cursor() != 0 {
		t.Errorf("Expected cursor clamped to 0, got %d", s.Cursor())
	}
}

func TestRevealResetsOnCardChange(t *testing.T) {
	s := newActive(t, 3)

	s.Reveal()
	if !s.Revealed() {
		t.Fatal("Expected revealed after Reveal")
	}

	s.Next()
	if s.Revealed() {
		t.Error("Expected reveal cleared after Next")
	}

	s.Reveal()
	s.Rate(OutcomeAgain)
	if s.Revealed() {
		t.Error("Expected reveal cleared after Rate")
	}
}

func TestResetIsIdempotent(t *testing.T) {
	s := newActive(t, 5)
	s.Rate(OutcomeMastered)
	s.Rate(OutcomeAgain)
	s.SetShuffle(true)
	s.SetMode(models.ModeAgain)

	s.Reset()
	first := s.Snapshot()

	s.Reset()
	second := s.Snapshot()

	first.UpdatedAt = second.UpdatedAt
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical state after repeated Reset:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if s.Mode() != models.ModeAll || s.ShuffleEnabled() {
		t.Errorf("Expected all mode with shuffle off, got mode=%s shuffle=%v", s.Mode(), s.ShuffleEnabled())
	}
	if len(s.MasteredIndices()) != 0 || len(s.AgainIndices()) != 0 {
		t.Error("Expected both sets cleared by Reset")
	}
}

func TestRestoreRebuildsAndClamps(t *testing.T) {
	tests := []struct {
		name         string
		snap         models.ProgressSnapshot
		wantMastered []int
		wantAgain    []int
		wantDeck     []int
		wantCursor   int
	}{
		{
			name: "stored order reused when membership matches",
			snap: models.ProgressSnapshot{
				Mode:      models.ModeAll,
				DeckOrder: []int{2, 0, 1},
				Cursor:    1,
			},
			wantMastered: []int{},
			wantAgain:    []int{},
			wantDeck:     []int{2, 0, 1},
			wantCursor:   1,
		},
		{
			name: "overlap resolves to mastered",
			snap: models.ProgressSnapshot{
				Mastered: []int{1},
				Again:    []int{1, 2},
				Mode:     models.ModeAll,
			},
			wantMastered: []int{1},
			wantAgain:    []int{2},
			wantDeck:     []int{0, 1, 2},
			wantCursor:   0,
		},
		{
			name: "out of range indices dropped and cursor clamped",
			snap: models.ProgressSnapshot{
				Mastered:  []int{7, -1},
				Again:     []int{9},
				Mode:      models.ModeAll,
				DeckOrder: []int{0, 1, 2, 9},
				Cursor:    42,
			},
			wantMastered: []int{},
			wantAgain:    []int{},
			wantDeck:     []int{0, 1, 2},
			wantCursor:   2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New("1과", 3, rand.New(rand.NewSource(1)))
			s.Restore(tc.snap)

			if s.Phase() != PhaseActive {
				t.Fatalf("Expected active phase after Restore, got %s", s.Phase())
			}
			if got := s.MasteredIndices(); !reflect.DeepEqual(got, tc.wantMastered) {
				t.Errorf("Mastered: expected %v, got %v", tc.wantMastered, got)
			}
			if got := s.AgainIndices(); !reflect.DeepEqual(got, tc.wantAgain) {
				t.Errorf("Again: expected %v, got %v", tc.wantAgain, got)
			}
			if got := s.Deck(); !reflect.DeepEqual(got, tc.wantDeck) {
				t.Errorf("Deck: expected %v, got %v", tc.wantDeck, got)
			}
			if s.Cursor() != tc.wantCursor {
				t.Errorf("Cursor: expected %d, got %d", tc.wantCursor, s.Cursor())
			}
		})
	}
}

func TestShuffleTogglePreservesCurrentCard(t *testing.T) {
	s := newActive(t, 8)
	s.Seek(3)
	card, ok := s.CurrentCard()
	if !ok {
		t.Fatal("Expected a current card")
	}

	s.SetShuffle(true)

	got, ok := s.CurrentCard()
	if !ok || got != card {
		t.Errorf("Expected to stay on card %d after shuffle toggle, got %d", card, got)
	}
}

func TestEmptyUnitIgnoresOperations(t *testing.T) {
	s := New("빈 단원", 0, nil)

	s.Activate()
	s.Reveal()
	s.Rate(OutcomeMastered)
	s.Next()
	s.SetMode(models.ModeAgain)
	s.SetShuffle(true)
	s.Reset()

	if s.Phase() != PhaseEmpty {
		t.Errorf("Expected phase to stay empty, got %s", s.Phase())
	}
	if len(s.Deck()) != 0 || s.Cursor() != 0 {
		t.Errorf("Expected no deck state, got deck=%v cursor=%d", s.Deck(), s.Cursor())
	}
}

func TestMasteringAllCardsCompletesAgainMode(t *testing.T) {
	s := newActive(t, 3)
	s.Rate(OutcomeAgain)
	s.Rate(OutcomeAgain)
	s.SetMode(models.ModeAgain)

	if got := s.Deck(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("Expected deck [0 1], got %v", got)
	}

	s.Rate(OutcomeMastered)
	if s.Phase() != PhaseActive {
		t.Fatalf("Expected still active with one card left, got %s", s.Phase())
	}
	if got := s.Deck(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("Expected stale entry dropped in place, got %v", got)
	}

	s.Rate(OutcomeMastered)
	if s.Phase() != PhaseComplete {
		t.Errorf("Expected complete after mastering the last card, got %s", s.Phase())
	}
}
