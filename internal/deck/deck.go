// Package deck derives the working set of card indices for a study session.
// Everything here is pure, in-memory computation; randomness comes in
// through an explicit *rand.Rand so shuffles are reproducible in tests.
package deck

import (
	"math/rand"
	"sort"

	"github.com/samber/lo"

	"hanmadi-backend/internal/models"
)

// Active computes the index set the deck should cover for the given mode:
// every card for ModeAll, or the again-set minus the mastered-set for
// ModeAgain. The result is ascending and duplicate-free.
func Active(mode models.Mode, size int, again, mastered map[int]struct{}) []int {
	if mode == models.ModeAgain {
		indices := lo.Filter(lo.Keys(again), func(idx int, _ int) bool {
			_, done := mastered[idx]
			return !done && idx >= 0 && idx < size
		})
		sort.Ints(indices)
		return indices
	}

	indices := make([]int, size)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// Build turns an active index set into a deck. Without shuffle the ascending
// order of active is preserved; with shuffle a fresh unbiased Fisher-Yates
// permutation is applied. Callers re-roll only on explicit reshuffle or mode
// switch, never per render.
func Build(active []int, shuffle bool, rng *rand.Rand) []int {
	out := make([]int, len(active))
	copy(out, active)

	if shuffle && rng != nil {
		for i := len(out) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// SameMembers reports whether two decks cover the same index set, ignoring
// order. This is the rebuild trigger: a deck is stale when its membership no
// longer matches the active set, not merely when lengths differ.
func SameMembers(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	set := lo.SliceToMap(a, func(idx int) (int, struct{}) {
		return idx, struct{}{}
	})
	return lo.EveryBy(b, func(idx int) bool {
		_, ok := set[idx]
		return ok
	})
}

// PositionOf returns the position of card within d, or -1. Used to keep the
// learner on the same card across rebuilds.
func PositionOf(d []int, card int) int {
	return lo.IndexOf(d, card)
}
