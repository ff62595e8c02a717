package progress

import (
	"reflect"
	"sort"
	"testing"

	"hanmadi-backend/internal/models"
)

func TestApplyOutcomeRow(t *testing.T) {
	tests := []struct {
		name            string
		mastered, again bool
		wantMastered    []int
		wantAgain       []int
	}{
		{"mastered row", true, false, []int{4}, nil},
		{"again row", false, true, nil, []int{4}},
		{"both flags resolve to mastered", true, true, []int{4}, nil},
		{"unflagged row contributes nothing", false, false, nil, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var snap models.ProgressSnapshot
			applyOutcomeRow(&snap, 4, tc.mastered, tc.again)

			if !reflect.DeepEqual(snap.Mastered, tc.wantMastered) {
				t.Errorf("Mastered: expected %v, got %v", tc.wantMastered, snap.Mastered)
			}
			if !reflect.DeepEqual(snap.Again, tc.wantAgain) {
				t.Errorf("Again: expected %v, got %v", tc.wantAgain, snap.Again)
			}
		})
	}
}

func TestApplyOutcomeRowAggregation(t *testing.T) {
	rows := []struct {
		idx             int
		mastered, again bool
	}{
		{3, true, false},
		{0, false, true},
		{1, true, true},
		{2, false, false},
	}

	var snap models.ProgressSnapshot
	for _, row := range rows {
		applyOutcomeRow(&snap, row.idx, row.mastered, row.again)
	}
	sort.Ints(snap.Mastered)
	sort.Ints(snap.Again)

	if !reflect.DeepEqual(snap.Mastered, []int{1, 3}) {
		t.Errorf("Expected mastered [1 3], got %v", snap.Mastered)
	}
	if !reflect.DeepEqual(snap.Again, []int{0}) {
		t.Errorf("Expected again [0], got %v", snap.Again)
	}
}
