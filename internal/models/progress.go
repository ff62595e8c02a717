package models

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotSchemaVersion gates locally stored progress blobs. A blob with a
// different version is treated as "no progress", never as an error.
const SnapshotSchemaVersion = 1

// ProgressSnapshot is a full, self-consistent copy of a unit's session state.
// Every save writes the whole snapshot, so concurrent saves can only race to
// a last-write-wins outcome, never to a torn one.
type ProgressSnapshot struct {
	Mastered  []int     `json:"mastered"`
	Again     []int     `json:"again"`
	Mode      Mode      `json:"mode,omitempty"`
	Shuffle   bool      `json:"shuffle,omitempty"`
	DeckOrder []int     `json:"deck_order,omitempty"`
	Cursor    int       `json:"cursor"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Empty reports whether the snapshot carries no recorded outcomes.
func (s ProgressSnapshot) Empty() bool {
	return len(s.Mastered) == 0 && len(s.Again) == 0
}

// Subject identifies who the progress belongs to: an authenticated user
// (UserID set) or an anonymous learner (GuestID set). During reconciliation
// both are set so the guest's local progress can be pushed to the user's rows.
type Subject struct {
	UserID  uuid.UUID
	GuestID string
}

// Authenticated reports whether the subject is a signed-in user.
func (s Subject) Authenticated() bool {
	return s.UserID != uuid.Nil
}

// Key returns a stable map key for session registries.
func (s Subject) Key() string {
	if s.Authenticated() {
		return "user:" + s.UserID.String()
	}
	return "guest:" + s.GuestID
}

// UnitStats summarizes a learner's standing in one unit.
type UnitStats struct {
	Unit       string  `json:"unit"`
	TotalCards int     `json:"total_cards"`
	Mastered   int     `json:"mastered"`
	Again      int     `json:"again"`
	Remaining  int     `json:"remaining"`
	Mastery    float64 `json:"mastery_rate"`
}
