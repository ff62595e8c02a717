// Package progress persists flashcard session snapshots. Two backends share
// one contract: a Redis-held blob per guest install (ephemeral) and Postgres
// rows per (user, unit, card) for signed-in learners (durable). Backend
// errors are reported to callers, who degrade to empty progress; nothing
// here ever blocks the study loop.
package progress

import (
	"context"

	"hanmadi-backend/internal/models"
)

// Backend is the persistence contract the session engine depends on.
type Backend interface {
	// Load returns the stored snapshot for a subject's unit. Absent
	// progress is a zero snapshot with a nil error, not a failure.
	Load(ctx context.Context, subject models.Subject, unit string) (models.ProgressSnapshot, error)

	// Save writes a full snapshot. Saves are fire-and-forget from the
	// session's perspective; each one is self-consistent so concurrent
	// writes can only race to a last-write-wins outcome.
	Save(ctx context.Context, subject models.Subject, unit string, snap models.ProgressSnapshot) error

	// RecordCardOutcome upserts a single card's flags, keyed by
	// (subject, unit, cardIndex). Idempotent; re-pushing is safe.
	RecordCardOutcome(ctx context.Context, subject models.Subject, unit string, cardIndex int, mastered, again bool) error
}
