package progress

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"hanmadi-backend/internal/models"
)

// RemoteStore persists progress for authenticated learners: one
// flashcard_progress row per (user, unit, card index), plus one
// flashcard_sessions row per (user, unit) carrying the deck order, cursor,
// mode and shuffle flag of the last saved session.
type RemoteStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewRemoteStore(pool *pgxpool.Pool, log *zap.Logger) *RemoteStore {
	return &RemoteStore{pool: pool, log: log}
}

func (s *RemoteStore) Load(ctx context.Context, subject models.Subject, unit string) (models.ProgressSnapshot, error) {
	if !subject.Authenticated() {
		return models.ProgressSnapshot{}, nil
	}

	snap := models.ProgressSnapshot{}

	rows, err := s.pool.Query(ctx, `
		SELECT card_index, mastered, again
		FROM flashcard_progress
		WHERE user_id = $1 AND unit = $2
	`, subject.UserID, unit)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var mastered, again bool
		if err := rows.Scan(&idx, &mastered, &again); err != nil {
			return models.ProgressSnapshot{}, err
		}
		applyOutcomeRow(&snap, idx, mastered, again)
	}
	if err := rows.Err(); err != nil {
		return models.ProgressSnapshot{}, err
	}
	sort.Ints(snap.Mastered)
	sort.Ints(snap.Again)

	var deckOrder json.RawMessage
	err = s.pool.QueryRow(ctx, `
		SELECT mode, shuffle, deck_order, cursor, updated_at
		FROM flashcard_sessions
		WHERE user_id = $1 AND unit = $2
	`, subject.UserID, unit).Scan(&snap.Mode, &snap.Shuffle, &deckOrder, &snap.Cursor, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return snap, nil
		}
		return models.ProgressSnapshot{}, err
	}
	if len(deckOrder) > 0 {
		if err := json.Unmarshal(deckOrder, &snap.DeckOrder); err != nil {
			snap.DeckOrder = nil
		}
	}

	return snap, nil
}

func (s *RemoteStore) Save(ctx context.Context, subject models.Subject, unit string, snap models.ProgressSnapshot) error {
	if !subject.Authenticated() {
		return nil
	}

	deckOrder, err := json.Marshal(snap.DeckOrder)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO flashcard_sessions (user_id, unit, mode, shuffle, deck_order, cursor, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id, unit)
		DO UPDATE SET mode = EXCLUDED.mode, shuffle = EXCLUDED.shuffle,
			deck_order = EXCLUDED.deck_order, cursor = EXCLUDED.cursor, updated_at = NOW()
	`, subject.UserID, unit, string(snap.Mode), snap.Shuffle, deckOrder, snap.Cursor)
	if err != nil {
		return err
	}

	flagged := make([]int32, 0, len(snap.Mastered)+len(snap.Again))
	for _, idx := range snap.Mastered {
		flagged = append(flagged, int32(idx))
		if err := s.upsertCard(ctx, subject, unit, idx, true, false); err != nil {
			return err
		}
	}
	for _, idx := range snap.Again {
		flagged = append(flagged, int32(idx))
		if err := s.upsertCard(ctx, subject, unit, idx, false, true); err != nil {
			return err
		}
	}

	// The snapshot is the whole truth for this unit: cards it no longer
	// flags (an explicit reset) are unflagged, not deleted.
	_, err = s.pool.Exec(ctx, `
		UPDATE flashcard_progress
		SET mastered = FALSE, again = FALSE
		WHERE user_id = $1 AND unit = $2 AND NOT (card_index = ANY($3))
	`, subject.UserID, unit, flagged)
	return err
}

func (s *RemoteStore) RecordCardOutcome(ctx context.Context, subject models.Subject, unit string, cardIndex int, mastered, again bool) error {
	if !subject.Authenticated() {
		return nil
	}
	// Merge instead of overwrite: reconciliation pushes are at-least-once
	// and must never downgrade a card the remote already knows is mastered.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO flashcard_progress (user_id, unit, card_index, mastered, again, last_reviewed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, unit, card_index)
		DO UPDATE SET
			mastered = flashcard_progress.mastered OR EXCLUDED.mastered,
			again = (flashcard_progress.again OR EXCLUDED.again)
				AND NOT (flashcard_progress.mastered OR EXCLUDED.mastered),
			last_reviewed_at = NOW()
	`, subject.UserID, unit, cardIndex, mastered, again && !mastered)
	return err
}

// applyOutcomeRow folds one stored row into the snapshot's sets. A row
// flagged both ways counts as mastered; an unflagged row contributes to
// neither set.
func applyOutcomeRow(snap *models.ProgressSnapshot, cardIndex int, mastered, again bool) {
	switch {
	case mastered:
		snap.Mastered = append(snap.Mastered, cardIndex)
	case again:
		snap.Again = append(snap.Again, cardIndex)
	}
}

func (s *RemoteStore) upsertCard(ctx context.Context, subject models.Subject, unit string, cardIndex int, mastered, again bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO flashcard_progress (user_id, unit, card_index, mastered, again, last_reviewed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, unit, card_index)
		DO UPDATE SET mastered = EXCLUDED.mastered, again = EXCLUDED.again, last_reviewed_at = NOW()
	`, subject.UserID, unit, cardIndex, mastered, again)
	return err
}

// CountOutcomes reports how many cards of a unit the user has mastered or
// flagged for review.
func (s *RemoteStore) CountOutcomes(ctx context.Context, subject models.Subject, unit string) (mastered, again int, err error) {
	if !subject.Authenticated() {
		return 0, 0, nil
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE mastered),
		       COUNT(*) FILTER (WHERE again AND NOT mastered)
		FROM flashcard_progress
		WHERE user_id = $1 AND unit = $2
	`, subject.UserID, unit).Scan(&mastered, &again)
	return mastered, again, err
}
