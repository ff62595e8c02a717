package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hanmadi-backend/internal/models"
)

const localKeyPrefix = "progress:guest:"

// localBlob is the single versioned document kept per guest install: one
// record per visited unit under one fixed key.
type localBlob struct {
	Version int                                `json:"version"`
	Units   map[string]models.ProgressSnapshot `json:"units"`
}

// LocalStore keeps guest progress in Redis. Entries expire after ttl so
// abandoned anonymous installs clean themselves up.
type LocalStore struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewLocalStore(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *LocalStore {
	return &LocalStore{rdb: rdb, ttl: ttl, log: log}
}

func (s *LocalStore) Load(ctx context.Context, subject models.Subject, unit string) (models.ProgressSnapshot, error) {
	if subject.GuestID == "" {
		return models.ProgressSnapshot{}, nil
	}

	raw, err := s.rdb.Get(ctx, localKeyPrefix+subject.GuestID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ProgressSnapshot{}, nil
		}
		return models.ProgressSnapshot{}, err
	}

	blob, ok := decodeLocalBlob(raw)
	if !ok {
		// Mismatched schema version or unreadable payload counts as no
		// progress, never as corruption worth surfacing.
		s.log.Warn("discarding unreadable guest progress blob",
			zap.String("guest_id", subject.GuestID))
		return models.ProgressSnapshot{}, nil
	}

	return blob.Units[unit], nil
}

func (s *LocalStore) Save(ctx context.Context, subject models.Subject, unit string, snap models.ProgressSnapshot) error {
	if subject.GuestID == "" {
		return nil
	}
	return s.update(ctx, subject.GuestID, func(blob *localBlob) {
		blob.Units[unit] = snap
	})
}

func (s *LocalStore) RecordCardOutcome(ctx context.Context, subject models.Subject, unit string, cardIndex int, mastered, again bool) error {
	if subject.GuestID == "" {
		return nil
	}
	return s.update(ctx, subject.GuestID, func(blob *localBlob) {
		record := blob.Units[unit]
		// Same merge rule as the durable rows: mastered is sticky, and a
		// card is never flagged both ways.
		nowMastered := mastered || hasFlag(record.Mastered, cardIndex)
		record.Mastered = setFlag(record.Mastered, cardIndex, nowMastered)
		record.Again = setFlag(record.Again, cardIndex, (again || hasFlag(record.Again, cardIndex)) && !nowMastered)
		record.UpdatedAt = time.Now().UTC()
		blob.Units[unit] = record
	})
}

// update performs a read-modify-write of the guest's blob. Sessions are
// strictly ordered per subject, so there is no concurrent writer to race.
func (s *LocalStore) update(ctx context.Context, guestID string, mutate func(*localBlob)) error {
	key := localKeyPrefix + guestID

	blob := localBlob{Version: models.SnapshotSchemaVersion, Units: map[string]models.ProgressSnapshot{}}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if err == nil {
		if decoded, ok := decodeLocalBlob(raw); ok {
			blob = decoded
		}
	}

	mutate(&blob)

	encoded, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, encoded, s.ttl).Err()
}

func decodeLocalBlob(raw []byte) (localBlob, bool) {
	var blob localBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return localBlob{}, false
	}
	if blob.Version != models.SnapshotSchemaVersion {
		return localBlob{}, false
	}
	if blob.Units == nil {
		blob.Units = map[string]models.ProgressSnapshot{}
	}
	return blob, true
}

func hasFlag(indices []int, idx int) bool {
	for _, v := range indices {
		if v == idx {
			return true
		}
	}
	return false
}

func setFlag(indices []int, idx int, on bool) []int {
	pos := -1
	for i, v := range indices {
		if v == idx {
			pos = i
			break
		}
	}
	switch {
	case on && pos < 0:
		return append(indices, idx)
	case !on && pos >= 0:
		return append(indices[:pos], indices[pos+1:]...)
	default:
		return indices
	}
}
