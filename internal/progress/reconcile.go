package progress

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hanmadi-backend/internal/models"
)

// Reconciler performs the one-time local-to-remote merge when an anonymous
// learner signs in: every outcome recorded under the guest identity is
// pushed into the user's durable rows, after which a fresh remote load is
// authoritative for the session. The push is at-least-once over idempotent
// upserts, so re-running it is safe; it never deletes remote rows.
type Reconciler struct {
	local  Backend
	remote Backend
	log    *zap.Logger
}

func NewReconciler(local, remote Backend, log *zap.Logger) *Reconciler {
	return &Reconciler{local: local, remote: remote, log: log}
}

// Reconcile merges guest progress for one unit into the user's remote rows
// and returns the remote state that results. Any failure degrades to empty
// progress rather than blocking the session.
func (r *Reconciler) Reconcile(ctx context.Context, userID uuid.UUID, guestID, unit string) models.ProgressSnapshot {
	user := models.Subject{UserID: userID}

	if guestID != "" {
		guest := models.Subject{GuestID: guestID}
		local, err := r.local.Load(ctx, guest, unit)
		if err != nil {
			r.log.Warn("skipping local progress during reconciliation",
				zap.String("unit", unit), zap.Error(err))
		} else {
			r.push(ctx, user, unit, local)
		}
	}

	snap, err := r.remote.Load(ctx, user, unit)
	if err != nil {
		r.log.Warn("remote load failed after reconciliation, starting empty",
			zap.String("unit", unit), zap.Error(err))
		return models.ProgressSnapshot{}
	}
	return snap
}

func (r *Reconciler) push(ctx context.Context, user models.Subject, unit string, local models.ProgressSnapshot) {
	for _, idx := range local.Mastered {
		if err := r.remote.RecordCardOutcome(ctx, user, unit, idx, true, false); err != nil {
			r.log.Warn("failed to push mastered card outcome",
				zap.String("unit", unit), zap.Int("card_index", idx), zap.Error(err))
		}
	}
	for _, idx := range local.Again {
		if err := r.remote.RecordCardOutcome(ctx, user, unit, idx, false, true); err != nil {
			r.log.Warn("failed to push again card outcome",
				zap.String("unit", unit), zap.Int("card_index", idx), zap.Error(err))
		}
	}
}
