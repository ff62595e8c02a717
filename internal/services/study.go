package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"hanmadi-backend/internal/catalog"
	"hanmadi-backend/internal/models"
	"hanmadi-backend/internal/progress"
	"hanmadi-backend/internal/session"
	"hanmadi-backend/internal/worker"
)

// GuestNotice is shown to anonymous learners on every session response.
const GuestNotice = "Progress is only saved on this device. Sign in to keep it."

const sessionIdleTTL = 2 * time.Hour

// OutcomeCounter summarizes stored outcomes without loading full snapshots.
type OutcomeCounter interface {
	CountOutcomes(ctx context.Context, subject models.Subject, unit string) (mastered, again int, err error)
}

// Action is one discrete learner interaction with a study session.
type Action struct {
	Type     string      `json:"type"`
	Outcome  string      `json:"outcome,omitempty"`
	Position int         `json:"position,omitempty"`
	Mode     models.Mode `json:"mode,omitempty"`
	Enabled  bool        `json:"enabled,omitempty"`
}

// SessionView is the engine state returned to the presentation layer.
type SessionView struct {
	Unit      string       `json:"unit"`
	Phase     string       `json:"phase"`
	Mode      models.Mode  `json:"mode"`
	Shuffle   bool         `json:"shuffle"`
	Deck      []int        `json:"deck"`
	Cursor    int          `json:"cursor"`
	Revealed  bool         `json:"revealed"`
	CardIndex *int         `json:"card_index,omitempty"`
	Card      *models.Card `json:"card,omitempty"`
	Mastered  []int        `json:"mastered"`
	Again     []int        `json:"again"`
	Notice    string       `json:"notice,omitempty"`
}

type managedSession struct {
	mu        sync.Mutex
	sess      *session.Session
	touchedAt time.Time
}

// StudyService owns all live study sessions. Each session is keyed by
// (subject, unit) and guarded by its own mutex, so concurrent HTTP requests
// collapse to the strictly ordered, single-writer model the engine assumes.
type StudyService struct {
	catalog    *catalog.Catalog
	local      progress.Backend
	remote     progress.Backend
	reconciler *progress.Reconciler
	counter    OutcomeCounter
	saver      *worker.Saver
	log        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
	pending  map[string]<-chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func NewStudyService(
	cat *catalog.Catalog,
	local, remote progress.Backend,
	reconciler *progress.Reconciler,
	counter OutcomeCounter,
	saver *worker.Saver,
	log *zap.Logger,
) *StudyService {
	s := &StudyService{
		catalog:    cat,
		local:      local,
		remote:     remote,
		reconciler: reconciler,
		counter:    counter,
		saver:      saver,
		log:        log,
		sessions:   make(map[string]*managedSession),
		pending:    make(map[string]<-chan struct{}),
		done:       make(chan struct{}),
	}

	go s.evictLoop()

	return s
}

// Close stops the background eviction loop. Safe to call more than once.
func (s *StudyService) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *StudyService) evictLoop() {
	ticker := time.NewTicker(sessionIdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.done:
			return
		}
	}
}

// evictIdle drops sessions idle past the TTL; their snapshots are already
// persisted after every mutation, so eviction loses nothing.
func (s *StudyService) evictIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ms := range s.sessions {
		if time.Since(ms.touchedAt) > sessionIdleTTL {
			delete(s.sessions, key)
		}
	}
}

// Open loads (or resumes) the session for a unit. priorGuestID carries the
// learner's pre-login guest identity so first authenticated opens can merge
// that local progress; it is empty otherwise.
func (s *StudyService) Open(ctx context.Context, subject models.Subject, unit, priorGuestID string) (*SessionView, error) {
	if !s.catalog.Has(unit) {
		return nil, &NotFoundError{Message: "Unit not found"}
	}

	ms := s.ensure(subject, unit)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s.loadIfNeeded(ctx, ms, subject, unit, priorGuestID)
	return s.view(subject, ms.sess), nil
}

// Act applies one learner action and persists the resulting snapshot
// asynchronously. Unknown action types are ignored, like every other
// invalid input in the engine.
func (s *StudyService) Act(ctx context.Context, subject models.Subject, unit string, action Action) (*SessionView, error) {
	if !s.catalog.Has(unit) {
		return nil, &NotFoundError{Message: "Unit not found"}
	}

	ms := s.ensure(subject, unit)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s.loadIfNeeded(ctx, ms, subject, unit, "")
	s.apply(ms.sess, action)

	done := s.saver.Enqueue(s.backendFor(subject), subject, unit, ms.sess.Snapshot())
	s.trackSave(subject.Key(), unit, done)
	return s.view(subject, ms.sess), nil
}

// Overview reports per-unit standing across the whole catalog.
func (s *StudyService) Overview(ctx context.Context, subject models.Subject) []models.UnitStats {
	units := s.catalog.Units()
	stats := make([]models.UnitStats, 0, len(units))

	for _, unit := range units {
		total := s.catalog.Size(unit)
		mastered, again := s.countOutcomes(ctx, subject, unit)

		entry := models.UnitStats{
			Unit:       unit,
			TotalCards: total,
			Mastered:   mastered,
			Again:      again,
			Remaining:  total - mastered,
		}
		if total > 0 {
			entry.Mastery = float64(mastered) / float64(total) * 100
		}
		stats = append(stats, entry)
	}
	return stats
}

func (s *StudyService) countOutcomes(ctx context.Context, subject models.Subject, unit string) (int, int) {
	if subject.Authenticated() && s.counter != nil {
		mastered, again, err := s.counter.CountOutcomes(ctx, subject, unit)
		if err != nil {
			s.log.Warn("outcome count failed", zap.String("unit", unit), zap.Error(err))
			return 0, 0
		}
		return mastered, again
	}

	snap, err := s.backendFor(subject).Load(ctx, subject, unit)
	if err != nil {
		s.log.Warn("progress load failed for overview", zap.String("unit", unit), zap.Error(err))
		return 0, 0
	}
	return len(snap.Mastered), len(snap.Again)
}

func (s *StudyService) ensure(subject models.Subject, unit string) *managedSession {
	key := subject.Key() + "|" + unit

	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.sessions[key]
	if !ok {
		ms = &managedSession{sess: session.New(unit, s.catalog.Size(unit), nil)}
		s.sessions[key] = ms
	}
	ms.touchedAt = time.Now()
	return ms
}

// loadIfNeeded finishes the Loading phase exactly once per in-memory
// session. Authenticated learners reconcile guest progress first and then
// treat the remote state as authoritative; the session is not usable until
// that final load returns.
func (s *StudyService) loadIfNeeded(ctx context.Context, ms *managedSession, subject models.Subject, unit, priorGuestID string) {
	if ms.sess.Phase() != session.PhaseLoading {
		return
	}

	// Every save enqueued for an identity must land before that identity's
	// progress is read back, or the load observes a stale snapshot.
	s.flushSaves(ctx, subject.Key(), unit)

	if subject.Authenticated() {
		if priorGuestID != "" {
			s.flushSaves(ctx, models.Subject{GuestID: priorGuestID}.Key(), unit)
		}
		snap := s.reconciler.Reconcile(ctx, subject.UserID, priorGuestID, unit)
		ms.sess.Restore(snap)
		return
	}

	snap, err := s.local.Load(ctx, subject, unit)
	if err != nil {
		s.log.Warn("local progress load failed, starting empty",
			zap.String("unit", unit), zap.Error(err))
		snap = models.ProgressSnapshot{}
	}
	ms.sess.Restore(snap)
}

func (s *StudyService) apply(sess *session.Session, action Action) {
	switch action.Type {
	case "reveal":
		sess.Reveal()
	case "rate":
		sess.Rate(session.Outcome(action.Outcome))
	case "next":
		sess.Next()
	case "previous":
		sess.Previous()
	case "seek":
		sess.Seek(action.Position)
	case "set_mode":
		sess.SetMode(action.Mode)
	case "set_shuffle":
		sess.SetShuffle(action.Enabled)
	case "reshuffle":
		sess.Reshuffle()
	case "reset":
		sess.Reset()
	}
}

// trackSave remembers the newest enqueued save per identity and unit so a
// later load can wait for it. The saver closes every done channel even when
// the write fails, so waiters never hang past the save timeout.
func (s *StudyService) trackSave(subjectKey, unit string, done <-chan struct{}) {
	s.mu.Lock()
	s.pending[subjectKey+"|"+unit] = done
	s.mu.Unlock()
}

func (s *StudyService) flushSaves(ctx context.Context, subjectKey, unit string) {
	s.mu.Lock()
	done := s.pending[subjectKey+"|"+unit]
	s.mu.Unlock()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *StudyService) backendFor(subject models.Subject) progress.Backend {
	if subject.Authenticated() {
		return s.remote
	}
	return s.local
}

func (s *StudyService) view(subject models.Subject, sess *session.Session) *SessionView {
	v := &SessionView{
		Unit:     sess.Unit(),
		Phase:    string(sess.Phase()),
		Mode:     sess.Mode(),
		Shuffle:  sess.ShuffleEnabled(),
		Deck:     sess.Deck(),
		Cursor:   sess.Cursor(),
		Revealed: sess.Revealed(),
		Mastered: sess.MasteredIndices(),
		Again:    sess.AgainIndices(),
	}

	if idx, ok := sess.CurrentCard(); ok {
		cards := s.catalog.Cards(sess.Unit())
		if idx < len(cards) {
			v.CardIndex = &idx
			card := cards[idx]
			v.Card = &card
		}
	}

	if !subject.Authenticated() {
		v.Notice = GuestNotice
	}
	return v
}
