package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"hanmadi-backend/internal/models"
)

type recordingBackend struct {
	mu      sync.Mutex
	saves   map[string]models.ProgressSnapshot
	saveErr error
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{saves: make(map[string]models.ProgressSnapshot)}
}

func (b *recordingBackend) Load(_ context.Context, subject models.Subject, unit string) (models.ProgressSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves[subject.Key()+"|"+unit], nil
}

func (b *recordingBackend) Save(_ context.Context, subject models.Subject, unit string, snap models.ProgressSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saves[subject.Key()+"|"+unit] = snap
	return nil
}

func (b *recordingBackend) RecordCardOutcome(context.Context, models.Subject, string, int, bool, bool) error {
	return nil
}

func (b *recordingBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saves)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for save to complete")
	}
}

func TestSaverWritesSnapshot(t *testing.T) {
	backend := newRecordingBackend()
	saver := NewSaver(2, zap.NewNop())
	saver.Start()
	defer saver.Stop()

	subject := models.Subject{GuestID: "guest-1"}
	snap := models.ProgressSnapshot{Mastered: []int{1}, Cursor: 3}

	waitDone(t, saver.Enqueue(backend, subject, "1과", snap))

	got, _ := backend.Load(context.Background(), subject, "1과")
	if got.Cursor != 3 || len(got.Mastered) != 1 {
		t.Errorf("Expected saved snapshot, got %+v", got)
	}
}

func TestSaverSwallowsBackendErrors(t *testing.T) {
	backend := newRecordingBackend()
	backend.saveErr = errors.New("postgres down")
	saver := NewSaver(1, zap.NewNop())
	saver.Start()
	defer saver.Stop()

	done := saver.Enqueue(backend, models.Subject{GuestID: "guest-1"}, "1과", models.ProgressSnapshot{})

	// The done channel closes even when the write fails.
	waitDone(t, done)
}

func TestSaverStopDrainsQueue(t *testing.T) {
	backend := newRecordingBackend()
	saver := NewSaver(1, zap.NewNop())
	saver.Start()

	var dones []<-chan struct{}
	for i := 0; i < 20; i++ {
		subject := models.Subject{GuestID: "guest-1"}
		dones = append(dones, saver.Enqueue(backend, subject, string(rune('a'+i)), models.ProgressSnapshot{Cursor: i}))
	}

	saver.Stop()

	for _, done := range dones {
		waitDone(t, done)
	}
	if got := backend.saveCount(); got != 20 {
		t.Errorf("Expected 20 saved units, got %d", got)
	}
}

func TestSaverEnqueueAfterStopRunsInline(t *testing.T) {
	backend := newRecordingBackend()
	saver := NewSaver(1, zap.NewNop())
	saver.Start()
	saver.Stop()

	done := saver.Enqueue(backend, models.Subject{GuestID: "guest-1"}, "1과", models.ProgressSnapshot{Cursor: 5})

	select {
	case <-done:
	default:
		t.Fatal("Expected inline save to complete before Enqueue returned")
	}
	if backend.saveCount() != 1 {
		t.Error("Expected the snapshot to be written despite shutdown")
	}
}
