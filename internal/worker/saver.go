// Package worker runs snapshot persistence off the request path. Every
// session mutation enqueues a full snapshot; a small pool of goroutines
// writes them out. Saves for one session may land out of order under load,
// which is safe because each snapshot is self-consistent and the latest
// write wins.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"hanmadi-backend/internal/models"
	"hanmadi-backend/internal/progress"
)

const saveTimeout = 10 * time.Second

type saveJob struct {
	backend progress.Backend
	subject models.Subject
	unit    string
	snap    models.ProgressSnapshot
	done    chan struct{}
}

// Saver is the asynchronous snapshot writer.
type Saver struct {
	jobs        chan saveJob
	workerCount int
	log         *zap.Logger
	stopOnce    sync.Once
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewSaver(workerCount int, log *zap.Logger) *Saver {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Saver{
		jobs:        make(chan saveJob, 256),
		workerCount: workerCount,
		log:         log,
		stopChan:    make(chan struct{}),
	}
}

func (s *Saver) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.log.Info("snapshot saver started", zap.Int("workers", s.workerCount))
}

// Stop drains queued saves and waits for in-flight ones, so a clean
// shutdown does not lose the last snapshot.
func (s *Saver) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.drain()
}

// Enqueue schedules a snapshot write and returns a channel closed once the
// write has been attempted. Callers that want fire-and-forget simply ignore
// the channel.
func (s *Saver) Enqueue(backend progress.Backend, subject models.Subject, unit string, snap models.ProgressSnapshot) <-chan struct{} {
	job := saveJob{backend: backend, subject: subject, unit: unit, snap: snap, done: make(chan struct{})}

	select {
	case <-s.stopChan:
		// Shutting down: write inline so the snapshot is not dropped.
		s.run(job)
		return job.done
	default:
	}

	select {
	case <-s.stopChan:
		s.run(job)
	case s.jobs <- job:
	}
	return job.done
}

func (s *Saver) worker() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobs:
			s.run(job)
		case <-s.stopChan:
			s.drain()
			return
		}
	}
}

func (s *Saver) drain() {
	for {
		select {
		case job := <-s.jobs:
			s.run(job)
		default:
			return
		}
	}
}

func (s *Saver) run(job saveJob) {
	defer close(job.done)

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := job.backend.Save(ctx, job.subject, job.unit, job.snap); err != nil {
		// Persistence failures never surface to the learner; the session
		// keeps its in-memory state and the next save retries the full
		// snapshot anyway.
		s.log.Warn("snapshot save failed",
			zap.String("subject", job.subject.Key()),
			zap.String("unit", job.unit),
			zap.Error(err))
	}
}
