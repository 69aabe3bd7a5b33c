// Package audit records every policy-gated action for later inspection.
//
// Recording is best-effort and asynchronous: a failure to persist an
// entry is logged for operators but never blocks or fails the action
// being audited.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
)

// Recorder appends audit entries through a buffered channel drained by a
// pool of workers.
type Recorder struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	entryChan   chan *models.AuditLog
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the Recorder
type Config struct {
	BufferSize  int // Size of the entry buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// NewRecorder creates a new Recorder instance
func NewRecorder(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())

	return &Recorder{
		auditRepo:   auditRepo,
		logger:      logger,
		entryChan:   make(chan *models.AuditLog, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("audit recorder already started")
	}
	if r.stopped {
		return fmt.Errorf("audit recorder already stopped")
	}

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	r.logger.Info("started audit recorder",
		zap.Int("worker_count", r.workerCount),
		zap.Int("buffer_size", r.bufferSize))

	return nil
}

// Stop gracefully stops the recorder, draining pending entries until the
// timeout expires.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("audit recorder not started")
	}
	r.logger.Info("stopping audit recorder", zap.Int("pending_entries", len(r.entryChan)))

	// Flip started before closing so a concurrent Record sees the
	// recorder as stopped instead of sending on a closed channel.
	r.started = false
	r.stopped = true
	close(r.entryChan)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("audit recorder stopped gracefully")
		r.cancel()
		return nil
	case <-time.After(timeout):
		r.cancel()
		return fmt.Errorf("audit recorder stop timeout after %v", timeout)
	}
}

// Record queues an entry for persistence. It never blocks: when the
// buffer is full the entry is dropped with a logged warning, keeping the
// audited action available.
func (r *Recorder) Record(entry *models.AuditLog) error {
	// The mutex is held across the send so Stop cannot close the
	// channel between the started check and the enqueue. The send is
	// non-blocking, so the critical section stays short.
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return fmt.Errorf("audit recorder not started")
	}

	select {
	case r.entryChan <- entry:
		return nil
	default:
		r.logger.Warn("audit entry buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("subject", entry.Subject))
		return fmt.Errorf("audit entry buffer full")
	}
}

// worker drains entries from the channel
func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for entry := range r.entryChan {
		if err := r.persist(entry); err != nil {
			// Surfaced to operators only; the audited action has
			// already completed.
			r.logger.Error("audit write failed",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(entry.Action)),
				zap.String("subject", entry.Subject))
		}
	}

	r.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// persist writes a single entry with a bounded timeout
func (r *Recorder) persist(entry *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.auditRepo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the recorder
func (r *Recorder) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		BufferSize:     r.bufferSize,
		PendingEntries: len(r.entryChan),
		WorkerCount:    r.workerCount,
		Started:        r.started,
	}
}

// Stats represents recorder statistics
type Stats struct {
	BufferSize     int
	PendingEntries int
	WorkerCount    int
	Started        bool
}
