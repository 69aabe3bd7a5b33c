package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/models"
)

// memAuditRepo captures inserted logs; optionally fails every insert
type memAuditRepo struct {
	mu        sync.Mutex
	inserted  []*models.AuditLog
	insertErr error
}

func (m *memAuditRepo) Insert(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, log)
	return nil
}

func (m *memAuditRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

func (m *memAuditRepo) GetBySubject(ctx context.Context, subject string, limit, offset int) ([]*models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

func (m *memAuditRepo) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

func (m *memAuditRepo) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

func (m *memAuditRepo) insertedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

func TestRecorder_StartStop(t *testing.T) {
	repo := &memAuditRepo{}
	recorder := NewRecorder(repo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, recorder.Start())

	stats := recorder.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start twice
	assert.Error(t, recorder.Start())

	require.NoError(t, recorder.Stop(time.Second))
}

func TestRecorder_RecordBeforeStart(t *testing.T) {
	recorder := NewRecorder(&memAuditRepo{}, zap.NewNop(), DefaultConfig())

	entry := models.NewAuditLog("u1", models.AuditActionProfileUpdate, "user", models.AuditOutcomeSuccess)
	assert.Error(t, recorder.Record(entry))
}

func TestRecorder_PersistsEntries(t *testing.T) {
	repo := &memAuditRepo{}
	recorder := NewRecorder(repo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 3})
	require.NoError(t, recorder.Start())

	for i := 0; i < 20; i++ {
		entry := models.NewAuditLog("u1", models.AuditActionKYCSubmission, "user", models.AuditOutcomeSuccess)
		require.NoError(t, recorder.Record(entry))
	}

	// Stop drains the buffer
	require.NoError(t, recorder.Stop(2*time.Second))
	assert.Equal(t, 20, repo.insertedCount())
}

func TestRecorder_InsertFailureDoesNotPropagate(t *testing.T) {
	repo := &memAuditRepo{insertErr: errors.New("audit db down")}
	recorder := NewRecorder(repo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, recorder.Start())

	entry := models.NewAuditLog("u1", models.AuditActionPaymentWebhook, "payment", models.AuditOutcomeFailure)

	// Record succeeds: the write failure is handled by the worker and
	// only logged.
	assert.NoError(t, recorder.Record(entry))
	require.NoError(t, recorder.Stop(time.Second))
	assert.Equal(t, 0, repo.insertedCount())
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	repo := &memAuditRepo{}
	// Zero workers: nothing drains the channel
	recorder := NewRecorder(repo, zap.NewNop(), Config{BufferSize: 2, WorkerCount: 0})
	require.NoError(t, recorder.Start())

	entry := models.NewAuditLog("u1", models.AuditActionProfileUpdate, "user", models.AuditOutcomeSuccess)
	assert.NoError(t, recorder.Record(entry))
	assert.NoError(t, recorder.Record(entry))

	// Buffer full: dropped, not blocked
	assert.Error(t, recorder.Record(entry))
}

func TestRecorder_RecordAfterStop(t *testing.T) {
	repo := &memAuditRepo{}
	recorder := NewRecorder(repo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, recorder.Start())
	require.NoError(t, recorder.Stop(time.Second))

	entry := models.NewAuditLog("u1", models.AuditActionProfileUpdate, "user", models.AuditOutcomeSuccess)

	// Returns an error instead of panicking on the closed channel
	assert.NotPanics(t, func() {
		assert.Error(t, recorder.Record(entry))
	})
	assert.False(t, recorder.GetStats().Started)

	// A stopped recorder stays stopped
	assert.Error(t, recorder.Start())
}
