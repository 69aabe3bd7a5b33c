package policygate

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
	"github.com/finvera/invoicing-backend/services"
	"github.com/finvera/invoicing-backend/services/audit"
	"github.com/finvera/invoicing-backend/services/quota"
)

// captureAuditRepo records inserted audit entries in memory
type captureAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (c *captureAuditRepo) Insert(ctx context.Context, log *models.AuditLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, log)
	return nil
}

func (c *captureAuditRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

func (c *captureAuditRepo) GetBySubject(ctx context.Context, subject string, limit, offset int) ([]*models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

func (c *captureAuditRepo) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

func (c *captureAuditRepo) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

func (c *captureAuditRepo) all() []*models.AuditLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.AuditLog, len(c.entries))
	copy(out, c.entries)
	return out
}

// brokenStore fails every call, standing in for an unavailable backend
type brokenStore struct{}

func (brokenStore) CountSince(ctx context.Context, key string, cutoff time.Time) (int, error) {
	return 0, errors.New("store down")
}

func (brokenStore) Append(ctx context.Context, key string, ts time.Time) error {
	return errors.New("store down")
}

func (brokenStore) Expire(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("store down")
}

type gateFixture struct {
	gate     *Gate
	repo     *captureAuditRepo
	recorder *audit.Recorder
}

func newGateFixture(t *testing.T, store quota.Store, rules map[string]quota.Rule) *gateFixture {
	t.Helper()

	repo := &captureAuditRepo{}
	recorder := audit.NewRecorder(repo, zap.NewNop(), audit.Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, recorder.Start())
	t.Cleanup(func() { _ = recorder.Stop(2 * time.Second) })

	ledger := quota.NewLedger(store, time.Second, zap.NewNop())
	gate := NewGate(ledger, recorder, rules, zap.NewNop())

	return &gateFixture{gate: gate, repo: repo, recorder: recorder}
}

// drain flushes the recorder so queued entries are visible to assertions
func (f *gateFixture) drain(t *testing.T) []*models.AuditLog {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.recorder.GetStats().PendingEntries == 0 {
			// Entries may still be mid-persist; give the worker a beat
			time.Sleep(20 * time.Millisecond)
			return f.repo.all()
		}
		time.Sleep(5 * time.Millisecond)
	}
	return f.repo.all()
}

func TestGate_SuccessAuditsOnce(t *testing.T) {
	rules := map[string]quota.Rule{
		"profile_update": {MaxAttempts: 10, Window: time.Hour},
	}
	f := newGateFixture(t, quota.NewMemoryStore(), rules)

	ran := false
	err := f.gate.Execute(context.Background(), Request{
		Subject:      "user-1",
		Action:       "profile_update",
		ResourceType: "user",
	}, func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)

	entries := f.drain(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditOutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, models.AuditActionProfileUpdate, entries[0].Action)
	assert.Equal(t, "user-1", entries[0].Subject)
}

func TestGate_QuotaRejectionSkipsOperation(t *testing.T) {
	rules := map[string]quota.Rule{
		"password_change": {MaxAttempts: 2, Window: time.Hour},
	}
	f := newGateFixture(t, quota.NewMemoryStore(), rules)

	req := Request{Subject: "user-1", Action: "password_change", ResourceType: "user"}
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, f.gate.Execute(context.Background(), req, noop))
	require.NoError(t, f.gate.Execute(context.Background(), req, noop))

	ran := false
	err := f.gate.Execute(context.Background(), req, func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, services.IsRateLimitError(err))
	assert.False(t, ran, "rejected operation must not run")

	var domainErr *services.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, int64(3600), domainErr.Details["retry_after_seconds"])

	entries := f.drain(t)
	require.Len(t, entries, 3)
	assert.Equal(t, models.AuditOutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, models.AuditOutcomeSuccess, entries[1].Outcome)
	assert.Equal(t, models.AuditOutcomeRejected, entries[2].Outcome)
}

func TestGate_OperationFailureAuditedAndReturned(t *testing.T) {
	rules := map[string]quota.Rule{
		"kyc_submission": {MaxAttempts: 5, Window: 24 * time.Hour},
	}
	f := newGateFixture(t, quota.NewMemoryStore(), rules)

	opErr := errors.New("document storage unavailable")
	err := f.gate.Execute(context.Background(), Request{
		Subject:      "user-1",
		Action:       "kyc_submission",
		ResourceType: "user",
	}, func(ctx context.Context) error {
		return opErr
	})

	require.Error(t, err)
	assert.Equal(t, opErr, err)

	entries := f.drain(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditOutcomeFailure, entries[0].Outcome)
}

func TestGate_KYCSubmissionWindow(t *testing.T) {
	rules := map[string]quota.Rule{
		"kyc_submission": {MaxAttempts: 5, Window: 24 * time.Hour},
	}
	f := newGateFixture(t, quota.NewMemoryStore(), rules)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := base
	f.gate.nowFn = func() time.Time { return now }

	req := Request{Subject: "user-9", Action: "kyc_submission", ResourceType: "user"}
	noop := func(ctx context.Context) error { return nil }

	// Five submissions inside the day are admitted
	for i := 0; i < 5; i++ {
		now = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, f.gate.Execute(context.Background(), req, noop))
	}

	// The sixth is rejected with a full-window retry hint
	now = base.Add(5 * time.Hour)
	err := f.gate.Execute(context.Background(), req, noop)
	require.Error(t, err)
	assert.True(t, services.IsRateLimitError(err))

	var domainErr *services.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, int64(86400), domainErr.Details["retry_after_seconds"])

	// Once the earliest attempt ages out the subject is admitted again
	now = base.Add(24*time.Hour + time.Minute)
	require.NoError(t, f.gate.Execute(context.Background(), req, noop))

	// Other subjects were never affected
	other := Request{Subject: "user-10", Action: "kyc_submission", ResourceType: "user"}
	require.NoError(t, f.gate.Execute(context.Background(), other, noop))
}

func TestGate_FailOpenRunsOperation(t *testing.T) {
	rules := map[string]quota.Rule{
		"profile_update": {MaxAttempts: 10, Window: time.Hour},
	}
	f := newGateFixture(t, brokenStore{}, rules)

	ran := false
	err := f.gate.Execute(context.Background(), Request{
		Subject:      "user-1",
		Action:       "profile_update",
		ResourceType: "user",
	}, func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran, "fail-open admits the operation")

	entries := f.drain(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditOutcomeSuccess, entries[0].Outcome)
}

func TestGate_FailClosedRejects(t *testing.T) {
	rules := map[string]quota.Rule{
		"account_deletion": {MaxAttempts: 3, Window: 24 * time.Hour, FailClosed: true},
	}
	f := newGateFixture(t, brokenStore{}, rules)

	ran := false
	err := f.gate.Execute(context.Background(), Request{
		Subject:      "user-1",
		Action:       "account_deletion",
		ResourceType: "user",
	}, func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, services.IsRateLimitError(err))
	assert.False(t, ran)

	entries := f.drain(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditOutcomeRejected, entries[0].Outcome)
}

func TestGate_UnknownActionStillAudited(t *testing.T) {
	f := newGateFixture(t, quota.NewMemoryStore(), map[string]quota.Rule{})

	err := f.gate.Execute(context.Background(), Request{
		Subject:      "admin-1",
		Action:       "kyc_review",
		ResourceType: "user",
	}, func(ctx context.Context) error { return nil })

	require.NoError(t, err)

	entries := f.drain(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionKYCReview, entries[0].Action)
}

func TestGate_RejectsMissingSubject(t *testing.T) {
	f := newGateFixture(t, quota.NewMemoryStore(), map[string]quota.Rule{})

	err := f.gate.Execute(context.Background(), Request{
		Action:       "profile_update",
		ResourceType: "user",
	}, func(ctx context.Context) error { return nil })

	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}
