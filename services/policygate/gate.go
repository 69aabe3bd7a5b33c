// Package policygate wraps sensitive operations with quota admission and
// audit recording so handlers never wire those concerns by hand.
package policygate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/services"
	"github.com/finvera/invoicing-backend/services/audit"
	"github.com/finvera/invoicing-backend/services/quota"
)

// Request identifies one guarded invocation
type Request struct {
	// Subject is the opaque identifier of the caller
	Subject string

	// Action names the guarded operation; it selects the quota rule and
	// labels the audit entry
	Action string

	// ResourceType and ResourceID describe what the action touches
	ResourceType string
	ResourceID   *uuid.UUID

	// Request metadata copied onto the audit entry
	RequestID string
	IPAddress string
	UserAgent string
}

// Operation is the guarded unit of work
type Operation func(ctx context.Context) error

// Gate runs operations behind quota admission and audit recording.
//
// Every invocation produces exactly one audit entry: rejected when quota
// denies admission, failure when the operation errors, success otherwise.
type Gate struct {
	ledger   *quota.Ledger
	recorder *audit.Recorder
	rules    map[string]quota.Rule
	logger   *zap.Logger
	nowFn    func() time.Time
}

// NewGate creates a Gate. Actions missing from rules run without quota
// admission but are still audited.
func NewGate(ledger *quota.Ledger, recorder *audit.Recorder, rules map[string]quota.Rule, logger *zap.Logger) *Gate {
	return &Gate{
		ledger:   ledger,
		recorder: recorder,
		rules:    rules,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Execute runs op behind the gate.
//
// Quota rejection returns a rate limit error carrying the retry-after
// hint; the operation never runs. Operation errors pass through
// unchanged. Audit write problems are logged and never fail the call.
func (g *Gate) Execute(ctx context.Context, req Request, op Operation) error {
	if req.Subject == "" {
		return services.NewDomainError(services.ErrorTypeValidation, "guarded action requires a subject", nil)
	}
	if req.Action == "" {
		return services.NewDomainError(services.ErrorTypeValidation, "guarded action requires an action name", nil)
	}

	if rule, ok := g.rules[req.Action]; ok {
		decision, err := g.ledger.CheckAndRecord(ctx, req.Subject, req.Action, rule, g.nowFn())
		if err != nil {
			g.record(req, models.AuditOutcomeFailure, map[string]interface{}{
				"error": err.Error(),
			})
			return services.WrapInternal("quota admission failed", err)
		}

		if !decision.Allowed {
			retryAfter := int64(decision.RetryAfter / time.Second)
			g.record(req, models.AuditOutcomeRejected, map[string]interface{}{
				"reason":              "quota_exceeded",
				"retry_after_seconds": retryAfter,
			})
			return services.NewQuotaExceededError(req.Action, retryAfter)
		}

		if decision.FailedOpen {
			g.logger.Warn("guarded action admitted without quota check",
				zap.String("subject", req.Subject),
				zap.String("action", req.Action))
		}
	}

	if err := op(ctx); err != nil {
		g.record(req, models.AuditOutcomeFailure, map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	g.record(req, models.AuditOutcomeSuccess, nil)
	return nil
}

// record builds and queues the single audit entry for an invocation
func (g *Gate) record(req Request, outcome models.AuditOutcome, details map[string]interface{}) {
	entry := models.NewAuditLog(req.Subject, models.AuditAction(req.Action), req.ResourceType, outcome)
	if req.ResourceID != nil {
		entry.WithResource(*req.ResourceID)
	}
	if details != nil {
		entry.WithDetails(details)
	}
	entry.WithRequest(req.RequestID, req.IPAddress, req.UserAgent)

	if err := g.recorder.Record(entry); err != nil {
		// Best effort only. The recorder has already logged the drop.
		g.logger.Warn("audit entry not queued",
			zap.String("subject", req.Subject),
			zap.String("action", req.Action),
			zap.Error(err))
	}
}
