package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionKYCSubmission   AuditAction = "kyc_submission"
	AuditActionKYCReview       AuditAction = "kyc_review"
	AuditActionProfileUpdate   AuditAction = "profile_update"
	AuditActionPasswordChange  AuditAction = "password_change"
	AuditActionAccountDeletion AuditAction = "account_deletion"
	AuditActionPaymentWebhook  AuditAction = "payment_webhook"
	AuditActionSettlement      AuditAction = "settlement_computed"
)

// AuditOutcome records how a policy-gated action ended
type AuditOutcome string

const (
	AuditOutcomeSuccess  AuditOutcome = "success"
	AuditOutcomeFailure  AuditOutcome = "failure"
	AuditOutcomeRejected AuditOutcome = "rejected" // denied by quota or signature check
)

// AuditLog is an immutable audit trail entry. Entries are created exactly
// once per policy-gated action and never mutated or deleted by this service.
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Subject      string          `json:"subject" db:"subject"` // opaque identifier from the auth layer
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // user, invoice, payment, ...
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty" db:"resource_id"`
	Outcome      AuditOutcome    `json:"outcome" db:"outcome"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	IPAddress    string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string          `json:"user_agent,omitempty" db:"user_agent"`
	RequestID    string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(subject string, action AuditAction, resourceType string, outcome AuditOutcome) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Subject:      subject,
		Action:       action,
		ResourceType: resourceType,
		Outcome:      outcome,
		Timestamp:    time.Now(),
	}
}

// WithResource sets the resource ID
func (a *AuditLog) WithResource(resourceID uuid.UUID) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
