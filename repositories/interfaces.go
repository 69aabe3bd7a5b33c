package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/finvera/invoicing-backend/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Automatically commits if the function succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// ClientRepository handles client data operations
type ClientRepository interface {
	// Create creates a new client
	Create(ctx context.Context, client *models.Client) error

	// GetByID retrieves a client by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Client, error)

	// GetByOwnerID retrieves all clients owned by a user with pagination
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Client, error)

	// Update updates a client
	Update(ctx context.Context, client *models.Client) error

	// Delete deletes a client
	Delete(ctx context.Context, id uuid.UUID) error
}

// InvoiceRepository handles invoice data operations
type InvoiceRepository interface {
	// Create creates a new invoice with its line items
	Create(ctx context.Context, invoice *models.Invoice) error

	// GetByID retrieves an invoice, including line items, by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)

	// GetByNumber retrieves an invoice by its number
	GetByNumber(ctx context.Context, ownerID uuid.UUID, number string) (*models.Invoice, error)

	// GetByOwnerID retrieves invoices owned by a user, optionally
	// filtered by status, with pagination
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID, status *models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error)

	// UpdateStatus transitions an invoice's lifecycle status
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) error

	// Delete deletes an invoice and its line items
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetBySubject retrieves a user by the auth layer's opaque identifier
	GetBySubject(ctx context.Context, subject string) (*models.User, error)

	// Update updates a user's profile fields
	Update(ctx context.Context, user *models.User) error

	// UpdateKYC sets a user's KYC status and document reference
	UpdateKYC(ctx context.Context, id uuid.UUID, status models.KYCStatus, documentRef *string) error

	// Delete deletes a user
	Delete(ctx context.Context, id uuid.UUID) error
}

// SettlementRepository handles settlement record persistence
type SettlementRepository interface {
	// Create persists a settlement record
	Create(ctx context.Context, record *models.SettlementRecord) error

	// GetByID retrieves a settlement record by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.SettlementRecord, error)

	// GetByTransactionID retrieves a settlement by gateway reference
	GetByTransactionID(ctx context.Context, transactionID string) (*models.SettlementRecord, error)

	// GetByInvoiceID retrieves settlements for an invoice
	GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]*models.SettlementRecord, error)
}

// AuditRepository handles audit log data operations. Entries are
// append-only: there is no update or delete.
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// GetBySubject retrieves audit logs for a subject with pagination
	GetBySubject(ctx context.Context, subject string, limit, offset int) ([]*models.AuditLog, error)

	// GetByAction retrieves audit logs by action type with pagination
	GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)

	// GetByDateRange retrieves audit logs within a date range
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Clients     ClientRepository
	Invoices    InvoiceRepository
	Users       UserRepository
	Settlements SettlementRepository
	AuditLogs   AuditRepository
}
