package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/services"
)

// uniqueViolation is the postgres error code for unique constraint violations
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a postgres unique constraint error
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// InvoiceRepository implements the repositories.InvoiceRepository interface
type InvoiceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *DB, logger *zap.Logger) repositories.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new invoice with its line items
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (id, owner_id, client_id, number, status, currency, total, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		invoice.ID,
		invoice.OwnerID,
		invoice.ClientID,
		invoice.Number,
		invoice.Status,
		invoice.Currency,
		invoice.Total,
		invoice.DueDate,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return services.ErrDuplicateInvoiceNumber
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	for i := range invoice.Items {
		item := &invoice.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.InvoiceID = invoice.ID
		if err := r.insertItem(ctx, executor, item); err != nil {
			return err
		}
	}

	r.logger.Debug("invoice created",
		zap.String("id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.Int("items", len(invoice.Items)))
	return nil
}

func (r *InvoiceRepository) insertItem(ctx context.Context, executor Executor, item *models.InvoiceItem) error {
	query := `
		INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := executor.ExecContext(ctx, query,
		item.ID,
		item.InvoiceID,
		item.Description,
		item.Quantity,
		item.UnitPrice,
	)

	if err != nil {
		return fmt.Errorf("failed to create invoice item: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice, including line items, by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	query := `
		SELECT id, owner_id, client_id, number, status, currency, total, due_date, created_at, updated_at
		FROM invoices
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	invoice := &models.Invoice{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&invoice.ID,
		&invoice.OwnerID,
		&invoice.ClientID,
		&invoice.Number,
		&invoice.Status,
		&invoice.Currency,
		&invoice.Total,
		&invoice.DueDate,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, services.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	items, err := r.getItems(ctx, executor, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items

	return invoice, nil
}

// GetByNumber retrieves an invoice by its number within an owner's scope
func (r *InvoiceRepository) GetByNumber(ctx context.Context, ownerID uuid.UUID, number string) (*models.Invoice, error) {
	query := `
		SELECT id
		FROM invoices
		WHERE owner_id = $1 AND number = $2
	`

	executor := GetExecutor(ctx, r.db)
	var id uuid.UUID

	err := executor.QueryRowContext(ctx, query, ownerID, number).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, services.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice by number: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetByOwnerID retrieves invoices owned by a user, optionally filtered by status
func (r *InvoiceRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID, status *models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error) {
	query := `
		SELECT id, owner_id, client_id, number, status, currency, total, due_date, created_at, updated_at
		FROM invoices
		WHERE owner_id = $1
	`
	args := []interface{}{ownerID}

	if status != nil {
		query += ` AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, *status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice := &models.Invoice{}
		if err := rows.Scan(
			&invoice.ID,
			&invoice.OwnerID,
			&invoice.ClientID,
			&invoice.Number,
			&invoice.Status,
			&invoice.Currency,
			&invoice.Total,
			&invoice.DueDate,
			&invoice.CreatedAt,
			&invoice.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}

	return invoices, nil
}

// UpdateStatus transitions an invoice's lifecycle status
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) error {
	query := `
		UPDATE invoices
		SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return services.ErrInvoiceNotFound
	}

	r.logger.Debug("invoice status updated",
		zap.String("id", id.String()),
		zap.String("status", string(status)))
	return nil
}

// Delete deletes an invoice; line items go with it via ON DELETE CASCADE
func (r *InvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM invoices WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return services.ErrInvoiceNotFound
	}

	r.logger.Debug("invoice deleted", zap.String("id", id.String()))
	return nil
}

func (r *InvoiceRepository) getItems(ctx context.Context, executor Executor, invoiceID uuid.UUID) ([]models.InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, description, quantity, unit_price
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id
	`

	rows, err := executor.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice items: %w", err)
	}
	defer rows.Close()

	var items []models.InvoiceItem
	for rows.Next() {
		var item models.InvoiceItem
		if err := rows.Scan(
			&item.ID,
			&item.InvoiceID,
			&item.Description,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice items: %w", err)
	}

	return items, nil
}
