package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/services"
)

// SettlementRepository implements the repositories.SettlementRepository interface
type SettlementRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *DB, logger *zap.Logger) repositories.SettlementRepository {
	return &SettlementRepository{
		db:     db,
		logger: logger,
	}
}

const settlementColumns = `id, invoice_id, transaction_id, gross_amount, commission_rate, platform_commission, gateway_fee, tax_on_fee, net_payable, created_at`

// Create persists a settlement record. The unique constraint on
// transaction_id makes replayed webhooks surface as ErrDuplicateSettlement.
func (r *SettlementRepository) Create(ctx context.Context, record *models.SettlementRecord) error {
	query := `
		INSERT INTO settlements (id, invoice_id, transaction_id, gross_amount, commission_rate, platform_commission, gateway_fee, tax_on_fee, net_payable, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		record.ID,
		record.InvoiceID,
		record.TransactionID,
		record.GrossAmount,
		record.CommissionRate,
		record.PlatformCommission,
		record.GatewayFee,
		record.TaxOnFee,
		record.NetPayable,
		record.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return services.ErrDuplicateSettlement
		}
		return fmt.Errorf("failed to create settlement: %w", err)
	}

	r.logger.Debug("settlement created",
		zap.String("id", record.ID.String()),
		zap.String("transaction_id", record.TransactionID))
	return nil
}

// GetByID retrieves a settlement record by ID
func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SettlementRecord, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByTransactionID retrieves a settlement by gateway reference
func (r *SettlementRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.SettlementRecord, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE transaction_id = $1`
	return r.getOne(ctx, query, transactionID)
}

func (r *SettlementRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.SettlementRecord, error) {
	executor := GetExecutor(ctx, r.db)
	record := &models.SettlementRecord{}

	err := executor.QueryRowContext(ctx, query, arg).Scan(
		&record.ID,
		&record.InvoiceID,
		&record.TransactionID,
		&record.GrossAmount,
		&record.CommissionRate,
		&record.PlatformCommission,
		&record.GatewayFee,
		&record.TaxOnFee,
		&record.NetPayable,
		&record.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, services.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	return record, nil
}

// GetByInvoiceID retrieves settlements for an invoice
func (r *SettlementRepository) GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]*models.SettlementRecord, error) {
	query := `
		SELECT ` + settlementColumns + `
		FROM settlements
		WHERE invoice_id = $1
		ORDER BY created_at DESC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var records []*models.SettlementRecord
	for rows.Next() {
		record := &models.SettlementRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.InvoiceID,
			&record.TransactionID,
			&record.GrossAmount,
			&record.CommissionRate,
			&record.PlatformCommission,
			&record.GatewayFee,
			&record.TaxOnFee,
			&record.NetPayable,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlements: %w", err)
	}

	return records, nil
}
