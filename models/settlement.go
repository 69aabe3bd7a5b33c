package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementBreakdown is the computed split of a gross payment.
// It is a value object: immutable once produced, deterministic for
// identical inputs, and persisted alongside the source transaction.
type SettlementBreakdown struct {
	GrossAmount        decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	CommissionRate     decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	PlatformCommission decimal.Decimal `json:"platform_commission" db:"platform_commission"`
	GatewayFee         decimal.Decimal `json:"gateway_fee" db:"gateway_fee"`
	TaxOnFee           decimal.Decimal `json:"tax_on_fee" db:"tax_on_fee"`
	NetPayable         decimal.Decimal `json:"net_payable" db:"net_payable"`
}

// SettlementRecord ties a breakdown to the transaction it settled
type SettlementRecord struct {
	ID            uuid.UUID `json:"id" db:"id"`
	InvoiceID     uuid.UUID `json:"invoice_id" db:"invoice_id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"` // gateway reference
	SettlementBreakdown
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the SettlementRecord model
func (SettlementRecord) TableName() string {
	return "settlements"
}

// NewSettlementRecord creates a settlement record for a confirmed payment
func NewSettlementRecord(invoiceID uuid.UUID, transactionID string, breakdown SettlementBreakdown) *SettlementRecord {
	return &SettlementRecord{
		ID:                  uuid.New(),
		InvoiceID:           invoiceID,
		TransactionID:       transactionID,
		SettlementBreakdown: breakdown,
		CreatedAt:           time.Now(),
	}
}
