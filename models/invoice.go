package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
	InvoiceStatusVoid  InvoiceStatus = "void"
)

// ValidInvoiceStatus reports whether s is a known invoice status
func ValidInvoiceStatus(s InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	}
	return false
}

// InvoiceItem represents a single line on an invoice.
// Amounts are exact decimals; binary floats are never used for money.
type InvoiceItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id" db:"invoice_id"`
	Description string          `json:"description" db:"description"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// Amount returns quantity * unit price
func (i *InvoiceItem) Amount() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// Invoice represents an invoice issued by a user to one of their clients
type Invoice struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OwnerID   uuid.UUID       `json:"owner_id" db:"owner_id"`
	ClientID  uuid.UUID       `json:"client_id" db:"client_id"`
	Number    string          `json:"number" db:"number"`
	Status    InvoiceStatus   `json:"status" db:"status"`
	Currency  string          `json:"currency" db:"currency"`
	Total     decimal.Decimal `json:"total" db:"total"`
	DueDate   *time.Time      `json:"due_date,omitempty" db:"due_date"`
	Items     []InvoiceItem   `json:"items,omitempty" db:"-"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Invoice model
func (Invoice) TableName() string {
	return "invoices"
}

// NewInvoice creates a new draft invoice
func NewInvoice(ownerID, clientID uuid.UUID, number, currency string) *Invoice {
	now := time.Now()
	return &Invoice{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		ClientID:  clientID,
		Number:    number,
		Status:    InvoiceStatusDraft,
		Currency:  currency,
		Total:     decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ComputeTotal recomputes the invoice total from its line items
func (inv *Invoice) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range inv.Items {
		total = total.Add(inv.Items[i].Amount())
	}
	inv.Total = total
	return total
}
