package models

import (
	"time"

	"github.com/google/uuid"
)

// Client represents a billable client owned by a platform user
type Client struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OwnerID   uuid.UUID `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Address   string    `json:"address,omitempty" db:"address"`
	TaxNumber string    `json:"tax_number,omitempty" db:"tax_number"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Client model
func (Client) TableName() string {
	return "clients"
}

// NewClient creates a new Client instance
func NewClient(ownerID uuid.UUID, name, email string) *Client {
	now := time.Now()
	return &Client{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
