package models

import (
	"time"

	"github.com/google/uuid"
)

// KYCStatus represents the verification state of a user's identity documents
type KYCStatus string

const (
	KYCStatusNone     KYCStatus = "none"
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusVerified KYCStatus = "verified"
	KYCStatusRejected KYCStatus = "rejected"
)

// User represents a platform user (the invoicing party)
type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Subject        string    `json:"subject" db:"subject"` // opaque identifier from the auth layer
	Email          string    `json:"email" db:"email"`
	FullName       string    `json:"full_name" db:"full_name"`
	BusinessName   string    `json:"business_name,omitempty" db:"business_name"`
	Role           string    `json:"role" db:"role"` // user or admin
	KYCStatus      KYCStatus `json:"kyc_status" db:"kyc_status"`
	KYCDocumentRef *string   `json:"kyc_document_ref,omitempty" db:"kyc_document_ref"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(subject, email, fullName string) *User {
	now := time.Now()
	return &User{
		ID:        uuid.New(),
		Subject:   subject,
		Email:     email,
		FullName:  fullName,
		Role:      "user",
		KYCStatus: KYCStatusNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
