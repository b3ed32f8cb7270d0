package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Invoice represents a materialized invoice built from extracted OCR data.
type Invoice struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Number       string          `json:"number"`
	IssueDate    time.Time       `json:"issue_date"`
	SaleDate     *time.Time      `json:"sale_date,omitempty"`
	SellerID     uuid.UUID       `json:"seller_id"`
	LineItems    json.RawMessage `json:"line_items"`
	TotalNet     *float64        `json:"total_net,omitempty"`
	TotalGross   *float64        `json:"total_gross,omitempty"`
	CurrencyCode string          `json:"currency_code"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Contractor represents an invoice counterparty. Deduplicated per user by
// tax identifier (NIP).
type Contractor struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	NIP        string    `json:"nip"`
	Street     *string   `json:"street,omitempty"`
	City       *string   `json:"city,omitempty"`
	PostalCode *string   `json:"postal_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
