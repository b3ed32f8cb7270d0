package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/constants"
)

// ExtractionResult represents one OCR attempt against a document. At most
// one current result exists per document. The extracted-fields schema is
// owned by the upstream OCR producer and treated as opaque here.
type ExtractionResult struct {
	ID                 uuid.UUID                  `json:"id"`
	DocumentID         uuid.UUID                  `json:"document_id"`
	RawText            *string                    `json:"raw_text,omitempty"`
	ExtractedFields    json.RawMessage            `json:"extracted_fields,omitempty"`
	ConfidenceScore    float64                    `json:"confidence_score"`
	ProcessingTime     *float64                   `json:"processing_time,omitempty"`
	ProcessingStatus   constants.ExtractionStatus `json:"processing_status"`
	ErrorMessage       *string                    `json:"error_message,omitempty"`
	InvoiceID          *uuid.UUID                 `json:"invoice_id,omitempty"`
	AutoCreatedInvoice bool                       `json:"auto_created_invoice"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

// HasInvoice reports whether a materialized invoice is linked.
func (r *ExtractionResult) HasInvoice() bool {
	return r.InvoiceID != nil && *r.InvoiceID != uuid.Nil
}
