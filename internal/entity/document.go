package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/constants"
)

// Document represents an uploaded file and its lifecycle status for data
// transfer between layers. The status is driven exclusively by the sync
// service once an extraction result exists.
type Document struct {
	ID                    uuid.UUID                `json:"id"`
	UserID                uuid.UUID                `json:"user_id"`
	Filename              string                   `json:"filename"`
	StoragePath           string                   `json:"storage_path"`
	UploadedAt            time.Time                `json:"uploaded_at"`
	ProcessingStatus      constants.DocumentStatus `json:"processing_status"`
	ProcessingStartedAt   *time.Time               `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time               `json:"processing_completed_at,omitempty"`
	ErrorMessage          *string                  `json:"error_message,omitempty"`
}
