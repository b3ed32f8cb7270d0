// Package statussync reconciles the independently-evolving states of a
// document and its OCR extraction result into one user-facing status.
package statussync

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/constants"
	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/entity"
	"github.com/faktulove/ocrsync/internal/metrics"
	"github.com/faktulove/ocrsync/internal/repository"
)

// ExtractionInfo carries the extraction-dependent slice of a combined
// status. Present only when an extraction result exists; flattened into the
// JSON payload.
type ExtractionInfo struct {
	ConfidenceScore    float64    `json:"confidence_score"`
	ConfidenceLevel    string     `json:"confidence_level"`
	AutoCreatedInvoice bool       `json:"auto_created_invoice"`
	HasInvoice         bool       `json:"has_invoice"`
	InvoiceID          *uuid.UUID `json:"invoice_id,omitempty"`
}

// Combined is the derived, never-persisted status payload. Recomputed from
// current document + extraction state on every call.
type Combined struct {
	Status      string `json:"status"`
	DisplayText string `json:"display_text"`
	Description string `json:"description"`
	Progress    int    `json:"progress"`
	CanRetry    bool   `json:"can_retry"`
	IsFinal     bool   `json:"is_final"`

	DocumentID            uuid.UUID  `json:"document_id"`
	DocumentStatus        string     `json:"document_status"`
	ExtractionStatus      *string    `json:"extraction_status"`
	UploadedAt            time.Time  `json:"uploaded_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at"`
	ErrorMessage          *string    `json:"error_message"`
	HasExtractionResult   bool       `json:"has_extraction_result"`

	*ExtractionInfo
}

// DisplayData wraps Combined with purely presentational fields for the
// document list UI. The only place presentation and domain logic mix.
type DisplayData struct {
	Combined

	StatusClass     string `json:"status_class"`
	ProgressClass   string `json:"progress_class"`
	Icon            string `json:"icon"`
	ShowSpinner     bool   `json:"show_spinner"`
	ShowRetryButton bool   `json:"show_retry_button"`
	ShowProgressBar bool   `json:"show_progress_bar"`
}

// Stats aggregates a bulk sync run.
type Stats struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Service reconciles document status from extraction-result status. It is
// the only writer of documents.processing_status once an extraction result
// exists.
type Service struct {
	documents repository.DocumentRepository
	results   repository.ExtractionResultRepository
	logger    *slog.Logger
}

func NewService(documents repository.DocumentRepository, results repository.ExtractionResultRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{documents: documents, results: results, logger: logger}
}

// SyncDocumentStatus maps the document's current extraction-result status
// onto the document and persists the transition atomically. Returns true
// when the document actually changed; repeated calls are no-ops. Only a
// persistence failure propagates, wrapped so that
// errors.Is(err, common.ErrSync) holds.
func (s *Service) SyncDocumentStatus(ctx context.Context, doc *entity.Document) (bool, error) {
	res, err := s.results.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		return false, common.SyncError("load extraction result", err)
	}
	if res == nil {
		// No OCR attempt yet; the document keeps whatever status the
		// upload pipeline gave it.
		return false, nil
	}

	target, ok := constants.DocumentStatusFor(res.ProcessingStatus)
	if !ok {
		s.logger.Warn("unrecognized extraction status, skipping sync",
			"document_id", doc.ID, "extraction_status", res.ProcessingStatus)
		metrics.SyncResult("unknown_status")
		return false, nil
	}
	if target == doc.ProcessingStatus {
		metrics.SyncResult("unchanged")
		return false, nil
	}

	now := time.Now().UTC()
	update := repository.StatusUpdate{Target: target}
	if target == constants.DocumentProcessing {
		update.StartedAt = &now
	}
	if target == constants.DocumentCompleted || target == constants.DocumentFailed {
		update.CompletedAt = &now
	}
	if target == constants.DocumentFailed {
		update.ErrorMessage = res.ErrorMessage
	}

	changed, err := s.documents.ApplyStatus(ctx, doc.ID, update)
	if err != nil {
		metrics.SyncResult("error")
		return false, common.SyncError("persist status change", err)
	}
	if changed {
		doc.ProcessingStatus = target
		if update.StartedAt != nil && doc.ProcessingStartedAt == nil {
			doc.ProcessingStartedAt = update.StartedAt
		}
		if update.CompletedAt != nil && doc.ProcessingCompletedAt == nil {
			doc.ProcessingCompletedAt = update.CompletedAt
		}
		if update.ErrorMessage != nil {
			doc.ErrorMessage = update.ErrorMessage
		}
		s.logger.Info("document status synced",
			"document_id", doc.ID, "status", target, "extraction_status", res.ProcessingStatus)
		metrics.SyncResult("updated")
	} else {
		// A concurrent sync got there first; converged all the same.
		metrics.SyncResult("unchanged")
	}
	return changed, nil
}

// GetCombinedStatus computes the unified, user-facing status. Pure read,
// never mutates, and never returns an error: internal inconsistencies
// degrade to a safe payload.
func (s *Service) GetCombinedStatus(ctx context.Context, doc *entity.Document) *Combined {
	res, err := s.results.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		s.logger.Error("combined status degraded, extraction lookup failed",
			"document_id", doc.ID, "err", err)
		msg := err.Error()
		c := s.build(doc, nil, errorEntry)
		c.ErrorMessage = &msg
		return c
	}
	return s.build(doc, res, s.lookup(doc, res))
}

func (s *Service) lookup(doc *entity.Document, res *entity.ExtractionResult) Entry {
	// Cancellation wins over any extraction state, mid-reconciliation
	// included.
	if doc.ProcessingStatus == constants.DocumentCancelled {
		return pairTable[pairKey{constants.DocumentCancelled, ""}]
	}
	// Materialized invoice is the pipeline's terminal marker.
	if res != nil && res.ProcessingStatus == constants.ExtractionCompleted && res.HasInvoice() {
		return invoiceCreatedEntry
	}

	key := pairKey{doc: doc.ProcessingStatus}
	if res != nil {
		key.ext = res.ProcessingStatus
	}
	if entry, ok := pairTable[key]; ok {
		return entry
	}
	if entry, ok := docTable[doc.ProcessingStatus]; ok {
		s.logger.Warn("combined status pair not in table, using document fallback",
			"document_id", doc.ID, "document_status", doc.ProcessingStatus, "extraction_status", key.ext)
		return entry
	}
	s.logger.Warn("combined status unknown for document",
		"document_id", doc.ID, "document_status", doc.ProcessingStatus, "extraction_status", key.ext)
	return unknownEntry
}

func (s *Service) build(doc *entity.Document, res *entity.ExtractionResult, entry Entry) *Combined {
	c := &Combined{
		Status:      entry.Status,
		DisplayText: entry.DisplayText,
		Description: entry.Description,
		Progress:    entry.Progress,
		CanRetry:    entry.CanRetry,
		IsFinal:     entry.IsFinal,

		DocumentID:            doc.ID,
		DocumentStatus:        string(doc.ProcessingStatus),
		UploadedAt:            doc.UploadedAt,
		ProcessingStartedAt:   doc.ProcessingStartedAt,
		ProcessingCompletedAt: doc.ProcessingCompletedAt,
		ErrorMessage:          doc.ErrorMessage,
	}
	if res != nil {
		status := string(res.ProcessingStatus)
		c.ExtractionStatus = &status
		c.HasExtractionResult = true
		if res.ErrorMessage != nil {
			c.ErrorMessage = res.ErrorMessage
		}
		c.ExtractionInfo = &ExtractionInfo{
			ConfidenceScore:    res.ConfidenceScore,
			ConfidenceLevel:    constants.ConfidenceLevel(res.ConfidenceScore),
			AutoCreatedInvoice: res.AutoCreatedInvoice,
			HasInvoice:         res.HasInvoice(),
			InvoiceID:          res.InvoiceID,
		}
	}
	return c
}

// GetStatusDisplayData decorates the combined status with presentational
// tags. A thin layer; no domain decisions are made here.
func (s *Service) GetStatusDisplayData(ctx context.Context, doc *entity.Document) *DisplayData {
	c := s.GetCombinedStatus(ctx, doc)
	return &DisplayData{
		Combined:        *c,
		StatusClass:     "status-" + c.Status,
		ProgressClass:   progressClass(c.Progress),
		Icon:            statusIcon(c.Status),
		ShowSpinner:     c.Status == StatusProcessing || c.Status == StatusQueued,
		ShowRetryButton: c.CanRetry,
		ShowProgressBar: !c.IsFinal,
	}
}

func progressClass(progress int) string {
	switch {
	case progress == 0:
		return "danger"
	case progress < 50:
		return "info"
	case progress < 80:
		return "warning"
	default:
		return "success"
	}
}

func statusIcon(status string) string {
	switch status {
	case StatusUploaded:
		return "fa-file-upload"
	case StatusQueued:
		return "fa-clock"
	case StatusProcessing:
		return "fa-spinner"
	case StatusOCRCompleted:
		return "fa-file-alt"
	case StatusManualReview:
		return "fa-user-check"
	case StatusCompleted:
		return "fa-check-circle"
	case StatusFailed, StatusError:
		return "fa-exclamation-triangle"
	case StatusCancelled:
		return "fa-ban"
	default:
		return "fa-question-circle"
	}
}

// BulkSyncDocuments syncs each document independently; one failure never
// aborts the rest. Each document runs under its own transaction so lock
// contention cannot block the batch.
func (s *Service) BulkSyncDocuments(ctx context.Context, docs []*entity.Document) Stats {
	stats := Stats{Total: len(docs)}
	for _, doc := range docs {
		changed, err := s.SyncDocumentStatus(ctx, doc)
		switch {
		case err != nil:
			stats.Failed++
			s.logger.Error("bulk sync: document failed", "document_id", doc.ID, "err", err)
		case changed:
			stats.Updated++
		default:
			stats.Skipped++
		}
	}
	s.logger.Info("bulk sync finished",
		"total", stats.Total, "updated", stats.Updated, "failed", stats.Failed, "skipped", stats.Skipped)
	return stats
}
