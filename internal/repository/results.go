package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/constants"
	"github.com/faktulove/ocrsync/internal/entity"
)

type ExtractionResultRepository interface {
	// GetByDocumentID returns (nil, nil) when no extraction result exists
	// yet; that is a normal state, not an error.
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionResult, error)
	// Upsert creates the document's extraction result or replaces the
	// current one's payload and status (at most one current result per
	// document).
	Upsert(ctx context.Context, res *entity.ExtractionResult) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.ExtractionStatus, errorMessage *string) error
	// LinkInvoice records the materialized invoice and marks the result
	// completed, in the same transaction as the invoice insert.
	LinkInvoice(ctx context.Context, tx *sql.Tx, id, invoiceID uuid.UUID) error
}

type extractionResultRepo struct {
	store *Store
	log   *slog.Logger
}

func NewExtractionResultRepository(store *Store, log *slog.Logger) ExtractionResultRepository {
	return &extractionResultRepo{store: store, log: log}
}

const resultColumns = `id, document_id, raw_text, extracted_fields, confidence_score,
	processing_time, processing_status, error_message, invoice_id, auto_created_invoice,
	created_at, updated_at`

func (r *extractionResultRepo) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionResult, error) {
	row := r.store.DB.QueryRowContext(ctx, r.store.q(
		`SELECT `+resultColumns+` FROM extraction_results WHERE document_id = ?`), documentID)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *extractionResultRepo) Upsert(ctx context.Context, res *entity.ExtractionResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	if res.ProcessingStatus == "" {
		res.ProcessingStatus = constants.ExtractionPending
	}

	_, err := r.store.DB.ExecContext(ctx, r.store.q(
		`INSERT INTO extraction_results
		   (id, document_id, raw_text, extracted_fields, confidence_score, processing_time,
		    processing_status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (document_id) DO UPDATE SET
		   raw_text = excluded.raw_text,
		   extracted_fields = excluded.extracted_fields,
		   confidence_score = excluded.confidence_score,
		   processing_time = excluded.processing_time,
		   processing_status = excluded.processing_status,
		   error_message = excluded.error_message,
		   updated_at = excluded.updated_at`),
		res.ID, res.DocumentID, res.RawText, []byte(res.ExtractedFields), res.ConfidenceScore,
		res.ProcessingTime, string(res.ProcessingStatus), res.ErrorMessage, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		r.log.Error("extraction result upsert failed", "document_id", res.DocumentID, "err", err)
		return err
	}

	// The insert may have hit the conflict path; reload so the caller sees
	// the surviving row id.
	current, err := r.GetByDocumentID(ctx, res.DocumentID)
	if err != nil {
		return err
	}
	if current != nil {
		*res = *current
	}
	r.log.Info("extraction result stored", "result_id", res.ID,
		"document_id", res.DocumentID, "status", res.ProcessingStatus,
		"confidence", res.ConfidenceScore)
	return nil
}

func (r *extractionResultRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.ExtractionStatus, errorMessage *string) error {
	_, err := r.store.DB.ExecContext(ctx, r.store.q(
		`UPDATE extraction_results
		 SET processing_status = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`),
		string(status), errorMessage, time.Now().UTC(), id)
	if err != nil {
		r.log.Error("extraction result status update failed", "result_id", id, "status", status, "err", err)
		return err
	}
	r.log.Info("extraction result status updated", "result_id", id, "status", status)
	return nil
}

func (r *extractionResultRepo) LinkInvoice(ctx context.Context, tx *sql.Tx, id, invoiceID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, r.store.q(
		`UPDATE extraction_results
		 SET invoice_id = ?, auto_created_invoice = TRUE, processing_status = ?,
		     error_message = NULL, updated_at = ?
		 WHERE id = ?`),
		invoiceID, string(constants.ExtractionCompleted), time.Now().UTC(), id)
	if err != nil {
		r.log.Error("extraction result invoice link failed", "result_id", id, "invoice_id", invoiceID, "err", err)
	}
	return err
}

func scanResult(row rowScanner) (*entity.ExtractionResult, error) {
	var (
		res       entity.ExtractionResult
		rawText   sql.NullString
		fields    []byte
		procTime  sql.NullFloat64
		status    string
		errMsg    sql.NullString
		invoiceID uuid.NullUUID
	)
	err := row.Scan(&res.ID, &res.DocumentID, &rawText, &fields, &res.ConfidenceScore,
		&procTime, &status, &errMsg, &invoiceID, &res.AutoCreatedInvoice,
		&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.ProcessingStatus = constants.ExtractionStatus(status)
	if rawText.Valid {
		res.RawText = &rawText.String
	}
	if len(fields) > 0 {
		res.ExtractedFields = fields
	}
	if procTime.Valid {
		res.ProcessingTime = &procTime.Float64
	}
	if errMsg.Valid {
		res.ErrorMessage = &errMsg.String
	}
	if invoiceID.Valid {
		res.InvoiceID = &invoiceID.UUID
	}
	return &res, nil
}
