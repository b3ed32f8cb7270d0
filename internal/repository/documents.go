package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/constants"
	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/entity"
)

// StatusUpdate describes a status transition to apply to a document.
// StartedAt/CompletedAt are only written when the column is still NULL, so
// repeated syncs never move a timestamp once set.
type StatusUpdate struct {
	Target       constants.DocumentStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	// GetForUser returns common.ErrNotFound both for unknown ids and for
	// documents owned by someone else.
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*entity.Document, error)
	// ApplyStatus performs the transition as one atomic statement and
	// reports whether a row actually changed. A no-op (already at target)
	// returns false, nil.
	ApplyStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (bool, error)
	ListNonTerminal(ctx context.Context) ([]*entity.Document, error)
}

type documentRepo struct {
	store *Store
	log   *slog.Logger
}

func NewDocumentRepository(store *Store, log *slog.Logger) DocumentRepository {
	return &documentRepo{store: store, log: log}
}

const documentColumns = `id, user_id, filename, storage_path, uploaded_at,
	processing_status, processing_started_at, processing_completed_at, error_message`

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = constants.DocumentUploaded
	}
	_, err := r.store.DB.ExecContext(ctx, r.store.q(
		`INSERT INTO documents (id, user_id, filename, storage_path, uploaded_at, processing_status)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.UserID, doc.Filename, doc.StoragePath, doc.UploadedAt, string(doc.ProcessingStatus))
	if err != nil {
		r.log.Error("document create failed", "user_id", doc.UserID, "err", err)
		return err
	}
	r.log.Info("document created", "document_id", doc.ID, "filename", doc.Filename)
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	row := r.store.DB.QueryRowContext(ctx, r.store.q(
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`), id)
	return scanDocument(row)
}

func (r *documentRepo) GetForUser(ctx context.Context, userID, id uuid.UUID) (*entity.Document, error) {
	row := r.store.DB.QueryRowContext(ctx, r.store.q(
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND user_id = ?`), id, userID)
	return scanDocument(row)
}

func (r *documentRepo) ApplyStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (bool, error) {
	res, err := r.store.DB.ExecContext(ctx, r.store.q(
		`UPDATE documents
		 SET processing_status = ?,
		     processing_started_at = COALESCE(processing_started_at, ?),
		     processing_completed_at = COALESCE(processing_completed_at, ?),
		     error_message = COALESCE(?, error_message)
		 WHERE id = ? AND processing_status <> ?`),
		string(update.Target), update.StartedAt, update.CompletedAt, update.ErrorMessage,
		id, string(update.Target))
	if err != nil {
		r.log.Error("document status update failed", "document_id", id, "target", update.Target, "err", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		r.log.Info("document status updated", "document_id", id, "status", update.Target)
	}
	return n > 0, nil
}

func (r *documentRepo) ListNonTerminal(ctx context.Context) ([]*entity.Document, error) {
	rows, err := r.store.DB.QueryContext(ctx, r.store.q(
		`SELECT `+documentColumns+` FROM documents
		 WHERE processing_status NOT IN (?, ?, ?)
		 ORDER BY uploaded_at`),
		string(constants.DocumentCompleted), string(constants.DocumentFailed), string(constants.DocumentCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var (
		doc       entity.Document
		status    string
		startedAt sql.NullTime
		doneAt    sql.NullTime
		errMsg    sql.NullString
	)
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.StoragePath, &doc.UploadedAt,
		&status, &startedAt, &doneAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.ProcessingStatus = constants.DocumentStatus(status)
	if startedAt.Valid {
		doc.ProcessingStartedAt = &startedAt.Time
	}
	if doneAt.Valid {
		doc.ProcessingCompletedAt = &doneAt.Time
	}
	if errMsg.Valid {
		doc.ErrorMessage = &errMsg.String
	}
	return &doc, nil
}
