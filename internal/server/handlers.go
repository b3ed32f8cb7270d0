package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/entity"
	"github.com/faktulove/ocrsync/internal/pipeline"
	"github.com/faktulove/ocrsync/internal/statussync"
)

// maxBulkStatusIDs caps one bulk-status call. Larger batches are a client
// error, not a silent truncation.
const maxBulkStatusIDs = 50

const maxUploadBytes = 20 << 20

type statusResponse struct {
	statussync.Combined
	Timestamp         string `json:"timestamp"`
	PollingIntervalMS int    `json:"polling_interval_ms"`
}

type displayResponse struct {
	statussync.DisplayData
	Timestamp         string `json:"timestamp"`
	PollingIntervalMS int    `json:"polling_interval_ms"`
}

type progressResponse struct {
	Progress          int    `json:"progress"`
	Status            string `json:"status"`
	Display           string `json:"display"`
	IsFinal           bool   `json:"is_final"`
	Timestamp         string `json:"timestamp"`
	PollingIntervalMS int    `json:"polling_interval_ms"`
}

type bulkStatusRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

type bulkStatusResponse struct {
	Results   map[string]any   `json:"results"`
	SyncStats statussync.Stats `json:"sync_stats"`
	Timestamp string           `json:"timestamp"`
}

// fetchOwnedDocument scopes the lookup to the caller. Unknown and foreign
// ids are both a plain not-found; the caller learns nothing about other
// users' documents.
func (s *Server) fetchOwnedDocument(w http.ResponseWriter, r *http.Request) (*entity.Document, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "INVALID_ID", "document id must be a UUID")
		return nil, false
	}
	userID := common.UserIDFromContext(r.Context())
	doc, err := s.documents.GetForUser(r.Context(), userID, id)
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, s.logger, http.StatusNotFound, "NOT_FOUND", "document not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("document lookup failed", "document_id", id, "err", err)
		writeError(w, s.logger, http.StatusInternalServerError, "INTERNAL", "internal error")
		return nil, false
	}
	return doc, true
}

// syncBestEffort reconciles before a read. Sync failures are logged and
// swallowed; polling keeps serving the last known good state.
func (s *Server) syncBestEffort(r *http.Request, doc *entity.Document) *entity.Document {
	changed, err := s.sync.SyncDocumentStatus(r.Context(), doc)
	if err != nil {
		s.logger.Warn("status sync failed during poll, serving stale status",
			"document_id", doc.ID, "err", err)
		return doc
	}
	if changed {
		userID := common.UserIDFromContext(r.Context())
		if fresh, err := s.documents.GetForUser(r.Context(), userID, doc.ID); err == nil {
			return fresh
		}
	}
	return doc
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.fetchOwnedDocument(w, r)
	if !ok {
		return
	}
	doc = s.syncBestEffort(r, doc)
	combined := s.sync.GetCombinedStatus(r.Context(), doc)
	writeJSON(w, s.logger, http.StatusOK, statusResponse{
		Combined:          *combined,
		Timestamp:         nowISO(),
		PollingIntervalMS: statussync.PollingInterval(combined.Status),
	})
}

func (s *Server) handleDisplayStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.fetchOwnedDocument(w, r)
	if !ok {
		return
	}
	doc = s.syncBestEffort(r, doc)
	display := s.sync.GetStatusDisplayData(r.Context(), doc)
	writeJSON(w, s.logger, http.StatusOK, displayResponse{
		DisplayData:       *display,
		Timestamp:         nowISO(),
		PollingIntervalMS: statussync.PollingInterval(display.Status),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.fetchOwnedDocument(w, r)
	if !ok {
		return
	}
	doc = s.syncBestEffort(r, doc)
	combined := s.sync.GetCombinedStatus(r.Context(), doc)
	writeJSON(w, s.logger, http.StatusOK, progressResponse{
		Progress:          combined.Progress,
		Status:            combined.Status,
		Display:           combined.DisplayText,
		IsFinal:           combined.IsFinal,
		Timestamp:         nowISO(),
		PollingIntervalMS: statussync.PollingInterval(combined.Status),
	})
}

func (s *Server) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "INVALID_BODY", "body must be JSON with document_ids")
		return
	}
	if len(req.DocumentIDs) == 0 {
		writeError(w, s.logger, http.StatusBadRequest, "INVALID_BODY", "document_ids is required")
		return
	}
	if len(req.DocumentIDs) > maxBulkStatusIDs {
		writeError(w, s.logger, http.StatusBadRequest, "TOO_MANY_IDS",
			fmt.Sprintf("at most %d document ids per call", maxBulkStatusIDs))
		return
	}

	userID := common.UserIDFromContext(r.Context())
	results := make(map[string]any, len(req.DocumentIDs))
	var docs []*entity.Document
	for _, raw := range req.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			results[raw] = errorBody{ErrorCode: "INVALID_ID", Message: "document id must be a UUID", Timestamp: nowISO()}
			continue
		}
		doc, err := s.documents.GetForUser(r.Context(), userID, id)
		if errors.Is(err, common.ErrNotFound) {
			results[raw] = errorBody{ErrorCode: "NOT_FOUND", Message: "document not found", Timestamp: nowISO()}
			continue
		}
		if err != nil {
			s.logger.Error("bulk status: document lookup failed", "document_id", id, "err", err)
			results[raw] = errorBody{ErrorCode: "INTERNAL", Message: "internal error", Timestamp: nowISO()}
			continue
		}
		docs = append(docs, doc)
	}

	stats := s.sync.BulkSyncDocuments(r.Context(), docs)
	for _, doc := range docs {
		combined := s.sync.GetCombinedStatus(r.Context(), doc)
		results[doc.ID.String()] = statusResponse{
			Combined:          *combined,
			Timestamp:         nowISO(),
			PollingIntervalMS: statussync.PollingInterval(combined.Status),
		}
	}

	writeJSON(w, s.logger, http.StatusOK, bulkStatusResponse{
		Results:   results,
		SyncStats: stats,
		Timestamp: nowISO(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "INVALID_UPLOAD", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	userID := common.UserIDFromContext(r.Context())
	docID := uuid.New()
	storagePath := filepath.Join(s.uploadDir, docID.String()+filepath.Ext(header.Filename))

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		s.logger.Error("upload dir unavailable", "dir", s.uploadDir, "err", err)
		writeError(w, s.logger, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	dst, err := os.Create(storagePath)
	if err != nil {
		s.logger.Error("upload file create failed", "path", storagePath, "err", err)
		writeError(w, s.logger, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		s.logger.Error("upload write failed", "path", storagePath, "err", err)
		writeError(w, s.logger, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	doc := &entity.Document{
		ID:          docID,
		UserID:      userID,
		Filename:    header.Filename,
		StoragePath: storagePath,
	}
	if err := s.documents.Create(r.Context(), doc); err != nil {
		s.logger.Error("document create failed", "err", err)
		writeError(w, s.logger, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	combined := s.sync.GetCombinedStatus(r.Context(), doc)
	writeJSON(w, s.logger, http.StatusCreated, statusResponse{
		Combined:          *combined,
		Timestamp:         nowISO(),
		PollingIntervalMS: statussync.PollingInterval(combined.Status),
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "INVALID_ID", "document id must be a UUID")
		return
	}

	var payload pipeline.ResultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "INVALID_BODY", "body must be a JSON result payload")
		return
	}

	res, outcome, err := s.processor.HandleResult(r.Context(), id, payload)
	switch {
	case errors.Is(err, common.ErrNotFound):
		writeError(w, s.logger, http.StatusNotFound, "NOT_FOUND", "document not found")
		return
	case errors.Is(err, common.ErrInvalidInput):
		writeError(w, s.logger, http.StatusBadRequest, "INVALID_STATUS", err.Error())
		return
	case err != nil:
		s.logger.Error("result intake failed", "document_id", id, "err", err)
		writeError(w, s.logger, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"result_id":         res.ID,
		"document_id":       id,
		"extraction_status": res.ProcessingStatus,
		"outcome":           outcome,
		"timestamp":         nowISO(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := common.UserIDFromContext(r.Context())

	parseDate := func(name string) (*time.Time, bool) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return nil, true
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, s.logger, http.StatusBadRequest, "INVALID_DATE",
				fmt.Sprintf("invalid %s date %q, expected YYYY-MM-DD", name, raw))
			return nil, false
		}
		return &t, true
	}
	from, ok := parseDate("from")
	if !ok {
		return
	}
	to, ok := parseDate("to")
	if !ok {
		return
	}

	data, err := s.export.ExportInvoicesXLSX(r.Context(), userID, from, to)
	if err != nil {
		s.logger.Error("invoice export failed", "user_id", userID, "err", err)
		writeError(w, s.logger, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="faktury.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
