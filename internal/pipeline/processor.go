// Package pipeline is the intake point for OCR worker results. It makes
// the processing order explicit: persist the extraction result, sync the
// document, run the confidence gate, sync again. No event dispatch.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/constants"
	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/entity"
	"github.com/faktulove/ocrsync/internal/materialize"
	"github.com/faktulove/ocrsync/internal/repository"
	"github.com/faktulove/ocrsync/internal/statussync"
)

// ResultPayload is the body the OCR worker posts for a document.
type ResultPayload struct {
	Status          constants.ExtractionStatus `json:"status"`
	RawText         string                     `json:"raw_text,omitempty"`
	ExtractedFields json.RawMessage            `json:"extracted_fields,omitempty"`
	ConfidenceScore float64                    `json:"confidence_score"`
	ProcessingTime  *float64                   `json:"processing_time,omitempty"`
	ErrorMessage    *string                    `json:"error_message,omitempty"`
}

func (p ResultPayload) validate() error {
	switch p.Status {
	case constants.ExtractionPending, constants.ExtractionProcessing,
		constants.ExtractionCompleted, constants.ExtractionFailed:
		return nil
	default:
		return common.NewAppError("INVALID_STATUS",
			"unsupported extraction status: "+string(p.Status), common.ErrInvalidInput)
	}
}

// Processor drives a posted OCR result through persistence, status sync and
// the materialization gate, in that order.
type Processor struct {
	documents repository.DocumentRepository
	results   repository.ExtractionResultRepository
	sync      *statussync.Service
	gate      *materialize.Gate
	logger    *slog.Logger
}

func NewProcessor(
	documents repository.DocumentRepository,
	results repository.ExtractionResultRepository,
	sync *statussync.Service,
	gate *materialize.Gate,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		documents: documents,
		results:   results,
		sync:      sync,
		gate:      gate,
		logger:    logger,
	}
}

// HandleResult records the OCR worker's result for a document and runs the
// reconciliation sequence. Returns the surviving extraction result and the
// gate outcome ("" when the gate did not run).
func (p *Processor) HandleResult(ctx context.Context, documentID uuid.UUID, payload ResultPayload) (*entity.ExtractionResult, materialize.Outcome, error) {
	if err := payload.validate(); err != nil {
		return nil, "", err
	}

	doc, err := p.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, "", err
	}

	res := &entity.ExtractionResult{
		DocumentID:       doc.ID,
		ExtractedFields:  payload.ExtractedFields,
		ConfidenceScore:  payload.ConfidenceScore,
		ProcessingTime:   payload.ProcessingTime,
		ProcessingStatus: payload.Status,
		ErrorMessage:     payload.ErrorMessage,
	}
	if payload.RawText != "" {
		res.RawText = &payload.RawText
	}
	if err := p.results.Upsert(ctx, res); err != nil {
		return nil, "", err
	}

	// 1) reflect the worker's status on the document
	if _, err := p.sync.SyncDocumentStatus(ctx, doc); err != nil {
		return res, "", err
	}

	// 2) completed results go through the gate; 3) sync again so the
	// document sees the gate's verdict immediately.
	var outcome materialize.Outcome
	if res.ProcessingStatus == constants.ExtractionCompleted {
		outcome, err = p.gate.Process(ctx, doc, res)
		if err != nil {
			return res, outcome, err
		}
		if _, err := p.sync.SyncDocumentStatus(ctx, doc); err != nil {
			return res, outcome, err
		}
	}

	p.logger.Info("ocr result processed",
		"document_id", doc.ID, "result_id", res.ID,
		"extraction_status", res.ProcessingStatus, "outcome", outcome)
	return res, outcome, nil
}
