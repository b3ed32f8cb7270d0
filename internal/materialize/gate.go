// Package materialize decides what happens to a completed OCR extraction:
// auto-create an invoice, hold it for manual review, or fail it.
package materialize

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/faktulove/ocrsync/constants"
	"github.com/faktulove/ocrsync/internal/entity"
	"github.com/faktulove/ocrsync/internal/metrics"
	"github.com/faktulove/ocrsync/internal/repository"
)

// Outcome is the gate's decision for one extraction result.
type Outcome string

const (
	OutcomeAutoCreated  Outcome = "auto_created"
	OutcomeManualReview Outcome = "manual_review"
	OutcomeFailed       Outcome = "failed"
)

// Gate applies the confidence thresholds and structural validation to a
// completed extraction result. Validation failures are recorded on the
// result, never returned as errors; only persistence failures propagate.
type Gate struct {
	store       *repository.Store
	results     repository.ExtractionResultRepository
	invoices    repository.InvoiceRepository
	contractors repository.ContractorRepository
	logger      *slog.Logger
	schema      *jsonschema.Schema
}

func NewGate(
	store *repository.Store,
	results repository.ExtractionResultRepository,
	invoices repository.InvoiceRepository,
	contractors repository.ContractorRepository,
	logger *slog.Logger,
) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileFieldsSchema()
	if err != nil {
		return nil, err
	}
	return &Gate{
		store:       store,
		results:     results,
		invoices:    invoices,
		contractors: contractors,
		logger:      logger,
		schema:      schema,
	}, nil
}

// Process consumes a completed extraction result and settles it into one of
// the three outcomes. The caller owns the follow-up status sync; Process
// only moves the extraction result. Out-of-range confidence scores are
// compared as-is, never rejected.
func (g *Gate) Process(ctx context.Context, doc *entity.Document, res *entity.ExtractionResult) (Outcome, error) {
	// Worker callbacks get retried; an already-linked result is settled.
	if res.HasInvoice() {
		g.logger.Info("extraction already materialized, skipping gate",
			"result_id", res.ID, "document_id", doc.ID, "invoice_id", res.InvoiceID)
		return OutcomeAutoCreated, nil
	}

	parsed, problem := g.validate(res.ExtractedFields)

	if problem != nil && !problem.recoverable {
		g.logger.Warn("extraction failed validation",
			"result_id", res.ID, "document_id", doc.ID, "reason", problem.message)
		if err := g.results.UpdateStatus(ctx, res.ID, constants.ExtractionFailed, &problem.message); err != nil {
			return OutcomeFailed, err
		}
		res.ProcessingStatus = constants.ExtractionFailed
		res.ErrorMessage = &problem.message
		metrics.GateOutcome(string(OutcomeFailed))
		return OutcomeFailed, nil
	}

	// Auto-create requires the full threshold and a clean structure.
	// Everything else, the sub-threshold band and the whole sub-70 range
	// included, goes to a human.
	if res.ConfidenceScore >= constants.AutoCreateThreshold && problem == nil {
		if err := g.createInvoice(ctx, doc, res, parsed); err != nil {
			g.logger.Error("invoice materialization failed",
				"result_id", res.ID, "document_id", doc.ID, "err", err)
			return OutcomeAutoCreated, err
		}
		g.logger.Info("invoice auto-created",
			"result_id", res.ID, "document_id", doc.ID,
			"invoice_id", res.InvoiceID, "confidence", res.ConfidenceScore)
		metrics.GateOutcome(string(OutcomeAutoCreated))
		return OutcomeAutoCreated, nil
	}

	reason := ""
	if problem != nil {
		reason = problem.message
	}
	g.logger.Info("extraction routed to manual review",
		"result_id", res.ID, "document_id", doc.ID,
		"confidence", res.ConfidenceScore, "reason", reason)
	if err := g.results.UpdateStatus(ctx, res.ID, constants.ExtractionManualReview, nil); err != nil {
		return OutcomeManualReview, err
	}
	res.ProcessingStatus = constants.ExtractionManualReview
	metrics.GateOutcome(string(OutcomeManualReview))
	return OutcomeManualReview, nil
}

// createInvoice resolves the seller contractor, then writes the invoice and
// the extraction-result link in a single transaction.
func (g *Gate) createInvoice(ctx context.Context, doc *entity.Document, res *entity.ExtractionResult, parsed *ExtractedInvoice) error {
	seller := &entity.Contractor{
		UserID: doc.UserID,
		Name:   parsed.Sprzedawca.Nazwa,
		NIP:    normalizeNIP(parsed.Sprzedawca.NIP),
	}
	if parsed.Sprzedawca.Ulica != "" {
		seller.Street = &parsed.Sprzedawca.Ulica
	}
	if parsed.Sprzedawca.Miasto != "" {
		seller.City = &parsed.Sprzedawca.Miasto
	}
	if parsed.Sprzedawca.KodPocztowy != "" {
		seller.PostalCode = &parsed.Sprzedawca.KodPocztowy
	}
	seller, err := g.contractors.GetOrCreate(ctx, seller)
	if err != nil {
		return err
	}

	issueDate, _ := parseDate(parsed.DataWystawienia) // validated upstream

	inv := &entity.Invoice{
		UserID:       doc.UserID,
		Number:       parsed.NumerFaktury,
		IssueDate:    issueDate,
		SellerID:     seller.ID,
		TotalNet:     parsed.SumaNetto,
		TotalGross:   parsed.SumaBrutto,
		CurrencyCode: normalizeCurrency(parsed.Waluta),
		Source:       "ocr_auto",
	}
	if saleDate, ok := parseDate(parsed.DataSprzedazy); ok {
		inv.SaleDate = &saleDate
	}
	items, err := json.Marshal(parsed.Pozycje)
	if err != nil {
		return err
	}
	inv.LineItems = items

	err = g.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := g.invoices.CreateTx(ctx, tx, inv); err != nil {
			return err
		}
		return g.results.LinkInvoice(ctx, tx, res.ID, inv.ID)
	})
	if err != nil {
		return err
	}

	res.ProcessingStatus = constants.ExtractionCompleted
	res.InvoiceID = &inv.ID
	res.AutoCreatedInvoice = true
	res.ErrorMessage = nil
	return nil
}
