package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faktulove/ocrsync/constants"
	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/entity"
	"github.com/faktulove/ocrsync/internal/repository"
)

type fixture struct {
	store       *repository.Store
	documents   repository.DocumentRepository
	results     repository.ExtractionResultRepository
	invoices    repository.InvoiceRepository
	contractors repository.ContractorRepository
	gate        *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := repository.Open(context.Background(), common.DatabaseConfig{DSN: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(context.Background()))

	f := &fixture{
		store:       store,
		documents:   repository.NewDocumentRepository(store, logger),
		results:     repository.NewExtractionResultRepository(store, logger),
		invoices:    repository.NewInvoiceRepository(store, logger),
		contractors: repository.NewContractorRepository(store, logger),
	}
	f.gate, err = NewGate(store, f.results, f.invoices, f.contractors, logger)
	require.NoError(t, err)
	return f
}

// validFields is a structurally complete extraction that clears every check.
func validFields() map[string]any {
	return map[string]any{
		"numer_faktury":    "FV/2026/08/001",
		"data_wystawienia": "2026-08-14",
		"data_sprzedazy":   "2026-08-10",
		"sprzedawca": map[string]any{
			"nazwa":        "ACME Sp. z o.o.",
			"nip":          "123-456-78-90",
			"ulica":        "ul. Prosta 1",
			"miasto":       "Warszawa",
			"kod_pocztowy": "00-001",
		},
		"pozycje": []map[string]any{
			{"nazwa": "Usługa księgowa", "ilosc": 1.0, "cena_netto": 1000.0, "stawka_vat": "23%"},
		},
		"suma_netto":  1000.0,
		"suma_brutto": 1230.0,
		"waluta":      "pln",
	}
}

func (f *fixture) seed(t *testing.T, fields map[string]any, confidence float64) (*entity.Document, *entity.ExtractionResult) {
	t.Helper()
	ctx := context.Background()
	doc := &entity.Document{UserID: uuid.New(), Filename: "faktura.pdf", StoragePath: "/tmp/faktura.pdf"}
	require.NoError(t, f.documents.Create(ctx, doc))

	var raw json.RawMessage
	if fields != nil {
		b, err := json.Marshal(fields)
		require.NoError(t, err)
		raw = b
	}
	res := &entity.ExtractionResult{
		DocumentID:       doc.ID,
		ExtractedFields:  raw,
		ConfidenceScore:  confidence,
		ProcessingStatus: constants.ExtractionCompleted,
	}
	require.NoError(t, f.results.Upsert(ctx, res))
	return doc, res
}

func TestGateAutoCreatesAtThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, res := f.seed(t, validFields(), constants.AutoCreateThreshold) // exactly 90.0

	outcome, err := f.gate.Process(ctx, doc, res)
	require.NoError(t, err)
	require.Equal(t, OutcomeAutoCreated, outcome)
	require.True(t, res.AutoCreatedInvoice)
	require.NotNil(t, res.InvoiceID)
	require.Equal(t, constants.ExtractionCompleted, res.ProcessingStatus)

	inv, err := f.invoices.GetByID(ctx, *res.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, "FV/2026/08/001", inv.Number)
	assert.Equal(t, doc.UserID, inv.UserID)
	assert.Equal(t, "PLN", inv.CurrencyCode)
	assert.Equal(t, "ocr_auto", inv.Source)
	assert.Equal(t, "2026-08-14", inv.IssueDate.Format("2006-01-02"))
	require.NotNil(t, inv.SaleDate)
	assert.Equal(t, "2026-08-10", inv.SaleDate.Format("2006-01-02"))
	require.NotNil(t, inv.TotalNet)
	assert.Equal(t, 1000.0, *inv.TotalNet)
	require.NotNil(t, inv.TotalGross)
	assert.Equal(t, 1230.0, *inv.TotalGross)

	// Seller resolved with normalized NIP.
	seller, err := f.contractors.GetByID(ctx, inv.SellerID)
	require.NoError(t, err)
	assert.Equal(t, "ACME Sp. z o.o.", seller.Name)
	assert.Equal(t, "1234567890", seller.NIP)

	var items []LineItem
	require.NoError(t, json.Unmarshal(inv.LineItems, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Usługa księgowa", items[0].Nazwa)

	// The link is persisted, not just in memory.
	stored, err := f.results.GetByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.InvoiceID)
	assert.Equal(t, *res.InvoiceID, *stored.InvoiceID)
	assert.True(t, stored.AutoCreatedInvoice)
}

func TestGateJustBelowThresholdGoesToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, res := f.seed(t, validFields(), 89.9)

	outcome, err := f.gate.Process(ctx, doc, res)
	require.NoError(t, err)
	require.Equal(t, OutcomeManualReview, outcome)
	require.Equal(t, constants.ExtractionManualReview, res.ProcessingStatus)
	require.False(t, res.AutoCreatedInvoice)
	require.Nil(t, res.InvoiceID)

	stored, err := f.results.GetByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.ExtractionManualReview, stored.ProcessingStatus)
}

func TestGateLowConfidenceStillReviewsNeverRejects(t *testing.T) {
	f := newFixture(t)
	doc, res := f.seed(t, validFields(), 42)

	outcome, err := f.gate.Process(context.Background(), doc, res)
	require.NoError(t, err)
	require.Equal(t, OutcomeManualReview, outcome)
}

func TestGateOutOfRangeConfidence(t *testing.T) {
	// Scores outside 0-100 are compared as-is.
	f := newFixture(t)
	doc, res := f.seed(t, validFields(), 150)
	outcome, err := f.gate.Process(context.Background(), doc, res)
	require.NoError(t, err)
	require.Equal(t, OutcomeAutoCreated, outcome)

	doc, res = f.seed(t, validFields(), -5)
	outcome, err = f.gate.Process(context.Background(), doc, res)
	require.NoError(t, err)
	require.Equal(t, OutcomeManualReview, outcome)
}

func TestGateMissingRequiredFieldsFail(t *testing.T) {
	required := []string{"numer_faktury", "data_wystawienia", "pozycje"}
	for _, field := range required {
		t.Run(field, func(t *testing.T) {
			f := newFixture(t)
			fields := validFields()
			delete(fields, field)
			doc, res := f.seed(t, fields, 99)

			outcome, err := f.gate.Process(context.Background(), doc, res)
			require.NoError(t, err)
			require.Equal(t, OutcomeFailed, outcome)
			require.Equal(t, constants.ExtractionFailed, res.ProcessingStatus)
			require.NotNil(t, res.ErrorMessage)
			assert.Contains(t, *res.ErrorMessage, field)
		})
	}
}

func TestGateMissingSellerNameFails(t *testing.T) {
	f := newFixture(t)
	fields := validFields()
	fields["sprzedawca"] = map[string]any{"nip": "1234567890"}
	doc, res := f.seed(t, fields, 99)

	outcome, err := f.gate.Process(context.Background(), doc, res)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)
	require.NotNil(t, res.ErrorMessage)
	assert.Contains(t, *res.ErrorMessage, "sprzedawca.nazwa")
}

func TestGateMalformedLineItemFails(t *testing.T) {
	f := newFixture(t)
	fields := validFields()
	fields["pozycje"] = []map[string]any{
		{"nazwa": "Usługa"},
		{"ilosc": 2.0}, // missing nazwa
	}
	doc, res := f.seed(t, fields, 99)

	outcome, err := f.gate.Process(context.Background(), doc, res)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)
	require.NotNil(t, res.ErrorMessage)
	assert.Contains(t, *res.ErrorMessage, "malformed line items")
	assert.Contains(t, *res.ErrorMessage, "position 2")
}

func TestGateEmptyFieldsFail(t *testing.T) {
	f := newFixture(t)
	doc, res := f.seed(t, nil, 99)

	outcome, err := f.gate.Process(context.Background(), doc, res)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)
}

func TestGateRecoverableIssuesForceReview(t *testing.T) {
	// Data is present but needs a human: high confidence must not bypass it.
	t.Run("unparseable issue date", func(t *testing.T) {
		f := newFixture(t)
		fields := validFields()
		fields["data_wystawienia"] = "sierpień 2026"
		doc, res := f.seed(t, fields, 99)

		outcome, err := f.gate.Process(context.Background(), doc, res)
		require.NoError(t, err)
		require.Equal(t, OutcomeManualReview, outcome)
		require.Equal(t, constants.ExtractionManualReview, res.ProcessingStatus)
	})

	t.Run("missing seller NIP", func(t *testing.T) {
		f := newFixture(t)
		fields := validFields()
		fields["sprzedawca"] = map[string]any{"nazwa": "ACME Sp. z o.o."}
		doc, res := f.seed(t, fields, 99)

		outcome, err := f.gate.Process(context.Background(), doc, res)
		require.NoError(t, err)
		require.Equal(t, OutcomeManualReview, outcome)
	})
}

func TestGateDedupesContractorAcrossDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	sellerIDs := make(map[uuid.UUID]bool)
	for i, nip := range []string{"123-456-78-90", "1234567890", "123 456 78 90"} {
		fields := validFields()
		fields["numer_faktury"] = fmt.Sprintf("FV/2026/08/%03d", i+1)
		fields["sprzedawca"].(map[string]any)["nip"] = nip

		doc := &entity.Document{UserID: userID, Filename: "faktura.pdf", StoragePath: "/tmp/faktura.pdf"}
		require.NoError(t, f.documents.Create(ctx, doc))
		b, err := json.Marshal(fields)
		require.NoError(t, err)
		res := &entity.ExtractionResult{
			DocumentID:       doc.ID,
			ExtractedFields:  b,
			ConfidenceScore:  95,
			ProcessingStatus: constants.ExtractionCompleted,
		}
		require.NoError(t, f.results.Upsert(ctx, res))

		outcome, err := f.gate.Process(ctx, doc, res)
		require.NoError(t, err)
		require.Equal(t, OutcomeAutoCreated, outcome)

		inv, err := f.invoices.GetByID(ctx, *res.InvoiceID)
		require.NoError(t, err)
		sellerIDs[inv.SellerID] = true
	}

	// All three NIP spellings resolve to one contractor.
	require.Len(t, sellerIDs, 1)
}

func TestParseDateLayouts(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"2026-08-14", true},
		{"14.08.2026", true},
		{"14-08-2026", true},
		{"2026/08/14", true},
		{" 2026-08-14 ", true},
		{"14 sierpnia 2026", false},
		{"", false},
	}
	for _, tt := range tests {
		_, ok := parseDate(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
	}
}

func TestNormalizeNIP(t *testing.T) {
	assert.Equal(t, "1234567890", normalizeNIP("123-456-78-90"))
	assert.Equal(t, "1234567890", normalizeNIP(" 123 456 78 90 "))
	assert.Equal(t, "1234567890", normalizeNIP("123.456.78.90"))
	assert.Equal(t, "", normalizeNIP("  "))
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "PLN", normalizeCurrency("pln"))
	assert.Equal(t, "EUR", normalizeCurrency(" eur "))
	assert.Equal(t, "PLN", normalizeCurrency(""))
	assert.Equal(t, "PLN", normalizeCurrency("zloty"))
}
