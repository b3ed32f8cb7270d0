package statussync

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faktulove/ocrsync/constants"
	"github.com/faktulove/ocrsync/internal/common"
	"github.com/faktulove/ocrsync/internal/entity"
	"github.com/faktulove/ocrsync/internal/repository"
)

type fixture struct {
	store     *repository.Store
	documents repository.DocumentRepository
	results   repository.ExtractionResultRepository
	service   *Service
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	store, err := repository.Open(context.Background(), common.DatabaseConfig{DSN: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(context.Background()))

	documents := repository.NewDocumentRepository(store, logger)
	results := repository.NewExtractionResultRepository(store, logger)
	return &fixture{
		store:     store,
		documents: documents,
		results:   results,
		service:   NewService(documents, results, logger),
	}
}

func (f *fixture) createDocument(t *testing.T) *entity.Document {
	t.Helper()
	doc := &entity.Document{UserID: uuid.New(), Filename: "faktura.pdf", StoragePath: "/tmp/faktura.pdf"}
	require.NoError(t, f.documents.Create(context.Background(), doc))
	return doc
}

func (f *fixture) putResult(t *testing.T, docID uuid.UUID, status constants.ExtractionStatus, confidence float64) *entity.ExtractionResult {
	t.Helper()
	res := &entity.ExtractionResult{
		DocumentID:       docID,
		ProcessingStatus: status,
		ConfidenceScore:  confidence,
	}
	require.NoError(t, f.results.Upsert(context.Background(), res))
	return res
}

func TestSyncWithoutResultIsNoop(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t)

	changed, err := f.service.SyncDocumentStatus(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, constants.DocumentUploaded, doc.ProcessingStatus)
}

func TestSyncAppliesMappingOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	f.putResult(t, doc.ID, constants.ExtractionCompleted, 95)

	changed, err := f.service.SyncDocumentStatus(ctx, doc)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, constants.DocumentCompleted, doc.ProcessingStatus)
	require.NotNil(t, doc.ProcessingCompletedAt)

	// Second call converges without touching anything.
	changed, err = f.service.SyncDocumentStatus(ctx, doc)
	require.NoError(t, err)
	require.False(t, changed)

	persisted, err := f.documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocumentCompleted, persisted.ProcessingStatus)
}

func TestSyncMappingTable(t *testing.T) {
	tests := []struct {
		ext  constants.ExtractionStatus
		want constants.DocumentStatus
	}{
		{constants.ExtractionPending, constants.DocumentProcessing},
		{constants.ExtractionProcessing, constants.DocumentProcessing},
		{constants.ExtractionCompleted, constants.DocumentCompleted},
		{constants.ExtractionManualReview, constants.DocumentCompleted},
		{constants.ExtractionFailed, constants.DocumentFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.ext), func(t *testing.T) {
			f := newFixture(t)
			doc := f.createDocument(t)
			f.putResult(t, doc.ID, tt.ext, 80)

			changed, err := f.service.SyncDocumentStatus(context.Background(), doc)
			require.NoError(t, err)
			require.True(t, changed)
			require.Equal(t, tt.want, doc.ProcessingStatus)
		})
	}
}

func TestSyncUnknownExtractionStatusSkips(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t)
	f.putResult(t, doc.ID, constants.ExtractionStatus("retrying"), 0)

	changed, err := f.service.SyncDocumentStatus(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, constants.DocumentUploaded, doc.ProcessingStatus)
}

func TestSyncPropagatesFailureMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	msg := "tesseract crashed"
	res := &entity.ExtractionResult{
		DocumentID:       doc.ID,
		ProcessingStatus: constants.ExtractionFailed,
		ErrorMessage:     &msg,
	}
	require.NoError(t, f.results.Upsert(ctx, res))

	changed, err := f.service.SyncDocumentStatus(ctx, doc)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, constants.DocumentFailed, doc.ProcessingStatus)
	require.NotNil(t, doc.ErrorMessage)
	require.Equal(t, msg, *doc.ErrorMessage)
}

func TestSyncTimestampsSurviveOscillation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	f.putResult(t, doc.ID, constants.ExtractionProcessing, 0)
	_, err := f.service.SyncDocumentStatus(ctx, doc)
	require.NoError(t, err)
	require.NotNil(t, doc.ProcessingStartedAt)
	started := *doc.ProcessingStartedAt

	f.putResult(t, doc.ID, constants.ExtractionCompleted, 91)
	_, err = f.service.SyncDocumentStatus(ctx, doc)
	require.NoError(t, err)
	require.NotNil(t, doc.ProcessingCompletedAt)
	completed := *doc.ProcessingCompletedAt

	// Worker re-reports processing; status follows but timestamps hold.
	f.putResult(t, doc.ID, constants.ExtractionProcessing, 0)
	changed, err := f.service.SyncDocumentStatus(ctx, doc)
	require.NoError(t, err)
	require.True(t, changed)

	persisted, err := f.documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocumentProcessing, persisted.ProcessingStatus)
	require.NotNil(t, persisted.ProcessingStartedAt)
	assert.WithinDuration(t, started, *persisted.ProcessingStartedAt, time.Second)
	require.NotNil(t, persisted.ProcessingCompletedAt)
	assert.WithinDuration(t, completed, *persisted.ProcessingCompletedAt, time.Second)
}

func TestSyncWrapsPersistenceErrors(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t)
	f.putResult(t, doc.ID, constants.ExtractionCompleted, 95)

	// Closing the store makes every query fail.
	f.store.Close()

	_, err := f.service.SyncDocumentStatus(context.Background(), doc)
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrSync)
}

func TestGetCombinedStatusTable(t *testing.T) {
	tests := []struct {
		name         string
		docStatus    constants.DocumentStatus
		extStatus    constants.ExtractionStatus // "" means no result row
		wantStatus   string
		wantProgress int
		wantFinal    bool
		wantRetry    bool
	}{
		{"uploaded no result", constants.DocumentUploaded, "", StatusUploaded, 10, false, false},
		{"queued no result", constants.DocumentQueued, "", StatusQueued, 15, false, false},
		{"processing pending", constants.DocumentProcessing, constants.ExtractionPending, StatusQueued, 20, false, false},
		{"processing processing", constants.DocumentProcessing, constants.ExtractionProcessing, StatusProcessing, 50, false, false},
		{"completed completed", constants.DocumentCompleted, constants.ExtractionCompleted, StatusOCRCompleted, 80, false, false},
		{"completed manual review", constants.DocumentCompleted, constants.ExtractionManualReview, StatusManualReview, 90, false, false},
		{"failed failed", constants.DocumentFailed, constants.ExtractionFailed, StatusFailed, 0, true, true},
		{"cancelled no result", constants.DocumentCancelled, "", StatusCancelled, 0, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			doc := f.createDocument(t)
			if tt.extStatus != "" {
				f.putResult(t, doc.ID, tt.extStatus, 85)
			}
			_, err := f.documents.ApplyStatus(ctx, doc.ID, repository.StatusUpdate{Target: tt.docStatus})
			require.NoError(t, err)
			doc.ProcessingStatus = tt.docStatus

			c := f.service.GetCombinedStatus(ctx, doc)
			assert.Equal(t, tt.wantStatus, c.Status)
			assert.Equal(t, tt.wantProgress, c.Progress)
			assert.Equal(t, tt.wantFinal, c.IsFinal)
			assert.Equal(t, tt.wantRetry, c.CanRetry)
			assert.NotEmpty(t, c.DisplayText)
			assert.NotEmpty(t, c.Description)
			assert.Equal(t, tt.extStatus != "", c.HasExtractionResult)
		})
	}
}

func TestCombinedFinalityAsymmetry(t *testing.T) {
	// A completed document is terminal for its own state machine, but the
	// combined statuses derived from it stay live until an invoice exists.
	f := newFixture(t)
	ctx := context.Background()

	doc := f.createDocument(t)
	f.putResult(t, doc.ID, constants.ExtractionCompleted, 95)
	_, err := f.service.SyncDocumentStatus(ctx, doc)
	require.NoError(t, err)

	require.True(t, doc.ProcessingStatus.IsTerminal())
	c := f.service.GetCombinedStatus(ctx, doc)
	require.Equal(t, StatusOCRCompleted, c.Status)
	require.False(t, c.IsFinal)
}

func TestCombinedInvoiceCreatedWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	res := f.putResult(t, doc.ID, constants.ExtractionCompleted, 96)

	invoiceID := uuid.New()
	require.NoError(t, f.store.InTx(ctx, func(tx *sql.Tx) error {
		return f.results.LinkInvoice(ctx, tx, res.ID, invoiceID)
	}))
	_, err := f.service.SyncDocumentStatus(ctx, doc)
	require.NoError(t, err)

	c := f.service.GetCombinedStatus(ctx, doc)
	require.Equal(t, StatusCompleted, c.Status)
	require.Equal(t, "Faktura utworzona", c.DisplayText)
	require.Equal(t, 100, c.Progress)
	require.True(t, c.IsFinal)
	require.NotNil(t, c.ExtractionInfo)
	require.True(t, c.HasInvoice)
	require.True(t, c.AutoCreatedInvoice)
	require.NotNil(t, c.InvoiceID)
	require.Equal(t, invoiceID, *c.InvoiceID)
}

func TestCombinedCancellationWins(t *testing.T) {
	// Cancellation mid-processing beats whatever the extraction says.
	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	f.putResult(t, doc.ID, constants.ExtractionProcessing, 0)

	_, err := f.documents.ApplyStatus(ctx, doc.ID, repository.StatusUpdate{Target: constants.DocumentCancelled})
	require.NoError(t, err)
	doc.ProcessingStatus = constants.DocumentCancelled

	c := f.service.GetCombinedStatus(ctx, doc)
	require.Equal(t, StatusCancelled, c.Status)
	require.True(t, c.IsFinal)
}

func TestCombinedFallsBackToDocumentStatus(t *testing.T) {
	// (completed, pending) is not in the pair table; the document status
	// alone decides.
	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	f.putResult(t, doc.ID, constants.ExtractionPending, 0)
	doc.ProcessingStatus = constants.DocumentCompleted

	c := f.service.GetCombinedStatus(ctx, doc)
	require.Equal(t, StatusOCRCompleted, c.Status)
}

func TestCombinedUnknownForUnmappedDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t)
	doc.ProcessingStatus = constants.DocumentStatus("archived")

	c := f.service.GetCombinedStatus(context.Background(), doc)
	require.Equal(t, StatusUnknown, c.Status)
	require.False(t, c.IsFinal)
}

type failingResults struct {
	repository.ExtractionResultRepository
	failFor uuid.UUID
}

func (f *failingResults) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionResult, error) {
	if documentID == f.failFor {
		return nil, errors.New("connection reset")
	}
	return f.ExtractionResultRepository.GetByDocumentID(ctx, documentID)
}

func TestCombinedDegradesOnLookupFailure(t *testing.T) {
	f := newFixture(t)
	doc := f.createDocument(t)

	svc := NewService(f.documents, &failingResults{ExtractionResultRepository: f.results, failFor: doc.ID}, testLogger())
	c := svc.GetCombinedStatus(context.Background(), doc)

	require.Equal(t, StatusError, c.Status)
	require.True(t, c.CanRetry)
	require.NotNil(t, c.ErrorMessage)
	require.Contains(t, *c.ErrorMessage, "connection reset")
}

func TestStatusDisplayData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.createDocument(t)
	f.putResult(t, doc.ID, constants.ExtractionProcessing, 0)
	doc.ProcessingStatus = constants.DocumentProcessing

	d := f.service.GetStatusDisplayData(ctx, doc)
	assert.Equal(t, "status-processing", d.StatusClass)
	assert.Equal(t, "warning", d.ProgressClass)
	assert.Equal(t, "fa-spinner", d.Icon)
	assert.True(t, d.ShowSpinner)
	assert.False(t, d.ShowRetryButton)
	assert.True(t, d.ShowProgressBar)

	f.putResult(t, doc.ID, constants.ExtractionFailed, 0)
	doc.ProcessingStatus = constants.DocumentFailed

	d = f.service.GetStatusDisplayData(ctx, doc)
	assert.Equal(t, "status-failed", d.StatusClass)
	assert.Equal(t, "danger", d.ProgressClass)
	assert.False(t, d.ShowSpinner)
	assert.True(t, d.ShowRetryButton)
	assert.False(t, d.ShowProgressBar)
}

func TestProgressClassBuckets(t *testing.T) {
	tests := []struct {
		progress int
		want     string
	}{
		{0, "danger"},
		{10, "info"},
		{49, "info"},
		{50, "warning"},
		{79, "warning"},
		{80, "success"},
		{100, "success"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, progressClass(tt.progress), "progress %d", tt.progress)
	}
}

func TestPollingIntervals(t *testing.T) {
	tests := []struct {
		status string
		want   int
	}{
		{StatusUploaded, 2000},
		{StatusQueued, 3000},
		{StatusProcessing, 1000},
		{StatusOCRCompleted, 5000},
		{StatusManualReview, 10000},
		{StatusFailed, 30000},
		{StatusCancelled, 0},
		{StatusCompleted, 0},
		{StatusUnknown, 5000},
		{StatusError, 5000},
		{"something-new", 5000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PollingInterval(tt.status), "status %q", tt.status)
	}
}

func TestBulkSyncIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var docs []*entity.Document
	for i := 0; i < 3; i++ {
		doc := f.createDocument(t)
		f.putResult(t, doc.ID, constants.ExtractionCompleted, 95)
		docs = append(docs, doc)
	}
	unchanged := f.createDocument(t) // no result, stays skipped
	docs = append(docs, unchanged)

	svc := NewService(f.documents, &failingResults{ExtractionResultRepository: f.results, failFor: docs[1].ID}, testLogger())
	stats := svc.BulkSyncDocuments(ctx, docs)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Updated)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)

	// The failing document must not block its neighbours.
	require.Equal(t, constants.DocumentCompleted, docs[0].ProcessingStatus)
	require.Equal(t, constants.DocumentCompleted, docs[2].ProcessingStatus)
	require.Equal(t, constants.DocumentUploaded, docs[1].ProcessingStatus)
}
