package statussync

import "github.com/faktulove/ocrsync/constants"

// Entry is one row of the combined-status table: the user-facing status
// derived from a (document status, extraction status) pair.
type Entry struct {
	Status      string
	DisplayText string
	Description string
	Progress    int
	CanRetry    bool
	IsFinal     bool
}

// Combined status keys. "failed" is final but "ocr_completed" and
// "manual_review" are not: the pipeline still has a materialization or
// human step ahead of it.
const (
	StatusUploaded     = "uploaded"
	StatusQueued       = "queued"
	StatusProcessing   = "processing"
	StatusOCRCompleted = "ocr_completed"
	StatusManualReview = "manual_review"
	StatusFailed       = "failed"
	StatusCancelled    = "cancelled"
	StatusCompleted    = "completed" // invoice materialized, terminal
	StatusUnknown      = "unknown"
	StatusError        = "error"
)

type pairKey struct {
	doc constants.DocumentStatus
	ext constants.ExtractionStatus // "" when no extraction result exists
}

// pairTable is the fixed combined-status table. Reproduced exactly; tests
// assert every reachable pair resolves here, never through the fallbacks.
var pairTable = map[pairKey]Entry{
	{constants.DocumentUploaded, ""}: {
		Status:      StatusUploaded,
		DisplayText: "Przesłano",
		Description: "Dokument został przesłany i oczekuje na przetwarzanie",
		Progress:    10,
	},
	{constants.DocumentQueued, ""}: {
		Status:      StatusQueued,
		DisplayText: "W kolejce",
		Description: "Dokument oczekuje w kolejce na przetwarzanie OCR",
		Progress:    15,
	},
	{constants.DocumentProcessing, constants.ExtractionPending}: {
		Status:      StatusQueued,
		DisplayText: "W kolejce",
		Description: "Dokument oczekuje na rozpoznanie tekstu",
		Progress:    20,
	},
	{constants.DocumentProcessing, constants.ExtractionProcessing}: {
		Status:      StatusProcessing,
		DisplayText: "Przetwarzanie",
		Description: "Trwa rozpoznawanie tekstu dokumentu",
		Progress:    50,
	},
	{constants.DocumentCompleted, constants.ExtractionCompleted}: {
		Status:      StatusOCRCompleted,
		DisplayText: "OCR zakończone",
		Description: "Dane zostały wyodrębnione i oczekują na utworzenie faktury",
		Progress:    80,
	},
	{constants.DocumentCompleted, constants.ExtractionManualReview}: {
		Status:      StatusManualReview,
		DisplayText: "Wymaga weryfikacji",
		Description: "Dokument wymaga ręcznej weryfikacji wyodrębnionych danych",
		Progress:    90,
	},
	{constants.DocumentFailed, constants.ExtractionFailed}: {
		Status:      StatusFailed,
		DisplayText: "Błąd przetwarzania",
		Description: "Przetwarzanie dokumentu nie powiodło się",
		Progress:    0,
		CanRetry:    true,
		IsFinal:     true,
	},
	{constants.DocumentCancelled, ""}: {
		Status:      StatusCancelled,
		DisplayText: "Anulowano",
		Description: "Przetwarzanie dokumentu zostało anulowane",
		Progress:    0,
		IsFinal:     true,
	},
}

// docTable is the fallback keyed by document status alone, for pairs the
// fixed table does not know (e.g. a stale extraction status).
var docTable = map[constants.DocumentStatus]Entry{
	constants.DocumentUploaded:   pairTable[pairKey{constants.DocumentUploaded, ""}],
	constants.DocumentQueued:     pairTable[pairKey{constants.DocumentQueued, ""}],
	constants.DocumentProcessing: pairTable[pairKey{constants.DocumentProcessing, constants.ExtractionProcessing}],
	constants.DocumentCompleted:  pairTable[pairKey{constants.DocumentCompleted, constants.ExtractionCompleted}],
	constants.DocumentFailed:     pairTable[pairKey{constants.DocumentFailed, constants.ExtractionFailed}],
	constants.DocumentCancelled:  pairTable[pairKey{constants.DocumentCancelled, ""}],
}

// invoiceCreatedEntry is the materialization pipeline's own terminal
// marker, distinct from ocr_completed: extraction completed and an invoice
// is linked.
var invoiceCreatedEntry = Entry{
	Status:      StatusCompleted,
	DisplayText: "Faktura utworzona",
	Description: "Faktura została automatycznie utworzona z danych OCR",
	Progress:    100,
	IsFinal:     true,
}

var unknownEntry = Entry{
	Status:      StatusUnknown,
	DisplayText: "Status nieznany",
	Description: "Nie można ustalić statusu dokumentu",
	Progress:    0,
}

var errorEntry = Entry{
	Status:      StatusError,
	DisplayText: "Błąd statusu",
	Description: "Wystąpił błąd podczas odczytu statusu dokumentu",
	Progress:    0,
	CanRetry:    true,
}

// pollingIntervals maps combined status to the recommended client poll
// interval in milliseconds. 0 means stop polling.
var pollingIntervals = map[string]int{
	StatusUploaded:     2000,
	StatusQueued:       3000,
	StatusProcessing:   1000,
	StatusOCRCompleted: 5000,
	StatusManualReview: 10000,
	StatusFailed:       30000,
	StatusCancelled:    0,
	StatusCompleted:    0,
	StatusUnknown:      5000,
	StatusError:        5000,
}

// PollingInterval returns the recommended next-poll interval for a combined
// status, in milliseconds. Unlisted statuses poll at a relaxed 5s.
func PollingInterval(status string) int {
	if ms, ok := pollingIntervals[status]; ok {
		return ms
	}
	return 5000
}
