package constants

// DocumentStatus is the canonical status for rows in documents.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocumentUploaded   DocumentStatus = "uploaded"   // just received, no OCR yet
	DocumentQueued     DocumentStatus = "queued"     // waiting for the OCR worker
	DocumentProcessing DocumentStatus = "processing" // OCR in progress
	DocumentCompleted  DocumentStatus = "completed"  // terminal for the document itself
	DocumentFailed     DocumentStatus = "failed"     // terminal failure
	DocumentCancelled  DocumentStatus = "cancelled"  // terminal, set by external cancellation
)

// ExtractionStatus is the canonical status for rows in extraction_results.
// The upstream OCR worker drives pending/processing/completed/failed; the
// materialization gate drives completed/manual_review/failed.
type ExtractionStatus string

const (
	ExtractionPending      ExtractionStatus = "pending"
	ExtractionProcessing   ExtractionStatus = "processing"
	ExtractionCompleted    ExtractionStatus = "completed"
	ExtractionFailed       ExtractionStatus = "failed"
	ExtractionManualReview ExtractionStatus = "manual_review"
)

// IsTerminal reports whether the document status is terminal for the
// document's own state machine. Note that a completed document does not
// imply the combined status is final.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentCompleted || s == DocumentFailed || s == DocumentCancelled
}

// DocumentStatusFor maps an extraction status onto the document status it
// implies. The second return is false for values outside the known enum;
// callers must treat that as "no change", never as an error.
//
// manual_review maps to completed: the automated pipeline is done with the
// document, a human finishes the rest.
func DocumentStatusFor(s ExtractionStatus) (DocumentStatus, bool) {
	switch s {
	case ExtractionPending, ExtractionProcessing:
		return DocumentProcessing, true
	case ExtractionCompleted, ExtractionManualReview:
		return DocumentCompleted, true
	case ExtractionFailed:
		return DocumentFailed, true
	default:
		return "", false
	}
}
