package repository

import "context"

// Schema statements are written in the dialect intersection of postgres and
// sqlite: TEXT ids (uuid strings), TIMESTAMP columns, REAL numerics.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		uploaded_at TIMESTAMP NOT NULL,
		processing_status TEXT NOT NULL DEFAULT 'uploaded',
		processing_started_at TIMESTAMP,
		processing_completed_at TIMESTAMP,
		error_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id, uploaded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (processing_status)`,

	`CREATE TABLE IF NOT EXISTS extraction_results (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL UNIQUE REFERENCES documents (id),
		raw_text TEXT,
		extracted_fields TEXT,
		confidence_score REAL NOT NULL DEFAULT 0,
		processing_time REAL,
		processing_status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		invoice_id TEXT,
		auto_created_invoice BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS contractors (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		nip TEXT NOT NULL,
		street TEXT,
		city TEXT,
		postal_code TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_contractors_user_nip ON contractors (user_id, nip)`,

	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		number TEXT NOT NULL,
		issue_date TIMESTAMP NOT NULL,
		sale_date TIMESTAMP,
		seller_id TEXT NOT NULL REFERENCES contractors (id),
		line_items TEXT NOT NULL,
		total_net REAL,
		total_gross REAL,
		currency_code TEXT NOT NULL DEFAULT 'PLN',
		source TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_user ON invoices (user_id, issue_date)`,
}

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("migration statement failed", "error", err)
			return err
		}
	}
	s.logger.Info("schema migrated")
	return nil
}
