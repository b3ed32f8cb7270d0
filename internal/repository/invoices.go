package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/internal/entity"
)

type InvoiceRepository interface {
	// CreateTx inserts the invoice inside the caller's transaction, so the
	// insert and the extraction-result link commit together.
	CreateTx(ctx context.Context, tx *sql.Tx, inv *entity.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)
	// ListForUser returns the user's invoices, optionally bounded by issue
	// date (inclusive).
	ListForUser(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]*entity.Invoice, error)
}

type invoiceRepo struct {
	store *Store
	log   *slog.Logger
}

func NewInvoiceRepository(store *Store, log *slog.Logger) InvoiceRepository {
	return &invoiceRepo{store: store, log: log}
}

const invoiceColumns = `id, user_id, number, issue_date, sale_date, seller_id,
	line_items, total_net, total_gross, currency_code, source, created_at`

func (r *invoiceRepo) CreateTx(ctx context.Context, tx *sql.Tx, inv *entity.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.CurrencyCode == "" {
		inv.CurrencyCode = "PLN"
	}
	_, err := tx.ExecContext(ctx, r.store.q(
		`INSERT INTO invoices
		   (id, user_id, number, issue_date, sale_date, seller_id, line_items,
		    total_net, total_gross, currency_code, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		inv.ID, inv.UserID, inv.Number, inv.IssueDate, inv.SaleDate, inv.SellerID,
		[]byte(inv.LineItems), inv.TotalNet, inv.TotalGross, inv.CurrencyCode,
		inv.Source, inv.CreatedAt)
	if err != nil {
		r.log.Error("invoice insert failed", "user_id", inv.UserID, "number", inv.Number, "err", err)
		return err
	}
	r.log.Info("invoice created", "invoice_id", inv.ID, "number", inv.Number, "source", inv.Source)
	return nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	row := r.store.DB.QueryRowContext(ctx, r.store.q(
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`), id)
	return scanInvoice(row)
}

func (r *invoiceRepo) ListForUser(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = ?`
	args := []any{userID}
	if from != nil {
		query += ` AND issue_date >= ?`
		args = append(args, *from)
	}
	if to != nil {
		query += ` AND issue_date <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY issue_date, number`

	rows, err := r.store.DB.QueryContext(ctx, r.store.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var (
		inv      entity.Invoice
		saleDate sql.NullTime
		items    []byte
		net      sql.NullFloat64
		gross    sql.NullFloat64
	)
	err := row.Scan(&inv.ID, &inv.UserID, &inv.Number, &inv.IssueDate, &saleDate,
		&inv.SellerID, &items, &net, &gross, &inv.CurrencyCode, &inv.Source, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if saleDate.Valid {
		inv.SaleDate = &saleDate.Time
	}
	inv.LineItems = items
	if net.Valid {
		inv.TotalNet = &net.Float64
	}
	if gross.Valid {
		inv.TotalGross = &gross.Float64
	}
	return &inv, nil
}
