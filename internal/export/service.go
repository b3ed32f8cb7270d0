package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/faktulove/ocrsync/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for
// invoice register exports.
type Service struct {
	invoices    repository.InvoiceRepository
	contractors repository.ContractorRepository
	logger      *slog.Logger
}

func NewService(invoices repository.InvoiceRepository, contractors repository.ContractorRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, contractors: contractors, logger: logger}
}

// ExportInvoicesXLSX returns an XLSX workbook (as bytes) for the given user
// and issue-date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all invoices for the user.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC)
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}

	invoices, err := s.invoices.ListForUser(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Faktury"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Numer faktury",
		"Data wystawienia",
		"Data sprzedaży",
		"Sprzedawca",
		"NIP",
		"Netto",
		"Brutto",
		"Waluta",
		"Źródło",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, inv := range invoices {
		sellerName, sellerNIP := "", ""
		if seller, err := s.contractors.GetByID(ctx, inv.SellerID); err == nil && seller != nil {
			sellerName, sellerNIP = seller.Name, seller.NIP
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, inv.Number)
		write(2, inv.IssueDate.Format("2006-01-02"))
		if inv.SaleDate != nil {
			write(3, inv.SaleDate.Format("2006-01-02"))
		} else {
			write(3, "")
		}
		write(4, sellerName)
		write(5, sellerNIP)
		if inv.TotalNet != nil {
			write(6, *inv.TotalNet)
		}
		if inv.TotalGross != nil {
			write(7, *inv.TotalGross)
		}
		write(8, inv.CurrencyCode)
		write(9, inv.Source)
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("invoices exported",
		"user_id", userID, "count", len(invoices), "took", time.Since(start))
	return buf.Bytes(), nil
}
