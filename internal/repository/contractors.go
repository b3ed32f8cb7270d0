package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faktulove/ocrsync/internal/entity"
)

type ContractorRepository interface {
	// GetOrCreate resolves a contractor by (user, NIP), creating it when
	// absent. A concurrent create of the same pair is absorbed by the
	// unique index, never surfaced as an error.
	GetOrCreate(ctx context.Context, c *entity.Contractor) (*entity.Contractor, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Contractor, error)
}

type contractorRepo struct {
	store *Store
	log   *slog.Logger
}

func NewContractorRepository(store *Store, log *slog.Logger) ContractorRepository {
	return &contractorRepo{store: store, log: log}
}

const contractorColumns = `id, user_id, name, nip, street, city, postal_code, created_at`

func (r *contractorRepo) GetOrCreate(ctx context.Context, c *entity.Contractor) (*entity.Contractor, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.store.DB.ExecContext(ctx, r.store.q(
		`INSERT INTO contractors (id, user_id, name, nip, street, city, postal_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, nip) DO NOTHING`),
		c.ID, c.UserID, c.Name, c.NIP, c.Street, c.City, c.PostalCode, c.CreatedAt)
	if err != nil {
		r.log.Error("contractor insert failed", "user_id", c.UserID, "nip", c.NIP, "err", err)
		return nil, err
	}

	row := r.store.DB.QueryRowContext(ctx, r.store.q(
		`SELECT `+contractorColumns+` FROM contractors WHERE user_id = ? AND nip = ?`),
		c.UserID, c.NIP)
	existing, err := scanContractor(row)
	if err != nil {
		return nil, err
	}
	if existing.ID != c.ID {
		r.log.Debug("contractor reused", "contractor_id", existing.ID, "nip", existing.NIP)
	} else {
		r.log.Info("contractor created", "contractor_id", existing.ID, "nip", existing.NIP)
	}
	return existing, nil
}

func (r *contractorRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Contractor, error) {
	row := r.store.DB.QueryRowContext(ctx, r.store.q(
		`SELECT `+contractorColumns+` FROM contractors WHERE id = ?`), id)
	return scanContractor(row)
}

func scanContractor(row rowScanner) (*entity.Contractor, error) {
	var (
		c      entity.Contractor
		street sql.NullString
		city   sql.NullString
		postal sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.NIP, &street, &city, &postal, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if street.Valid {
		c.Street = &street.String
	}
	if city.Valid {
		c.City = &city.String
	}
	if postal.Valid {
		c.PostalCode = &postal.String
	}
	return &c, nil
}
