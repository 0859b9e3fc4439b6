package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/institutions/models"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

// PostgresStore persists institution shadow records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed institution store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert inserts or replaces the record for its address.
func (s *PostgresStore) Upsert(ctx context.Context, record *models.InstitutionRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	query := `
		INSERT INTO institutions (
			address, name, website, email, document_hash, status,
			register_tx_hash, verify_tx_hash, registered_at, verified_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			website = EXCLUDED.website,
			email = EXCLUDED.email,
			document_hash = EXCLUDED.document_hash,
			status = EXCLUDED.status,
			register_tx_hash = EXCLUDED.register_tx_hash,
			verify_tx_hash = EXCLUDED.verify_tx_hash,
			registered_at = EXCLUDED.registered_at,
			verified_at = EXCLUDED.verified_at,
			updated_at = now()
	`
	_, err := s.db.ExecContext(ctx, query,
		record.Address.Hex(),
		record.Name,
		record.Website,
		record.Email,
		record.DocumentHash,
		string(record.Status),
		record.RegisterTxHash.Hex(),
		record.VerifyTxHash.Hex(),
		record.RegisteredAt,
		record.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert institution %s: %w", record.Address.Hex(), err)
	}
	return nil
}

const institutionColumns = `
	address, name, website, email, document_hash, status,
	register_tx_hash, verify_tx_hash, registered_at, verified_at,
	created_at, updated_at
`

func (s *PostgresStore) FindByAddress(ctx context.Context, addr common.Address) (*models.InstitutionRecord, error) {
	query := `SELECT ` + institutionColumns + ` FROM institutions WHERE address = $1`
	record, err := scanInstitution(s.db.QueryRowContext(ctx, query, addr.Hex()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find institution by address: %w", err)
	}
	return record, nil
}

// UpdateStatus moves the record to the given status and stamps the matching
// timestamp column.
func (s *PostgresStore) UpdateStatus(ctx context.Context, addr common.Address, status models.Status, at time.Time) error {
	var query string
	switch status {
	case models.StatusRegistered:
		query = `UPDATE institutions SET status = $2, registered_at = $3, updated_at = now() WHERE address = $1`
	case models.StatusVerified:
		query = `UPDATE institutions SET status = $2, verified_at = $3, updated_at = now() WHERE address = $1`
	default:
		query = `UPDATE institutions SET status = $2, updated_at = now() WHERE address = $1`
	}

	var (
		result sql.Result
		err    error
	)
	if status == models.StatusRegistered || status == models.StatusVerified {
		result, err = s.db.ExecContext(ctx, query, addr.Hex(), string(status), at)
	} else {
		result, err = s.db.ExecContext(ctx, query, addr.Hex(), string(status))
	}
	if err != nil {
		return fmt.Errorf("update institution %s status: %w", addr.Hex(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update institution %s status: %w", addr.Hex(), err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ListByStatus returns all records in the given status, ordered by address.
func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.InstitutionRecord, error) {
	query := `SELECT ` + institutionColumns + ` FROM institutions WHERE status = $1 ORDER BY address`
	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list institutions by status: %w", err)
	}
	defer rows.Close()

	var out []*models.InstitutionRecord
	for rows.Next() {
		record, err := scanInstitution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan institution: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate institutions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstitution(row rowScanner) (*models.InstitutionRecord, error) {
	var (
		record                       models.InstitutionRecord
		address, status              string
		registerTxHash, verifyTxHash string
		registeredAt, verifiedAt     sql.NullTime
	)
	err := row.Scan(
		&address,
		&record.Name,
		&record.Website,
		&record.Email,
		&record.DocumentHash,
		&status,
		&registerTxHash,
		&verifyTxHash,
		&registeredAt,
		&verifiedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Address = common.HexToAddress(address)
	record.Status = models.Status(status)
	record.RegisterTxHash = common.HexToHash(registerTxHash)
	record.VerifyTxHash = common.HexToHash(verifyTxHash)
	if registeredAt.Valid {
		t := registeredAt.Time
		record.RegisteredAt = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		record.VerifiedAt = &t
	}
	return &record, nil
}
