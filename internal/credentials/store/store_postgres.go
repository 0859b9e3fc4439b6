package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atmajo/credora-server/internal/credentials/models"
	"github.com/Atmajo/credora-server/internal/ledger"
	"github.com/Atmajo/credora-server/internal/sentinel"
)

// PostgresStore persists credential shadow records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// UpsertCredential inserts or replaces the record for its token id.
func (s *PostgresStore) UpsertCredential(ctx context.Context, record *models.CredentialRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	query := `
		INSERT INTO credentials (
			token_id, issuer, recipient, credential_type, institution_name,
			issued_at, expires_at, metadata_ref, token_uri, tx_hash,
			block_number, revoked, revoked_at, verification_count,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		ON CONFLICT (token_id) DO UPDATE SET
			issuer = EXCLUDED.issuer,
			recipient = EXCLUDED.recipient,
			credential_type = EXCLUDED.credential_type,
			institution_name = EXCLUDED.institution_name,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			metadata_ref = EXCLUDED.metadata_ref,
			token_uri = EXCLUDED.token_uri,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			revoked = EXCLUDED.revoked,
			revoked_at = EXCLUDED.revoked_at,
			verification_count = EXCLUDED.verification_count,
			updated_at = now()
	`
	_, err := s.db.ExecContext(ctx, query,
		int64(record.TokenID),
		record.Issuer.Hex(),
		record.Recipient.Hex(),
		string(record.Type),
		record.InstitutionName,
		record.IssuedAt,
		record.ExpiresAt,
		record.MetadataRef,
		record.TokenURI,
		record.TxHash.Hex(),
		int64(record.BlockNumber),
		record.Revoked,
		record.RevokedAt,
		int64(record.VerificationCount),
	)
	if err != nil {
		return fmt.Errorf("upsert credential %d: %w", record.TokenID, err)
	}
	return nil
}

const credentialColumns = `
	token_id, issuer, recipient, credential_type, institution_name,
	issued_at, expires_at, metadata_ref, token_uri, tx_hash,
	block_number, revoked, revoked_at, verification_count,
	created_at, updated_at
`

func (s *PostgresStore) FindByTokenID(ctx context.Context, tokenID uint64) (*models.CredentialRecord, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE token_id = $1`
	record, err := scanCredential(s.db.QueryRowContext(ctx, query, int64(tokenID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by token id: %w", err)
	}
	return record, nil
}

// FindByRecipient returns all records minted to addr, ordered by token id.
func (s *PostgresStore) FindByRecipient(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error) {
	return s.findByAddress(ctx, "recipient", addr)
}

// FindByIssuer returns all records minted by addr, ordered by token id.
func (s *PostgresStore) FindByIssuer(ctx context.Context, addr common.Address) ([]*models.CredentialRecord, error) {
	return s.findByAddress(ctx, "issuer", addr)
}

func (s *PostgresStore) findByAddress(ctx context.Context, column string, addr common.Address) ([]*models.CredentialRecord, error) {
	// column is one of two compile-time constants, never user input.
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE ` + column + ` = $1 ORDER BY token_id`
	rows, err := s.db.QueryContext(ctx, query, addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("find credentials by %s: %w", column, err)
	}
	defer rows.Close()

	var out []*models.CredentialRecord
	for rows.Next() {
		record, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

// MarkRevoked flips the record to revoked. Idempotent: a second call leaves
// the original revocation time in place.
func (s *PostgresStore) MarkRevoked(ctx context.Context, tokenID uint64, at time.Time) error {
	query := `
		UPDATE credentials
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2), updated_at = now()
		WHERE token_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, int64(tokenID), at)
	if err != nil {
		return fmt.Errorf("mark credential %d revoked: %w", tokenID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark credential %d revoked: %w", tokenID, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementVerificationCount(ctx context.Context, tokenID uint64) error {
	query := `
		UPDATE credentials
		SET verification_count = verification_count + 1, updated_at = now()
		WHERE token_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, int64(tokenID))
	if err != nil {
		return fmt.Errorf("increment verification count for %d: %w", tokenID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment verification count for %d: %w", tokenID, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.CredentialRecord, error) {
	var (
		record            models.CredentialRecord
		tokenID           int64
		issuer, recipient string
		credentialType    string
		txHash            string
		blockNumber       int64
		verificationCount int64
		revokedAt         sql.NullTime
	)
	err := row.Scan(
		&tokenID,
		&issuer,
		&recipient,
		&credentialType,
		&record.InstitutionName,
		&record.IssuedAt,
		&record.ExpiresAt,
		&record.MetadataRef,
		&record.TokenURI,
		&txHash,
		&blockNumber,
		&record.Revoked,
		&revokedAt,
		&verificationCount,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.TokenID = uint64(tokenID)
	record.Issuer = common.HexToAddress(issuer)
	record.Recipient = common.HexToAddress(recipient)
	record.Type = ledger.CredentialType(credentialType)
	record.TxHash = common.HexToHash(txHash)
	record.BlockNumber = uint64(blockNumber)
	record.VerificationCount = uint64(verificationCount)
	if revokedAt.Valid {
		t := revokedAt.Time
		record.RevokedAt = &t
	}
	return &record, nil
}
