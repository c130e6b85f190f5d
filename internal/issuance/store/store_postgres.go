package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Hodazia/kubecredentials/internal/issuance/models"
	"github.com/Hodazia/kubecredentials/pkg/platform/sentinel"
)

// PostgresStore persists credentials in PostgreSQL. The unique index on
// content_hash is the authority for the at-most-once invariant; concurrent
// inserts race at the constraint, never at an application-level check.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*models.Credential, error) {
	query := `
		SELECT id, attributes, content_hash, worker_id, issued_at
		FROM credentials
		WHERE content_hash = $1
	`
	cred, err := scanCredential(s.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by hash: %w", err)
	}
	return cred, nil
}

func (s *PostgresStore) Insert(ctx context.Context, credential *models.Credential) error {
	if credential == nil {
		return fmt.Errorf("credential is required")
	}
	query := `
		INSERT INTO credentials (id, attributes, content_hash, worker_id, issued_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		credential.ID,
		[]byte(credential.Attributes),
		credential.ContentHash,
		credential.WorkerID,
		credential.IssuedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("content hash already issued: %w", sentinel.ErrDuplicateHash)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]models.Credential, error) {
	query := `
		SELECT id, attributes, content_hash, worker_id, issued_at
		FROM credentials
		ORDER BY issued_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

type credentialRow interface {
	Scan(dest ...any) error
}

func scanCredential(row credentialRow) (*models.Credential, error) {
	var cred models.Credential
	var attributes []byte
	if err := row.Scan(&cred.ID, &attributes, &cred.ContentHash, &cred.WorkerID, &cred.IssuedAt); err != nil {
		return nil, err
	}
	cred.Attributes = attributes
	return &cred, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
