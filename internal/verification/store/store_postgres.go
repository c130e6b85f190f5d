package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Hodazia/kubecredentials/internal/verification/models"
)

// PostgresStore persists the verification log in PostgreSQL. The BIGSERIAL
// id column provides the insertion-order sequence the history query relies
// on.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.LogEntry) error {
	if entry == nil {
		return fmt.Errorf("log entry is required")
	}
	query := `
		INSERT INTO verification_logs
			(credential_hash, verified, status, worker_id, verified_at, request_attributes, client_ip, client_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		entry.ContentHash,
		entry.Verified,
		string(entry.Outcome),
		entry.WorkerID,
		entry.VerifiedAt,
		nullableBytes(entry.RequestAttributes),
		nullableString(entry.ClientIP),
		nullableString(entry.ClientAgent),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append verification log: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, limit int) ([]models.LogEntry, error) {
	// Latest attempt per credential hash, newest attempts first.
	query := `
		SELECT l.id, l.credential_hash, l.verified, l.status, l.worker_id,
		       l.verified_at, l.request_attributes, l.client_ip, l.client_agent
		FROM verification_logs l
		JOIN (
			SELECT MAX(id) AS id
			FROM verification_logs
			GROUP BY credential_hash
		) latest ON latest.id = l.id
		ORDER BY l.id DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query verification history: %w", err)
	}
	defer rows.Close()

	var out []models.LogEntry
	for rows.Next() {
		var entry models.LogEntry
		var outcome string
		var attributes []byte
		var clientIP, clientAgent sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.ContentHash,
			&entry.Verified,
			&outcome,
			&entry.WorkerID,
			&entry.VerifiedAt,
			&attributes,
			&clientIP,
			&clientAgent,
		); err != nil {
			return nil, fmt.Errorf("scan verification log: %w", err)
		}
		entry.Outcome = models.Outcome(outcome)
		entry.RequestAttributes = attributes
		entry.ClientIP = clientIP.String
		entry.ClientAgent = clientAgent.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query verification history: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verification_logs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count verification logs: %w", err)
	}
	return count, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*PostgresStore)(nil)
