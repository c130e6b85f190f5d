// Package store persists the append-only verification log.
package store

import (
	"context"

	"github.com/Hodazia/kubecredentials/internal/verification/models"
)

// Store is the verification log port. The log is append-only: rows are never
// updated or deleted, and ids increase monotonically in insertion order.
type Store interface {
	// Append persists a new log entry and fills in its assigned id.
	Append(ctx context.Context, entry *models.LogEntry) error

	// History returns the latest entry per content hash, newest first,
	// at most limit entries.
	History(ctx context.Context, limit int) ([]models.LogEntry, error)

	// Count returns the total number of log entries ever appended.
	Count(ctx context.Context) (int64, error)
}
