// Package store persists issued credentials keyed by content hash.
package store

import (
	"context"

	"github.com/Hodazia/kubecredentials/internal/issuance/models"
)

// Store is the credential store port. Implementations return sentinel errors
// (pkg/platform/sentinel) for infrastructure facts; the service layer
// translates them into domain errors.
//
// The uniqueness invariant lives here, not in the protocol layer: Insert
// must reject a second row for an existing content hash even when two
// process instances race between FindByHash and Insert.
type Store interface {
	// FindByHash returns the credential with the given content hash, or
	// sentinel.ErrNotFound.
	FindByHash(ctx context.Context, hash string) (*models.Credential, error)

	// Insert durably persists a new credential. Returns
	// sentinel.ErrDuplicateHash when a row with the same content hash
	// already exists.
	Insert(ctx context.Context, credential *models.Credential) error

	// ListAll returns every issued credential, newest first.
	ListAll(ctx context.Context) ([]models.Credential, error)
}
