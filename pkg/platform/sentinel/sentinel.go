package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrDuplicateHash: the store's unique constraint rejected an insert because
//   a row with the same content hash already exists
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateHash = errors.New("duplicate content hash")
	ErrUnavailable   = errors.New("unavailable")
)
