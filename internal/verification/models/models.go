// Package models defines the verification domain types.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome classifies a verification attempt. NotFound and UpstreamError are
// distinct: the first means the issuer answered and the credential is absent,
// the second means the issuer could not be consulted at all.
type Outcome string

const (
	OutcomeValid         Outcome = "valid"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeUpstreamError Outcome = "upstream_error"
)

// VerifyRequest is the attribute mapping submitted to POST /api/verify. The
// payload is hashed exactly as submitted; no field defaulting happens here,
// so a credential issued with a defaulted issue date only verifies when the
// caller supplies that date.
type VerifyRequest map[string]json.RawMessage

// Validate requires a non-empty JSON object. Unlike issuance, no individual
// field is mandatory: any payload has a well-defined content hash.
func (r *VerifyRequest) Validate() error {
	if len(*r) == 0 {
		return fmt.Errorf("request body must be a JSON object with credential attributes")
	}
	return nil
}

// Payload serializes the attribute mapping for canonicalization.
func (r VerifyRequest) Payload() ([]byte, error) {
	payload, err := json.Marshal(map[string]json.RawMessage(r))
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return payload, nil
}

// CredentialDetails carries provenance for a valid outcome.
type CredentialDetails struct {
	ID       string    `json:"id"`
	IssuedBy string    `json:"issuedBy"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Result is the outcome of one verification attempt.
type Result struct {
	Valid             bool               `json:"valid"`
	Outcome           Outcome            `json:"status"`
	Message           string             `json:"message"`
	WorkerID          string             `json:"workerId"`
	Timestamp         time.Time          `json:"timestamp"`
	CredentialDetails *CredentialDetails `json:"credentialDetails,omitempty"`
}

// LogEntry is one row of the append-only verification log. The id is a
// monotonically increasing sequence; history queries use it to pick the
// latest attempt per content hash.
type LogEntry struct {
	ID                int64           `json:"id"`
	ContentHash       string          `json:"credentialHash"`
	Verified          bool            `json:"verified"`
	Outcome           Outcome         `json:"status"`
	WorkerID          string          `json:"workerId"`
	VerifiedAt        time.Time       `json:"verifiedAt"`
	RequestAttributes json.RawMessage `json:"requestAttributes,omitempty"`
	ClientIP          string          `json:"clientIp,omitempty"`
	ClientAgent       string          `json:"clientAgent,omitempty"`
}

// IssuedCredential is one entry of the issuer's listing as consumed over the
// wire. Field names mirror the issuance listing contract.
type IssuedCredential struct {
	ID          string          `json:"id"`
	Attributes  json.RawMessage `json:"credentialData"`
	ContentHash string          `json:"credentialHash"`
	WorkerID    string          `json:"workerId"`
	IssuedAt    time.Time       `json:"issuedAt"`
}

// Snapshot is one fetch of the issuer's full listing.
type Snapshot struct {
	Credentials []IssuedCredential
	FetchedAt   time.Time
}

// FindByHash returns the credential with the given content hash, or nil.
func (s *Snapshot) FindByHash(hash string) *IssuedCredential {
	for i := range s.Credentials {
		if s.Credentials[i].ContentHash == hash {
			return &s.Credentials[i]
		}
	}
	return nil
}
