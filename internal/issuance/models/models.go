package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Attribute fields with protocol meaning. Everything else in a payload is
// free-form and still participates in the content hash.
const (
	FieldHolderName     = "holderName"
	FieldCredentialType = "credentialType"
	FieldIssueDate      = "issueDate"
	FieldExpiryDate     = "expiryDate"
)

const (
	maxHolderNameLen     = 255
	maxCredentialTypeLen = 100
)

// Credential is an issued credential. Identity is the content hash, not the
// id: two payloads with equal canonical encodings are the same credential.
// Rows are immutable once inserted.
type Credential struct {
	ID          string          `json:"id"`
	Attributes  json.RawMessage `json:"credentialData"`
	ContentHash string          `json:"credentialHash"`
	WorkerID    string          `json:"workerId"`
	IssuedAt    time.Time       `json:"issuedAt"`
}

// IssueRequest is the attribute mapping submitted to POST /issue. Raw values
// are retained byte-for-byte so canonicalization sees exactly what the caller
// sent; only the issue-date default mutates the payload, and it does so
// before hashing.
type IssueRequest map[string]json.RawMessage

// Normalize defaults the issue date to the current UTC date when absent.
// The default participates in the content hash, so a credential issued
// without an issue date can only be verified by supplying the defaulted one.
func (r *IssueRequest) Normalize() {
	if *r == nil {
		return
	}
	if _, ok := (*r)[FieldIssueDate]; !ok {
		date := time.Now().UTC().Format("2006-01-02")
		(*r)[FieldIssueDate] = json.RawMessage(`"` + date + `"`)
	}
}

// Validate checks the request shape: holder identity and credential category
// are required non-empty strings, dates must be strings when present.
func (r *IssueRequest) Validate() error {
	if len(*r) == 0 {
		return fmt.Errorf("request body must be a JSON object with credential attributes")
	}
	if err := requireString(*r, FieldHolderName, maxHolderNameLen); err != nil {
		return err
	}
	if err := requireString(*r, FieldCredentialType, maxCredentialTypeLen); err != nil {
		return err
	}
	for _, field := range []string{FieldIssueDate, FieldExpiryDate} {
		if raw, ok := (*r)[field]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("%s must be a string", field)
			}
		}
	}
	return nil
}

// Payload serializes the attribute mapping for canonicalization and storage.
// Map keys are emitted in sorted order; nested values pass through untouched.
func (r IssueRequest) Payload() ([]byte, error) {
	payload, err := json.Marshal(map[string]json.RawMessage(r))
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return payload, nil
}

func requireString(attrs map[string]json.RawMessage, field string, maxLen int) error {
	raw, ok := attrs[field]
	if !ok {
		return fmt.Errorf("%s is required", field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("%s must be a string", field)
	}
	if s == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if len(s) > maxLen {
		return fmt.Errorf("%s must be at most %d characters", field, maxLen)
	}
	return nil
}
