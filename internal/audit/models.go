package audit

import "time"

// Event is emitted from the issuance and verification protocols to capture
// key actions. Keep it transport-agnostic so sinks can fan out.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       Action    `json:"action"`
	WorkerID     string    `json:"workerId"`
	ContentHash  string    `json:"contentHash"`
	CredentialID string    `json:"credentialId,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
}

// Action identifies what happened.
type Action string

const (
	ActionCredentialIssued    Action = "credential_issued"
	ActionCredentialDuplicate Action = "credential_duplicate"
	ActionVerificationValid   Action = "verification_valid"
	ActionVerificationMiss    Action = "verification_not_found"
	ActionVerificationFailed  Action = "verification_upstream_error"
)
