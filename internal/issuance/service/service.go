// Package service implements the issuance protocol: validate, canonicalize,
// hash, then insert-or-detect-duplicate against the credential store.
package service

//go:generate mockgen -source=../store/store.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Hodazia/kubecredentials/internal/audit"
	"github.com/Hodazia/kubecredentials/internal/canonical"
	"github.com/Hodazia/kubecredentials/internal/issuance/models"
	"github.com/Hodazia/kubecredentials/internal/issuance/store"
	dErrors "github.com/Hodazia/kubecredentials/pkg/domain-errors"
	"github.com/Hodazia/kubecredentials/pkg/platform/sentinel"
)

// Status is the issuance outcome variant.
type Status string

const (
	StatusIssued        Status = "issued"
	StatusAlreadyIssued Status = "already_issued"
)

// Outcome is the result of an issue call. AlreadyIssued is a defined
// outcome, not an error: idempotent re-submission carries the existing
// credential so the caller learns its id and provenance.
type Outcome struct {
	Status     Status
	Credential *models.Credential
	Token      string
}

// TokenSigner signs tokens for issued credentials. Optional.
type TokenSigner interface {
	Generate(credentialID, contentHash string) (string, error)
}

// Service coordinates the issuance protocol against the credential store.
type Service struct {
	store    store.Store
	workerID string
	logger   *slog.Logger
	auditor  *audit.Publisher
	signer   TokenSigner
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithTokenSigner attaches signed tokens to Issued outcomes.
func WithTokenSigner(signer TokenSigner) Option {
	return func(s *Service) { s.signer = signer }
}

// WithClock overrides the issuance timestamp source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates an issuance service. The worker identity is injected here and
// stamped onto every credential this instance issues.
func New(st store.Store, workerID string, logger *slog.Logger, auditor *audit.Publisher, opts ...Option) *Service {
	s := &Service{
		store:    st,
		workerID: workerID,
		logger:   logger,
		auditor:  auditor,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue runs the issuance protocol for an already-validated request.
//
// At-most-one credential row ever exists per content hash: the store's
// uniqueness constraint resolves races between concurrent instances, and a
// lost race is converted into an AlreadyIssued outcome by re-fetching the
// winner's row.
func (s *Service) Issue(ctx context.Context, req models.IssueRequest) (*Outcome, error) {
	payload, err := req.Payload()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid credential attributes")
	}

	hash, err := canonical.Hash(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "attributes are not canonicalizable")
	}

	if existing, err := s.store.FindByHash(ctx, hash); err == nil {
		return s.alreadyIssued(ctx, existing), nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}

	credential := &models.Credential{
		ID:          uuid.New().String(),
		Attributes:  payload,
		ContentHash: hash,
		WorkerID:    s.workerID,
		IssuedAt:    s.now(),
	}

	if err := s.store.Insert(ctx, credential); err != nil {
		if errors.Is(err, sentinel.ErrDuplicateHash) {
			// A concurrent insert landed between our lookup and write.
			winner, ferr := s.store.FindByHash(ctx, hash)
			if ferr != nil {
				return nil, dErrors.Wrap(ferr, dErrors.CodeInternal, "credential lookup after duplicate insert failed")
			}
			return s.alreadyIssued(ctx, winner), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential insert failed")
	}

	s.logger.InfoContext(ctx, "credential issued",
		"credential_id", credential.ID,
		"content_hash", credential.ContentHash,
	)
	s.emit(ctx, audit.ActionCredentialIssued, credential)

	outcome := &Outcome{Status: StatusIssued, Credential: credential}
	if s.signer != nil {
		token, err := s.signer.Generate(credential.ID, credential.ContentHash)
		if err != nil {
			// The credential is already durable; a failed token attach must
			// not turn a successful issuance into an error.
			s.logger.ErrorContext(ctx, "token attach failed",
				"credential_id", credential.ID,
				"error", err,
			)
		} else {
			outcome.Token = token
		}
	}
	return outcome, nil
}

// List returns every issued credential, newest first.
func (s *Service) List(ctx context.Context) ([]models.Credential, error) {
	credentials, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential listing failed")
	}
	return credentials, nil
}

func (s *Service) alreadyIssued(ctx context.Context, existing *models.Credential) *Outcome {
	s.logger.InfoContext(ctx, "credential already issued",
		"credential_id", existing.ID,
		"content_hash", existing.ContentHash,
		"issued_by", existing.WorkerID,
	)
	s.emit(ctx, audit.ActionCredentialDuplicate, existing)
	return &Outcome{Status: StatusAlreadyIssued, Credential: existing}
}

func (s *Service) emit(ctx context.Context, action audit.Action, credential *models.Credential) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Action:       action,
		WorkerID:     s.workerID,
		ContentHash:  credential.ContentHash,
		CredentialID: credential.ID,
	})
}
