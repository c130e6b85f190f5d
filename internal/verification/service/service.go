// Package service implements the verification protocol: hash the submitted
// payload, read the issuer's listing, and record the attempt in the
// append-only log.
package service

//go:generate mockgen -source=../store/store.go -destination=mocks/store_mock.go -package=mocks Store
//go:generate mockgen -source=../issuer/client.go -destination=mocks/client_mock.go -package=mocks Client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Hodazia/kubecredentials/internal/audit"
	"github.com/Hodazia/kubecredentials/internal/canonical"
	"github.com/Hodazia/kubecredentials/internal/platform/middleware"
	"github.com/Hodazia/kubecredentials/internal/platform/tracer"
	"github.com/Hodazia/kubecredentials/internal/verification/issuer"
	"github.com/Hodazia/kubecredentials/internal/verification/metrics"
	"github.com/Hodazia/kubecredentials/internal/verification/models"
	"github.com/Hodazia/kubecredentials/internal/verification/store"
	dErrors "github.com/Hodazia/kubecredentials/pkg/domain-errors"
)

const defaultHistoryLimit = 100

// Service coordinates the verification protocol.
type Service struct {
	store    store.Store
	client   issuer.Client
	workerID string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  *audit.Publisher
	tracer   tracer.Tracer
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithAuditor publishes audit events for each verification attempt.
func WithAuditor(auditor *audit.Publisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

// WithTracer emits spans around verification and the issuer fetch.
func WithTracer(tr tracer.Tracer) Option {
	return func(s *Service) { s.tracer = tr }
}

// WithClock overrides the timestamp source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, client issuer.Client, workerID string, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:    st,
		client:   client,
		workerID: workerID,
		logger:   logger,
		metrics:  m,
		tracer:   tracer.NewNoop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify runs the verification protocol. Every attempt that reaches the
// matching stage appends exactly one log entry, whatever the outcome; only
// request-shape failures and log-write failures surface as errors.
func (s *Service) Verify(ctx context.Context, req models.VerifyRequest) (result *models.Result, err error) {
	payload, perr := req.Payload()
	if perr != nil {
		return nil, dErrors.Wrap(perr, dErrors.CodeValidation, "invalid credential attributes")
	}

	hash, herr := canonical.Hash(payload)
	if herr != nil {
		return nil, dErrors.Wrap(herr, dErrors.CodeValidation, "attributes are not canonicalizable")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify, tracer.String(tracer.AttrContentHash, hash))
	defer func() {
		if result != nil {
			span.SetAttributes(tracer.String(tracer.AttrOutcome, string(result.Outcome)))
		}
		span.End(err)
	}()

	snapshot, ferr := s.fetchSnapshot(ctx)
	if ferr != nil {
		s.logger.WarnContext(ctx, "issuer unavailable",
			"content_hash", hash,
			"error", ferr,
		)
		return s.conclude(ctx, hash, payload, models.OutcomeUpstreamError, nil)
	}

	if match := snapshot.FindByHash(hash); match != nil {
		return s.conclude(ctx, hash, payload, models.OutcomeValid, match)
	}
	return s.conclude(ctx, hash, payload, models.OutcomeNotFound, nil)
}

// History returns the latest verification attempt per content hash, newest
// first. A non-positive limit falls back to the default.
func (s *Service) History(ctx context.Context, limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	history, err := s.store.History(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verification history lookup failed")
	}
	return history, nil
}

func (s *Service) fetchSnapshot(ctx context.Context) (*models.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIssuerFetch)
	start := time.Now()
	snapshot, err := s.client.Fetch(ctx)
	s.metrics.IssuerFetchTime.Observe(time.Since(start).Seconds())
	span.End(err)

	if err != nil {
		s.metrics.IssuerFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.IssuerFetches.WithLabelValues("ok").Inc()
	s.metrics.SnapshotSize.Set(float64(len(snapshot.Credentials)))
	span.SetAttributes(tracer.Int64(tracer.AttrSnapshotSize, int64(len(snapshot.Credentials))))
	return snapshot, nil
}

// conclude records the attempt and builds the caller-facing result. The log
// write gates the response: an attempt the log cannot hold is reported as an
// internal error, not as a verification outcome.
func (s *Service) conclude(ctx context.Context, hash string, payload json.RawMessage, outcome models.Outcome, match *models.IssuedCredential) (*models.Result, error) {
	now := s.now()
	meta := middleware.GetClientMetadata(ctx)

	entry := &models.LogEntry{
		ContentHash:       hash,
		Verified:          outcome == models.OutcomeValid,
		Outcome:           outcome,
		WorkerID:          s.workerID,
		VerifiedAt:        now,
		RequestAttributes: payload,
		ClientIP:          meta.IP,
		ClientAgent:       meta.Agent,
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verification log append failed")
	}

	s.metrics.Verifications.WithLabelValues(string(outcome)).Inc()
	s.emit(ctx, hash, outcome, match)

	result := &models.Result{
		Valid:     outcome == models.OutcomeValid,
		Outcome:   outcome,
		WorkerID:  s.workerID,
		Timestamp: now,
	}
	switch outcome {
	case models.OutcomeValid:
		result.Message = "credential verified against issuer records"
		result.CredentialDetails = &models.CredentialDetails{
			ID:       match.ID,
			IssuedBy: match.WorkerID,
			IssuedAt: match.IssuedAt,
		}
	case models.OutcomeNotFound:
		result.Message = "credential not found in issuer records"
	case models.OutcomeUpstreamError:
		result.Message = "issuer records unavailable, try again later"
	}

	s.logger.InfoContext(ctx, "verification concluded",
		"content_hash", hash,
		"outcome", string(outcome),
		"log_id", entry.ID,
	)
	return result, nil
}

func (s *Service) emit(ctx context.Context, hash string, outcome models.Outcome, match *models.IssuedCredential) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		WorkerID:    s.workerID,
		ContentHash: hash,
		Outcome:     string(outcome),
		RequestID:   middleware.GetRequestID(ctx),
	}
	switch outcome {
	case models.OutcomeValid:
		event.Action = audit.ActionVerificationValid
		event.CredentialID = match.ID
	case models.OutcomeNotFound:
		event.Action = audit.ActionVerificationMiss
	case models.OutcomeUpstreamError:
		event.Action = audit.ActionVerificationFailed
	}
	_ = s.auditor.Emit(ctx, event)
}
