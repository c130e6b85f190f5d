package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/Hodazia/kubecredentials/internal/audit"
	"github.com/Hodazia/kubecredentials/internal/canonical"
	"github.com/Hodazia/kubecredentials/internal/verification/metrics"
	"github.com/Hodazia/kubecredentials/internal/verification/models"
	"github.com/Hodazia/kubecredentials/internal/verification/service/mocks"
	dErrors "github.com/Hodazia/kubecredentials/pkg/domain-errors"
	"github.com/Hodazia/kubecredentials/pkg/platform/sentinel"
)

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	mockStore  *mocks.MockStore
	mockClient *mocks.MockClient
	sink       *audit.MemorySink
	service    *Service
	now        time.Time
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockClient = mocks.NewMockClient(s.ctrl)
	s.sink = audit.NewMemorySink()
	s.now = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(
		s.mockStore,
		s.mockClient,
		"verifier-1",
		logger,
		metrics.NewForTest(),
		WithAuditor(audit.NewPublisher(s.sink)),
		WithClock(func() time.Time { return s.now }),
	)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func verifyRequest() models.VerifyRequest {
	return models.VerifyRequest{
		"holderName":     json.RawMessage(`"Marta Oduya"`),
		"credentialType": json.RawMessage(`"forklift-operator"`),
		"issueDate":      json.RawMessage(`"2026-08-30"`),
	}
}

func (s *ServiceSuite) requestHash(req models.VerifyRequest) string {
	payload, err := req.Payload()
	s.Require().NoError(err)
	hash, err := canonical.Hash(payload)
	s.Require().NoError(err)
	return hash
}

func (s *ServiceSuite) TestVerifyValid() {
	req := verifyRequest()
	hash := s.requestHash(req)

	issuedAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	s.mockClient.EXPECT().Fetch(gomock.Any()).Return(&models.Snapshot{
		Credentials: []models.IssuedCredential{
			{ID: "cred-1", ContentHash: hash, WorkerID: "issuer-3", IssuedAt: issuedAt},
		},
	}, nil)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *models.LogEntry) error {
			s.Equal(hash, entry.ContentHash)
			s.True(entry.Verified)
			s.Equal(models.OutcomeValid, entry.Outcome)
			s.Equal("verifier-1", entry.WorkerID)
			s.Equal(s.now, entry.VerifiedAt)
			s.NotEmpty(entry.RequestAttributes)
			entry.ID = 7
			return nil
		})

	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.True(result.Valid)
	s.Equal(models.OutcomeValid, result.Outcome)
	s.Equal("verifier-1", result.WorkerID)
	s.Require().NotNil(result.CredentialDetails)
	s.Equal("cred-1", result.CredentialDetails.ID)
	s.Equal("issuer-3", result.CredentialDetails.IssuedBy)
	s.Equal(issuedAt, result.CredentialDetails.IssuedAt)

	s.Require().Equal(1, s.sink.Count())
	event := s.sink.Events()[0]
	s.Equal(audit.ActionVerificationValid, event.Action)
	s.Equal("cred-1", event.CredentialID)
}

func (s *ServiceSuite) TestVerifyNotFound() {
	req := verifyRequest()

	s.mockClient.EXPECT().Fetch(gomock.Any()).Return(&models.Snapshot{
		Credentials: []models.IssuedCredential{
			{ID: "other", ContentHash: "different-hash"},
		},
	}, nil)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *models.LogEntry) error {
			s.False(entry.Verified)
			s.Equal(models.OutcomeNotFound, entry.Outcome)
			return nil
		})

	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.False(result.Valid)
	s.Equal(models.OutcomeNotFound, result.Outcome)
	s.Nil(result.CredentialDetails)

	s.Require().Equal(1, s.sink.Count())
	s.Equal(audit.ActionVerificationMiss, s.sink.Events()[0].Action)
}

func (s *ServiceSuite) TestVerifyUpstreamErrorIsAnOutcomeNotAFailure() {
	req := verifyRequest()

	s.mockClient.EXPECT().Fetch(gomock.Any()).Return(nil, sentinel.ErrUnavailable)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *models.LogEntry) error {
			s.False(entry.Verified)
			s.Equal(models.OutcomeUpstreamError, entry.Outcome)
			return nil
		})

	result, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	s.False(result.Valid)
	s.Equal(models.OutcomeUpstreamError, result.Outcome)
	s.Nil(result.CredentialDetails)

	s.Require().Equal(1, s.sink.Count())
	s.Equal(audit.ActionVerificationFailed, s.sink.Events()[0].Action)
}

func (s *ServiceSuite) TestVerifyEveryOutcomeIsLogged() {
	// Append is the gate: three verifications, three log writes.
	req := verifyRequest()
	hash := s.requestHash(req)

	gomock.InOrder(
		s.mockClient.EXPECT().Fetch(gomock.Any()).Return(nil, sentinel.ErrUnavailable),
		s.mockClient.EXPECT().Fetch(gomock.Any()).Return(&models.Snapshot{}, nil),
		s.mockClient.EXPECT().Fetch(gomock.Any()).Return(&models.Snapshot{
			Credentials: []models.IssuedCredential{{ID: "cred-1", ContentHash: hash}},
		}, nil),
	)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	for _, want := range []models.Outcome{
		models.OutcomeUpstreamError,
		models.OutcomeNotFound,
		models.OutcomeValid,
	} {
		result, err := s.service.Verify(context.Background(), req)
		s.Require().NoError(err)
		s.Equal(want, result.Outcome)
	}
	s.Equal(3, s.sink.Count())
}

func (s *ServiceSuite) TestVerifyLogAppendFailureIsInternal() {
	req := verifyRequest()

	s.mockClient.EXPECT().Fetch(gomock.Any()).Return(&models.Snapshot{}, nil)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	_, err := s.service.Verify(context.Background(), req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(0, s.sink.Count())
}

func (s *ServiceSuite) TestVerifyNoIssuanceDefaultingApplied() {
	// The same attributes without issueDate hash differently, so a
	// credential issued with a defaulted date must not match.
	full := verifyRequest()
	partial := models.VerifyRequest{
		"holderName":     json.RawMessage(`"Marta Oduya"`),
		"credentialType": json.RawMessage(`"forklift-operator"`),
	}
	fullHash := s.requestHash(full)
	partialHash := s.requestHash(partial)
	s.NotEqual(fullHash, partialHash)

	s.mockClient.EXPECT().Fetch(gomock.Any()).Return(&models.Snapshot{
		Credentials: []models.IssuedCredential{{ID: "cred-1", ContentHash: fullHash}},
	}, nil)
	s.mockStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)

	result, err := s.service.Verify(context.Background(), partial)
	s.Require().NoError(err)
	s.Equal(models.OutcomeNotFound, result.Outcome)
}

func (s *ServiceSuite) TestHistoryDefaultsLimit() {
	s.mockStore.EXPECT().History(gomock.Any(), 100).Return([]models.LogEntry{{ID: 1}}, nil)

	history, err := s.service.History(context.Background(), 0)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *ServiceSuite) TestHistoryPassesLimit() {
	s.mockStore.EXPECT().History(gomock.Any(), 5).Return(nil, nil)

	_, err := s.service.History(context.Background(), 5)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestHistoryStoreFailureIsInternal() {
	s.mockStore.EXPECT().History(gomock.Any(), 100).Return(nil, errors.New("timeout"))

	_, err := s.service.History(context.Background(), 100)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
