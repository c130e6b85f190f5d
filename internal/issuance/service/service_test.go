package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/Hodazia/kubecredentials/internal/audit"
	"github.com/Hodazia/kubecredentials/internal/canonical"
	"github.com/Hodazia/kubecredentials/internal/issuance/models"
	"github.com/Hodazia/kubecredentials/internal/issuance/service/mocks"
	"github.com/Hodazia/kubecredentials/internal/issuance/store"
	dErrors "github.com/Hodazia/kubecredentials/pkg/domain-errors"
	"github.com/Hodazia/kubecredentials/pkg/platform/sentinel"
	"github.com/Hodazia/kubecredentials/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	sink      *audit.MemorySink
	service   *Service
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.sink = audit.NewMemorySink()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(s.mockStore, "worker-1", logger, audit.NewPublisher(s.sink))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func issueRequest(fields map[string]string) models.IssueRequest {
	req := models.IssueRequest{}
	for k, v := range fields {
		b, _ := json.Marshal(v)
		req[k] = json.RawMessage(b)
	}
	return req
}

func testRequest() models.IssueRequest {
	return issueRequest(map[string]string{
		"holderName":     "Marta Oduya",
		"credentialType": "forklift-operator",
		"issueDate":      "2026-08-30",
	})
}

func (s *ServiceSuite) TestIssueNewCredential() {
	req := testRequest()
	payload, err := req.Payload()
	s.Require().NoError(err)
	hash, err := canonical.Hash(payload)
	s.Require().NoError(err)

	s.mockStore.EXPECT().FindByHash(gomock.Any(), hash).Return(nil, sentinel.ErrNotFound)
	s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, c *models.Credential) error {
			s.Equal(hash, c.ContentHash)
			s.Equal("worker-1", c.WorkerID)
			s.NotEmpty(c.ID)
			s.False(c.IssuedAt.IsZero())
			return nil
		})

	outcome, err := s.service.Issue(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(StatusIssued, outcome.Status)
	s.Equal(hash, outcome.Credential.ContentHash)
	s.Empty(outcome.Token)

	s.Require().Equal(1, s.sink.Count())
	s.Equal(audit.ActionCredentialIssued, s.sink.Events()[0].Action)
}

func (s *ServiceSuite) TestIssueExistingCredentialIsIdempotent() {
	req := testRequest()
	payload, _ := req.Payload()
	hash, _ := canonical.Hash(payload)

	existing := &models.Credential{
		ID:          "11111111-2222-3333-4444-555555555555",
		Attributes:  payload,
		ContentHash: hash,
		WorkerID:    "worker-0",
		IssuedAt:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
	s.mockStore.EXPECT().FindByHash(gomock.Any(), hash).Return(existing, nil)

	outcome, err := s.service.Issue(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(StatusAlreadyIssued, outcome.Status)
	s.Equal(existing.ID, outcome.Credential.ID)
	s.Equal("worker-0", outcome.Credential.WorkerID)

	s.Require().Equal(1, s.sink.Count())
	s.Equal(audit.ActionCredentialDuplicate, s.sink.Events()[0].Action)
}

func (s *ServiceSuite) TestIssueLostRaceReturnsWinner() {
	req := testRequest()
	payload, _ := req.Payload()
	hash, _ := canonical.Hash(payload)

	winner := &models.Credential{ID: "winner", ContentHash: hash, WorkerID: "worker-9"}
	s.mockStore.EXPECT().FindByHash(gomock.Any(), hash).Return(nil, sentinel.ErrNotFound)
	s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(sentinel.ErrDuplicateHash)
	s.mockStore.EXPECT().FindByHash(gomock.Any(), hash).Return(winner, nil)

	outcome, err := s.service.Issue(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(StatusAlreadyIssued, outcome.Status)
	s.Equal("winner", outcome.Credential.ID)
	s.Equal("worker-9", outcome.Credential.WorkerID)
}

func (s *ServiceSuite) TestIssueStoreFailureIsInternal() {
	req := testRequest()
	payload, _ := req.Payload()
	hash, _ := canonical.Hash(payload)

	s.mockStore.EXPECT().FindByHash(gomock.Any(), hash).Return(nil, errors.New("connection reset"))

	_, err := s.service.Issue(context.Background(), req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(0, s.sink.Count())
}

func (s *ServiceSuite) TestIssueInsertFailureIsInternal() {
	req := testRequest()
	payload, _ := req.Payload()
	hash, _ := canonical.Hash(payload)

	s.mockStore.EXPECT().FindByHash(gomock.Any(), hash).Return(nil, sentinel.ErrNotFound)
	s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	_, err := s.service.Issue(context.Background(), req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestIssueAttachesToken() {
	signer := &staticSigner{token: "signed-token"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(s.mockStore, "worker-1", logger, nil, WithTokenSigner(signer))

	req := testRequest()
	payload, _ := req.Payload()
	hash, _ := canonical.Hash(payload)
	s.mockStore.EXPECT().FindByHash(gomock.Any(), hash).Return(nil, sentinel.ErrNotFound)
	s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)

	outcome, err := svc.Issue(context.Background(), req)
	s.Require().NoError(err)
	s.Equal("signed-token", outcome.Token)
}

func (s *ServiceSuite) TestIssueTokenFailureDoesNotFailIssuance() {
	signer := &staticSigner{err: errors.New("key unavailable")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(s.mockStore, "worker-1", logger, nil, WithTokenSigner(signer))

	req := testRequest()
	payload, _ := req.Payload()
	hash, _ := canonical.Hash(payload)
	s.mockStore.EXPECT().FindByHash(gomock.Any(), hash).Return(nil, sentinel.ErrNotFound)
	s.mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)

	outcome, err := svc.Issue(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(StatusIssued, outcome.Status)
	s.Empty(outcome.Token)
}

func (s *ServiceSuite) TestList() {
	credentials := []models.Credential{{ID: "a"}, {ID: "b"}}
	s.mockStore.EXPECT().ListAll(gomock.Any()).Return(credentials, nil)

	got, err := s.service.List(context.Background())
	s.Require().NoError(err)
	s.Len(got, 2)
}

func (s *ServiceSuite) TestListStoreFailureIsInternal() {
	s.mockStore.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := s.service.List(context.Background())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

type staticSigner struct {
	token string
	err   error
}

func (s *staticSigner) Generate(credentialID, contentHash string) (string, error) {
	return s.token, s.err
}

// TestConcurrentIssueSamePayload drives the full protocol against the real
// memory store. Exactly one goroutine may observe Issued; everyone else must
// converge on AlreadyIssued with the winner's credential id.
func TestConcurrentIssueSamePayload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(store.NewMemoryStore(), "worker-1", logger, nil)

	req := testRequest()

	var issued, alreadyIssued atomic.Int32
	var winnerID atomic.Value

	result := testutil.RunConcurrent(32, func(idx int) error {
		outcome, err := svc.Issue(context.Background(), req)
		if err != nil {
			return err
		}
		switch outcome.Status {
		case StatusIssued:
			issued.Add(1)
			winnerID.Store(outcome.Credential.ID)
		case StatusAlreadyIssued:
			alreadyIssued.Add(1)
		}
		return nil
	})

	if result.Errors != 0 {
		t.Fatalf("expected no errors, got %d", result.Errors)
	}
	if got := issued.Load(); got != 1 {
		t.Fatalf("expected exactly one issued outcome, got %d", got)
	}
	if got := alreadyIssued.Load(); got != 31 {
		t.Fatalf("expected 31 already-issued outcomes, got %d", got)
	}

	// All callers converge on a single stored credential.
	all, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one stored credential, got %d", len(all))
	}
	if all[0].ID != winnerID.Load().(string) {
		t.Fatalf("stored credential id does not match the winner's")
	}
}
