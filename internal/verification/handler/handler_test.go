package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hodazia/kubecredentials/internal/verification/metrics"
	"github.com/Hodazia/kubecredentials/internal/verification/models"
)

type stubService struct {
	verifyResult *models.Result
	verifyErr    error
	history      []models.LogEntry
	historyErr   error
	gotLimit     int
}

func (s *stubService) Verify(_ context.Context, _ models.VerifyRequest) (*models.Result, error) {
	return s.verifyResult, s.verifyErr
}

func (s *stubService) History(_ context.Context, limit int) ([]models.LogEntry, error) {
	s.gotLimit = limit
	return s.history, s.historyErr
}

func newRouter(svc Service) *chi.Mux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, metrics.NewForTest(), logger)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func postVerify(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleVerifyValid(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc := &stubService{verifyResult: &models.Result{
		Valid:     true,
		Outcome:   models.OutcomeValid,
		Message:   "credential verified against issuer records",
		WorkerID:  "verifier-1",
		Timestamp: now,
		CredentialDetails: &models.CredentialDetails{
			ID:       "cred-1",
			IssuedBy: "issuer-3",
			IssuedAt: now.Add(-24 * time.Hour),
		},
	}}
	router := newRouter(svc)

	rec := postVerify(router, `{"holderName":"A","credentialType":"b"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["valid"])
	assert.Equal(t, "valid", resp["status"])
	assert.Equal(t, "verifier-1", resp["workerId"])
	details, ok := resp["credentialDetails"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cred-1", details["id"])
	assert.Equal(t, "issuer-3", details["issuedBy"])
}

func TestHandleVerifyNonValidOutcomesStillReturn200(t *testing.T) {
	for _, outcome := range []models.Outcome{models.OutcomeNotFound, models.OutcomeUpstreamError} {
		t.Run(string(outcome), func(t *testing.T) {
			svc := &stubService{verifyResult: &models.Result{
				Valid:     false,
				Outcome:   outcome,
				WorkerID:  "verifier-1",
				Timestamp: time.Now().UTC(),
			}}
			rec := postVerify(newRouter(svc), `{"holderName":"A"}`)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, false, resp["valid"])
			assert.Equal(t, string(outcome), resp["status"])
			_, hasDetails := resp["credentialDetails"]
			assert.False(t, hasDetails)
		})
	}
}

func TestHandleVerifyRejectsBadInput(t *testing.T) {
	router := newRouter(&stubService{})

	rec := postVerify(router, `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postVerify(router, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleVerifyServiceFailure(t *testing.T) {
	svc := &stubService{verifyErr: errors.New("log write failed")}
	rec := postVerify(newRouter(svc), `{"holderName":"A"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "log write failed")
}

func TestHandleHistory(t *testing.T) {
	svc := &stubService{history: []models.LogEntry{
		{ID: 2, ContentHash: "hash-b", Verified: true, Outcome: models.OutcomeValid},
		{ID: 1, ContentHash: "hash-a", Verified: false, Outcome: models.OutcomeNotFound},
	}}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/verify/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, svc.gotLimit)

	var resp struct {
		Success bool              `json:"success"`
		History []models.LogEntry `json:"history"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.History, 2)
	assert.Equal(t, "hash-b", resp.History[0].ContentHash)
}

func TestHandleHistoryLimit(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/verify/history?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.gotLimit)

	var resp struct {
		History []models.LogEntry `json:"history"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.History)
	assert.Zero(t, resp.Count)
}

func TestHandleHistoryRejectsBadLimit(t *testing.T) {
	router := newRouter(&stubService{})

	for _, limit := range []string{"abc", "-1", "0"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/verify/history?limit="+limit, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestHandleHistoryServiceFailure(t *testing.T) {
	svc := &stubService{historyErr: errors.New("db down")}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/verify/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}
