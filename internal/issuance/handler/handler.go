// Package handler exposes the issuance HTTP surface.
package handler

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/Hodazia/kubecredentials/internal/issuance/metrics"
	"github.com/Hodazia/kubecredentials/internal/issuance/models"
	"github.com/Hodazia/kubecredentials/internal/issuance/service"
	"github.com/Hodazia/kubecredentials/internal/platform/middleware"
	"github.com/Hodazia/kubecredentials/pkg/platform/httputil"
)

// maxBodySize bounds issue request payloads.
const maxBodySize = 64 * 1024

// Service is the issuance protocol surface the handler depends on.
type Service interface {
	Issue(ctx context.Context, req models.IssueRequest) (*service.Outcome, error)
	List(ctx context.Context) ([]models.Credential, error)
}

type Handler struct {
	service  Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	workerID string
}

func New(svc Service, m *metrics.Metrics, logger *slog.Logger, workerID string) *Handler {
	return &Handler{
		service:  svc,
		metrics:  m,
		logger:   logger,
		workerID: workerID,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/issue", h.HandleIssue)
	r.Get("/credentials", h.HandleListCredentials)
}

// issueResponse is the 201 body for a freshly issued credential.
type issueResponse struct {
	Success    bool               `json:"success"`
	ID         string             `json:"id"`
	Message    string             `json:"message"`
	WorkerID   string             `json:"workerId"`
	IssuedAt   time.Time          `json:"issuedAt"`
	Credential *models.Credential `json:"credential"`
	Token      string             `json:"token,omitempty"`
}

// duplicateResponse is the 409 body. It names the original issuance so the
// caller can see who issued the credential and when.
type duplicateResponse struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	ID       string    `json:"id"`
	WorkerID string    `json:"workerId"`
	IssuedAt time.Time `json:"issuedAt"`
}

type listResponse struct {
	Success     bool                `json:"success"`
	Credentials []models.Credential `json:"credentials"`
	Count       int                 `json:"count"`
}

// HandleIssue implements POST /issue.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()
	defer func() {
		h.metrics.EndpointLatency.WithLabelValues("issue").Observe(time.Since(start).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	req, ok := httputil.DecodeAndPrepare[models.IssueRequest](w, r, h.logger, requestID)
	if !ok {
		h.metrics.ValidationFailures.Inc()
		return
	}

	outcome, err := h.service.Issue(ctx, *req)
	if err != nil {
		h.logger.ErrorContext(ctx, "issue request failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	credential := outcome.Credential
	if outcome.Status == service.StatusAlreadyIssued {
		h.metrics.DuplicateRequests.Inc()
		httputil.WriteJSON(w, http.StatusConflict, duplicateResponse{
			Status:   string(service.StatusAlreadyIssued),
			Message:  "credential with identical content already issued",
			ID:       credential.ID,
			WorkerID: credential.WorkerID,
			IssuedAt: credential.IssuedAt,
		})
		return
	}

	h.metrics.CredentialsIssued.Inc()
	httputil.WriteJSON(w, http.StatusCreated, issueResponse{
		Success:    true,
		ID:         credential.ID,
		Message:    "credential issued by " + h.workerID,
		WorkerID:   credential.WorkerID,
		IssuedAt:   credential.IssuedAt,
		Credential: credential,
		Token:      outcome.Token,
	})
}

// HandleListCredentials implements GET /credentials, the listing the
// verification service reads through.
func (h *Handler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()
	defer func() {
		h.metrics.EndpointLatency.WithLabelValues("credentials").Observe(time.Since(start).Seconds())
	}()

	credentials, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "credential listing failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	h.metrics.StoredCredentials.Set(float64(len(credentials)))
	if credentials == nil {
		credentials = []models.Credential{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Success:     true,
		Credentials: credentials,
		Count:       len(credentials),
	})
}
