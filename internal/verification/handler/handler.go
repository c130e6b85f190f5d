// Package handler exposes the verification HTTP surface.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/Hodazia/kubecredentials/internal/platform/middleware"
	"github.com/Hodazia/kubecredentials/internal/verification/metrics"
	"github.com/Hodazia/kubecredentials/internal/verification/models"
	"github.com/Hodazia/kubecredentials/pkg/platform/httputil"
	dErrors "github.com/Hodazia/kubecredentials/pkg/domain-errors"
)

const maxBodySize = 64 * 1024

// Service is the verification protocol surface the handler depends on.
type Service interface {
	Verify(ctx context.Context, req models.VerifyRequest) (*models.Result, error)
	History(ctx context.Context, limit int) ([]models.LogEntry, error)
}

type Handler struct {
	service Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(svc Service, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		service: svc,
		metrics: m,
		logger:  logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/verify", h.HandleVerify)
	r.Get("/api/verify/history", h.HandleHistory)
}

type historyResponse struct {
	Success bool              `json:"success"`
	History []models.LogEntry `json:"history"`
	Count   int               `json:"count"`
}

// HandleVerify implements POST /api/verify. Verification outcomes, including
// an unreachable issuer, render as HTTP 200: the transport succeeded and the
// body says what the verdict is.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()
	defer func() {
		h.metrics.EndpointLatency.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	req, ok := httputil.DecodeAndPrepare[models.VerifyRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}

	result, err := h.service.Verify(ctx, *req)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification request failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleHistory implements GET /api/verify/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()
	defer func() {
		h.metrics.EndpointLatency.WithLabelValues("history").Observe(time.Since(start).Seconds())
	}()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	history, err := h.service.History(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "history request failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	if history == nil {
		history = []models.LogEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{
		Success: true,
		History: history,
		Count:   len(history),
	})
}
