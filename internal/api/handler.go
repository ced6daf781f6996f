// Package api exposes the item loop over HTTP for hosts that run the nodes
// out of process.
package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/sfnodes"
	"github.com/blueberrycongee/sfnodes/internal/httputil"
	"github.com/blueberrycongee/sfnodes/internal/metrics"
	"github.com/blueberrycongee/sfnodes/internal/observability"
)

// BatchIDHeader carries the caller's batch ID, echoed on the response.
const BatchIDHeader = "X-Batch-ID"

// ExecuteRequest is the body of POST /v1/execute.
type ExecuteRequest struct {
	Items []sfnodes.Item `json:"items"`
}

// ExecuteResponse is the body of a completed batch.
type ExecuteResponse struct {
	Records []sfnodes.OutputRecord `json:"records"`
}

// Handler serves the batch API.
type Handler struct {
	clients     *ClientSwapper
	logger      *slog.Logger
	redactor    *observability.Redactor
	maxBodySize int64
}

// HandlerConfig contains configuration for Handler.
type HandlerConfig struct {
	MaxBodySize int64 // Maximum request body size in bytes
}

// NewHandler creates a handler that runs batches on the client held by clients.
func NewHandler(clients *ClientSwapper, logger *slog.Logger, cfg *HandlerConfig) *Handler {
	maxBodySize := int64(DefaultMaxBodySize)
	if cfg != nil && cfg.MaxBodySize > 0 {
		maxBodySize = cfg.MaxBodySize
	}
	return &Handler{
		clients:     clients,
		logger:      logger,
		redactor:    observability.NewRedactor(),
		maxBodySize: maxBodySize,
	}
}

// Routes registers the handler endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/execute", metrics.Middleware("/v1/execute", http.HandlerFunc(h.Execute)))
	mux.Handle("GET /v1/models", metrics.Middleware("/v1/models", http.HandlerFunc(h.ListModels)))
	mux.HandleFunc("GET /health", h.HealthCheck)
	return mux
}

// Execute handles POST /v1/execute.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer r.Body.Close()

	body, err := httputil.ReadLimitedBody(r.Body, h.maxBodySize)
	if err != nil {
		if stderrors.Is(err, httputil.ErrBodyTooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorDetail{
				Message: "request body too large (max " + httputil.FormatSize(int(h.maxBodySize)) + ")",
				Kind:    "validation_error",
			}})
			return
		}
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{Message: "failed to read request body", Kind: "validation_error"}})
		return
	}

	var req ExecuteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{Message: "invalid JSON: " + err.Error(), Kind: "validation_error"}})
		return
	}

	ctx := r.Context()
	if id := r.Header.Get(BatchIDHeader); id != "" {
		ctx = observability.ContextWithBatchID(ctx, id)
	}
	ctx, batchID := observability.GetOrCreateBatchID(ctx)
	w.Header().Set(BatchIDHeader, batchID)

	client, release := h.clients.Acquire()
	defer release()
	if client == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorDetail{Message: "client not initialized", Kind: "internal_error"}})
		return
	}

	records, err := client.Execute(ctx, req.Items)
	if err != nil {
		status, detail := errorDetail(err)
		h.logger.Warn("batch aborted",
			"batch_id", batchID,
			"items", len(req.Items),
			"completed", len(records),
			"status", status,
			"error", h.redactor.RedactMap(map[string]any{
				"message": detail.Message,
				"kind":    detail.Kind,
				"type":    detail.Type,
				"model":   detail.Model,
			}),
		)
		h.writeJSON(w, status, ErrorResponse{Error: detail, Records: records})
		return
	}

	h.logger.Debug("batch served",
		"batch_id", batchID,
		"items", len(records),
		"latency", time.Since(start),
	)
	if records == nil {
		records = []sfnodes.OutputRecord{}
	}
	h.writeJSON(w, http.StatusOK, ExecuteResponse{Records: records})
}

// ListModels handles GET /v1/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	client, release := h.clients.Acquire()
	defer release()
	if client == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorDetail{Message: "client not initialized", Kind: "internal_error"}})
		return
	}

	ids, err := client.ListModels(r.Context())
	if err != nil {
		status, detail := errorDetail(err)
		h.writeJSON(w, status, ErrorResponse{Error: detail})
		return
	}

	data := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		data = append(data, map[string]string{"id": id, "object": "model"})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": sfnodes.Version})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
