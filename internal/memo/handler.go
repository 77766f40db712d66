package memo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/voxnote-app/voxnote/internal/api"
	"github.com/voxnote-app/voxnote/internal/storage"
)

// Handler handles memo HTTP endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new memo handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// Analyze runs one uploaded recording through the analysis pipeline and
// returns the persisted memo. Missing input fields fail with 400 before
// any external call is made.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("audio_url and user_id are required"))
		return
	}

	m, err := h.svc.Analyze(r.Context(), req)
	if err != nil {
		api.HandleError(w, pipelineHTTPError(err))
		return
	}

	api.JSON(w, http.StatusCreated, m)
}

// pipelineHTTPError maps a pipeline failure onto an HTTP status. Only
// the caller-safe message leaves the process; provider error bodies and
// credentials stay in the logs.
func pipelineHTTPError(err error) error {
	var perr *PipelineError
	if !errors.As(err, &perr) {
		return api.ErrInternalServer
	}

	switch perr.Kind {
	case KindRetrieval:
		switch {
		case errors.Is(perr.Err, storage.ErrNotFound):
			return api.NewNotFoundError(perr.Message)
		case errors.Is(perr.Err, storage.ErrAccessDenied):
			return api.NewForbiddenError(perr.Message)
		default:
			return api.NewUpstreamError(perr.Message)
		}
	case KindTranscription, KindExtraction, KindSchemaViolation:
		return api.NewUpstreamError(perr.Message)
	case KindPersistence:
		return api.NewInternalError(perr.Message)
	default:
		return api.ErrInternalServer
	}
}

// List returns a user's memos, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user_id"))
		return
	}

	page := 1
	pageSize := 20
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	memos, totalCount, err := h.svc.List(r.Context(), userID, page, pageSize)
	if err != nil {
		slog.Error("listing memos", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, memos, totalCount, page, pageSize)
}

// Get returns a single memo by ID.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	memoID, err := uuid.Parse(chi.URLParam(r, "memoID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid memo ID"))
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user_id"))
		return
	}

	m, err := h.svc.Get(r.Context(), memoID, userID)
	if err != nil {
		slog.Error("getting memo", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if m == nil {
		api.HandleError(w, api.NewNotFoundError("memo not found"))
		return
	}

	api.JSON(w, http.StatusOK, m)
}
