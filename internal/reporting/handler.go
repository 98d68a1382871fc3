package reporting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/veranda-ops/veranda-ops/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/locations", h.handleLocations)
	r.Get("/locations/{departmentID}", h.handleDepartment)
	r.Get("/movements", h.handleMovements)
}

func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.LocationSummary(r.Context())
	if err != nil {
		h.logger.Error("location summary", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": summaries})
}

func (h *Handler) handleDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "departmentID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "department id must be a positive integer")
		return
	}
	summary, err := h.service.DepartmentSummary(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("department summary", slog.Any("error", err), slog.Int64("department_id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}
	movements, err := h.service.RecentMovements(r.Context(), limit)
	if err != nil {
		h.logger.Error("recent movements", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}
