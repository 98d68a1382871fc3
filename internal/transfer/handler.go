package transfer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veranda-ops/veranda-ops/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the transfer module.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	store    *Repository
	validate *validator.Validate
}

// NewHandler constructs transfer handler.
func NewHandler(logger *slog.Logger, engine *Engine, store *Repository) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		engine:   engine,
		store:    store,
		validate: validator.New(),
	}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/approve", h.handleApprove)
	r.Get("/movements/{reference}", h.handleMovements)
}

type itemResponse struct {
	ProductType string `json:"product_type"`
	ProductID   int64  `json:"product_id"`
	Quantity    int64  `json:"quantity"`
}

type transferResponse struct {
	ID              int64          `json:"id"`
	Reference       string         `json:"reference"`
	FromDepartment  int64          `json:"from_department_id"`
	ToDepartment    int64          `json:"to_department_id"`
	ToSection       *int64         `json:"to_section_id,omitempty"`
	DestinationCode string         `json:"destination_code,omitempty"`
	Status          Status         `json:"status"`
	Items           []itemResponse `json:"items"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type movementResponse struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Quantity     int64     `json:"quantity"`
	Reason       string    `json:"reason"`
	Reference    string    `json:"reference"`
	ProductType  string    `json:"product_type"`
	ProductID    int64     `json:"product_id"`
	DepartmentID int64     `json:"department_id"`
	SectionID    *int64    `json:"section_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	req, err := h.engine.Create(r.Context(), input)
	if err != nil {
		h.respondDomainError(w, r, "create transfer", err)
		return
	}
	h.logger.Info("transfer created",
		slog.Int64("transfer_id", req.ID),
		slog.String("reference", req.Reference),
		slog.Int64("from_department", req.FromDepartment))
	httpx.JSON(w, http.StatusCreated, toResponse(req))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transfer id must be a positive integer")
		return
	}
	req, err := h.store.GetRequest(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, "get transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transfer id must be a positive integer")
		return
	}
	req, err := h.engine.Approve(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, "approve transfer", err)
		return
	}
	h.logger.Info("transfer completed",
		slog.Int64("transfer_id", req.ID),
		slog.String("reference", req.Reference))
	httpx.JSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reference is required")
		return
	}
	movements, err := h.store.ListMovementsByReference(r.Context(), reference)
	if err != nil {
		h.respondDomainError(w, r, "list movements", err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			ID:           m.ID,
			Type:         string(m.Type),
			Quantity:     m.Quantity,
			Reason:       m.Reason,
			Reference:    m.Reference,
			ProductType:  string(m.ProductType),
			ProductID:    m.ProductID,
			DepartmentID: m.DepartmentID,
			SectionID:    m.SectionID,
			CreatedAt:    m.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

// respondDomainError translates the engine's error taxonomy to HTTP statuses.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyProcessed):
		httpx.Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, ErrExecutionFailed):
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusServiceUnavailable, "Execution Failed", "transfer could not be executed, try again later")
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toResponse(req Request) transferResponse {
	items := make([]itemResponse, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, itemResponse{
			ProductType: string(item.ProductType),
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
		})
	}
	return transferResponse{
		ID:              req.ID,
		Reference:       req.Reference,
		FromDepartment:  req.FromDepartment,
		ToDepartment:    req.Destination.DepartmentID,
		ToSection:       req.Destination.SectionID,
		DestinationCode: req.DestinationCode,
		Status:          req.Status,
		Items:           items,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
}
