package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veranda-ops/veranda-ops/internal/platform/httpx"
)

// Handler wires HTTP endpoints for ledger balance reads.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		resolver: resolver,
		validate: validator.New(),
	}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance", h.handleBalance)
	r.Post("/availability", h.handleAvailability)
}

type balanceQuery struct {
	ProductType  ProductType
	ProductID    int64
	DepartmentID int64
	SectionID    *int64
}

type availabilityInput struct {
	ProductType  string            `json:"product_type" validate:"required,oneof=drink inventoryItem"`
	DepartmentID int64             `json:"department_id" validate:"required,gt=0"`
	SectionID    *int64            `json:"section_id"`
	Items        []requirementLine `json:"items" validate:"required,min=1,dive"`
}

type requirementLine struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type availabilityResponse struct {
	ProductID int64  `json:"product_id"`
	Available int64  `json:"available"`
	Required  int64  `json:"required"`
	HasStock  bool   `json:"has_stock"`
	Message   string `json:"message,omitempty"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	query, err := parseBalanceQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balance := h.resolver.GetBalance(r.Context(), query.ProductType, query.ProductID, query.DepartmentID, query.SectionID)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_type":  query.ProductType,
		"product_id":    query.ProductID,
		"department_id": query.DepartmentID,
		"section_id":    query.SectionID,
		"balance":       balance,
	})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var input availabilityInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	requirements := make([]Requirement, 0, len(input.Items))
	for _, line := range input.Items {
		requirements = append(requirements, Requirement{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	results := h.resolver.CheckAvailabilityBatch(r.Context(), ProductType(input.ProductType), requirements, input.DepartmentID, input.SectionID)
	out := make([]availabilityResponse, 0, len(results))
	for _, res := range results {
		out = append(out, availabilityResponse{
			ProductID: res.ProductID,
			Available: res.Available,
			Required:  res.Required,
			HasStock:  res.HasStock,
			Message:   res.Message,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": out})
}

func parseBalanceQuery(r *http.Request) (balanceQuery, error) {
	q := r.URL.Query()
	var query balanceQuery

	query.ProductType = ProductType(q.Get("product_type"))
	if !query.ProductType.Valid() {
		return query, ErrUnknownProductType
	}

	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		return query, errBadQueryParam("product_id")
	}
	query.ProductID = productID

	departmentID, err := strconv.ParseInt(q.Get("department_id"), 10, 64)
	if err != nil || departmentID <= 0 {
		return query, errBadQueryParam("department_id")
	}
	query.DepartmentID = departmentID

	if raw := q.Get("section_id"); raw != "" {
		sectionID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || sectionID <= 0 {
			return query, errBadQueryParam("section_id")
		}
		query.SectionID = &sectionID
	}
	return query, nil
}

type badQueryParamError string

func errBadQueryParam(name string) error {
	return badQueryParamError(name)
}

func (e badQueryParamError) Error() string {
	return string(e) + " must be a positive integer"
}
