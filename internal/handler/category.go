package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/attendly/ticketing/internal/model"
	"github.com/attendly/ticketing/internal/repository"
)

// CategoryHandler serves category administration and the public
// availability listing.
type CategoryHandler struct {
	repo *repository.CategoryRepo
}

// NewCategoryHandler wires a CategoryHandler.
func NewCategoryHandler(repo *repository.CategoryRepo) *CategoryHandler {
	return &CategoryHandler{repo: repo}
}

type createCategoryRequest struct {
	EventID      string          `json:"event_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Currency     string          `json:"currency"`
	Capacity     int             `json:"capacity"`
	MaxPerBuyer  int             `json:"max_per_buyer"`
	SaleStartsAt time.Time       `json:"sale_starts_at"`
	SaleEndsAt   time.Time       `json:"sale_ends_at"`
}

// Create handles POST /v1/admin/categories.
func (h *CategoryHandler) Create(c echo.Context) error {
	var req createCategoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	if req.EventID == "" || req.Name == "" || req.Currency == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id, name and currency are required"})
	}
	if req.Capacity <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be positive"})
	}
	if req.UnitPrice.IsNegative() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unit_price cannot be negative"})
	}
	if !req.SaleEndsAt.After(req.SaleStartsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sale window must end after it starts"})
	}

	cat := &model.TicketCategory{
		ID:           uuid.NewString(),
		EventID:      req.EventID,
		Name:         req.Name,
		UnitPrice:    req.UnitPrice,
		Currency:     req.Currency,
		Capacity:     req.Capacity,
		MaxPerBuyer:  req.MaxPerBuyer,
		SaleStartsAt: req.SaleStartsAt.UTC(),
		SaleEndsAt:   req.SaleEndsAt.UTC(),
		Active:       true,
	}
	if err := h.repo.Create(c.Request().Context(), cat); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, cat)
}

// ListByEvent handles GET /v1/events/:id/categories.
func (h *CategoryHandler) ListByEvent(c echo.Context) error {
	cats, err := h.repo.ListByEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"categories": cats})
}

// RaiseCapacity handles PATCH /v1/admin/categories/:id/capacity.
// Capacity revisions only go upward.
func (h *CategoryHandler) RaiseCapacity(c echo.Context) error {
	var body struct {
		Capacity int `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	if body.Capacity <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be positive"})
	}
	if err := h.repo.RaiseCapacity(c.Request().Context(), c.Param("id"), body.Capacity); err != nil {
		return respondError(c, err)
	}
	cat, err := h.repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cat)
}

// SetActive handles PATCH /v1/admin/categories/:id/active.
func (h *CategoryHandler) SetActive(c echo.Context) error {
	var body struct {
		Active bool `json:"active"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	if err := h.repo.SetActive(c.Request().Context(), c.Param("id"), body.Active); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "updated"})
}
