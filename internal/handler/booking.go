package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/attendly/ticketing/internal/booking"
	"github.com/attendly/ticketing/internal/middleware"
)

// BookingHandler serves the buyer-facing booking routes.
type BookingHandler struct {
	orch *booking.Orchestrator
	rec  *booking.Reconciler
	canc *booking.Canceller
}

// NewBookingHandler wires a BookingHandler.
func NewBookingHandler(orch *booking.Orchestrator, rec *booking.Reconciler, canc *booking.Canceller) *BookingHandler {
	return &BookingHandler{orch: orch, rec: rec, canc: canc}
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	var req booking.CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	req.BuyerID = middleware.BuyerID(c)

	res, err := h.orch.Create(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.orch.Get(c.Request().Context(), c.Param("id"), middleware.BuyerID(c), middleware.IsAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// ListMine handles GET /v1/my-bookings.
func (h *BookingHandler) ListMine(c echo.Context) error {
	bs, err := h.orch.ListForBuyer(c.Request().Context(), middleware.BuyerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bs})
}

// Tickets handles GET /v1/bookings/:id/tickets.
func (h *BookingHandler) Tickets(c echo.Context) error {
	ts, err := h.orch.Tickets(c.Request().Context(), c.Param("id"), middleware.BuyerID(c), middleware.IsAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": ts})
}

// Cancel handles DELETE /v1/bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body) // body is optional

	b, err := h.canc.Cancel(c.Request().Context(), c.Param("id"),
		middleware.BuyerID(c), body.Reason, middleware.IsAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// SyncPayment handles POST /v1/bookings/:id/sync-payment.  It pulls the
// gateway's view of the transaction for buyers whose callback never
// arrived.
func (h *BookingHandler) SyncPayment(c echo.Context) error {
	b, err := h.rec.Sync(c.Request().Context(), c.Param("id"), middleware.BuyerID(c), middleware.IsAdmin(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
