package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/attendly/ticketing/internal/booking"
	"github.com/attendly/ticketing/internal/credential"
	"github.com/attendly/ticketing/internal/middleware"
)

// TicketHandler serves ticket-level routes: transfer and the rendered
// QR credential.
type TicketHandler struct {
	orch    *booking.Orchestrator
	tickets booking.TicketStore
	qrSize  int
}

// NewTicketHandler wires a TicketHandler.
func NewTicketHandler(orch *booking.Orchestrator, tickets booking.TicketStore, qrSize int) *TicketHandler {
	return &TicketHandler{orch: orch, tickets: tickets, qrSize: qrSize}
}

// Transfer handles POST /v1/tickets/:id/transfer.
func (h *TicketHandler) Transfer(c echo.Context) error {
	var body struct {
		ToUserID string `json:"to_user_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	t, err := h.orch.Transfer(c.Request().Context(), c.Param("id"), middleware.BuyerID(c), body.ToUserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// QR handles GET /v1/tickets/:id/qr, returning the credential as a PNG.
// Only the current owner (or an admin) may render it; a transferred
// ticket's previous owner gets 403 here because ownership moved.
func (h *TicketHandler) QR(c echo.Context) error {
	t, err := h.tickets.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !middleware.IsAdmin(c) && t.OwnerID != middleware.BuyerID(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	png, err := credential.QRPNG(t.EncodedCredential, h.qrSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
