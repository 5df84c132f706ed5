package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/attendly/ticketing/internal/booking"
	"github.com/attendly/ticketing/internal/payment"
)

// SignatureVerifier checks a provider callback body against its
// X-Signature header.  Implemented by payment.Client.
type SignatureVerifier interface {
	VerifyCallbackSignature(body []byte, sig string) bool
}

// PaymentHandler serves the provider callback.
type PaymentHandler struct {
	verifier SignatureVerifier
	rec      *booking.Reconciler
}

// NewPaymentHandler wires a PaymentHandler.
func NewPaymentHandler(v SignatureVerifier, rec *booking.Reconciler) *PaymentHandler {
	return &PaymentHandler{verifier: v, rec: rec}
}

type callbackBody struct {
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	SettledAt     time.Time       `json:"settled_at"`
}

// Callback handles POST /v1/payments/callback.  The body signature is
// checked before anything is parsed; an unsigned or tampered callback
// is rejected without touching any booking.
func (h *PaymentHandler) Callback(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	sig := c.Request().Header.Get("X-Signature")
	if sig == "" || !h.verifier.VerifyCallbackSignature(body, sig) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	}

	var cb callbackBody
	if err := json.Unmarshal(body, &cb); err != nil || cb.TransactionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed callback"})
	}

	err = h.rec.Apply(c.Request().Context(), payment.Result{
		TransactionID: cb.TransactionID,
		Status:        cb.Status,
		Amount:        cb.Amount,
		SettledAt:     cb.SettledAt,
	})
	if err != nil {
		if errors.Is(err, booking.ErrUnknownTransaction) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown transaction"})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "accepted"})
}
