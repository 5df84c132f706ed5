// Package handler contains the Echo HTTP handlers.  Handlers bind and
// validate request bodies, call into the services and translate the
// services' typed errors into HTTP responses; no business rules live
// here.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/attendly/ticketing/internal/booking"
	"github.com/attendly/ticketing/internal/checkin"
	"github.com/attendly/ticketing/internal/payment"
	"github.com/attendly/ticketing/internal/repository"
)

// respondError maps service errors onto HTTP status codes.  Unmatched
// errors become 500 with a generic body so internals never leak.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, booking.ErrInsufficientInventory),
		errors.Is(err, booking.ErrSaleClosed),
		errors.Is(err, booking.ErrLimitExceeded),
		errors.Is(err, booking.ErrNotCancellable),
		errors.Is(err, booking.ErrBlackout),
		errors.Is(err, booking.ErrNotTransferable),
		errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, payment.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payment gateway unavailable"})
	case errors.Is(err, checkin.ErrInvalidCredential),
		errors.Is(err, checkin.ErrWrongEvent),
		errors.Is(err, checkin.ErrModeMismatch),
		errors.Is(err, checkin.ErrOutsideWindow),
		errors.Is(err, checkin.ErrNotAdmittable):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	default:
		c.Logger().Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
