package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/attendly/ticketing/internal/checkin"
	"github.com/attendly/ticketing/internal/middleware"
	"github.com/attendly/ticketing/internal/model"
)

// CheckinHandler serves the gate scanner endpoint.
type CheckinHandler struct {
	verifier *checkin.Verifier
}

// NewCheckinHandler wires a CheckinHandler.
func NewCheckinHandler(v *checkin.Verifier) *CheckinHandler {
	return &CheckinHandler{verifier: v}
}

type checkinRequest struct {
	EventID    string `json:"event_id"`
	Credential string `json:"credential"`
	ShortCode  string `json:"short_code"`
	GroupGate  bool   `json:"group_gate"`
}

type checkinResponse struct {
	Admitted bool          `json:"admitted"`
	Ticket   *model.Ticket `json:"ticket,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Verify handles POST /v1/checkin.  The scanner sends either the QR
// payload or the typed fallback code, never both.
func (h *CheckinHandler) Verify(c echo.Context) error {
	var req checkinRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	if req.EventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
	}
	if (req.Credential == "") == (req.ShortCode == "") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "exactly one of credential or short_code is required"})
	}

	ctx := c.Request().Context()
	staff := middleware.StaffID(c)

	var (
		t   *model.Ticket
		err error
	)
	if req.Credential != "" {
		t, err = h.verifier.VerifyCredential(ctx, req.Credential, req.EventID, staff, req.GroupGate)
	} else {
		t, err = h.verifier.VerifyShortCode(ctx, req.ShortCode, req.EventID, staff, req.GroupGate)
	}
	if err != nil {
		var dup *checkin.AlreadyCheckedInError
		if errors.As(err, &dup) {
			return c.JSON(http.StatusConflict, echo.Map{
				"admitted":      false,
				"error":         "already checked in",
				"checked_in_at": dup.At,
				"checked_in_by": dup.By,
			})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, checkinResponse{Admitted: true, Ticket: t})
}
