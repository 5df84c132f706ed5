package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// Staff context keys set by StaffAPIKey.
const CtxStaffID = "staff_id"

// StaffAPIKey returns an Echo middleware guarding the gate endpoints.
// Scanner devices present a shared API key in X-Api-Key plus their
// device identity in X-Staff-Id; only the bcrypt hash of the key ever
// reaches configuration.
func StaffAPIKey(keyHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-Api-Key")
			if key == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing api key"})
			}
			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid api key"})
			}
			staff := c.Request().Header.Get("X-Staff-Id")
			if staff == "" {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing staff id"})
			}
			c.Set(CtxStaffID, staff)
			return next(c)
		}
	}
}

// StaffID returns the gate staff identity, or "" outside the staff
// routes.
func StaffID(c echo.Context) string {
	if v, ok := c.Get(CtxStaffID).(string); ok {
		return v
	}
	return ""
}
