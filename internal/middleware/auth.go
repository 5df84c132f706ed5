// Package middleware provides shared request processing for the HTTP
// layer: buyer JWT auth, role checks, the staff API key gate and the
// Redis token bucket rate limiter.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by BuyerAuth.
const (
	CtxBuyerID = "buyer_id"
	CtxRole    = "role"
)

// BuyerAuth returns an Echo middleware that validates a Bearer access
// token issued by the identity service and stores the subject and role
// claims in the request context.  Protected handlers read the buyer via
// BuyerID(c).
func BuyerAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has no subject"})
			}
			c.Set(CtxBuyerID, sub)
			if role, ok := claims["role"].(string); ok {
				c.Set(CtxRole, role)
			}
			return next(c)
		}
	}
}

// BuyerID returns the authenticated buyer id, or "" when the request
// was not authenticated.
func BuyerID(c echo.Context) string {
	if v, ok := c.Get(CtxBuyerID).(string); ok {
		return v
	}
	return ""
}

// IsAdmin reports whether the authenticated caller carries the admin
// role.
func IsAdmin(c echo.Context) bool {
	role, _ := c.Get(CtxRole).(string)
	return role == "admin"
}

// RequireRole enforces that the authenticated caller has one of the
// given roles, as stored by BuyerAuth.  Requests without a matching
// role are rejected with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
