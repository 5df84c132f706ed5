package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/attendly/ticketing/internal/config"
	"github.com/attendly/ticketing/internal/handler"
	"github.com/attendly/ticketing/internal/middleware"
)

// RegisterPublic registers routes that require no authentication: the
// health check, Prometheus metrics, the public category listing and the
// payment provider callback.  The callback authenticates itself through
// its body signature rather than a bearer token.
func RegisterPublic(e *echo.Echo, cat *handler.CategoryHandler, pay *handler.PaymentHandler, health echo.HandlerFunc) {
	e.GET("/healthz", health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/v1/events/:id/categories", cat.ListByEvent)
	e.POST("/v1/payments/callback", pay.Callback)
}

// RegisterBuyer registers buyer-scoped endpoints under /v1.  All routes
// require a valid JWT; booking creation additionally passes through the
// Redis token bucket so a burst of retries cannot drain inventory.
func RegisterBuyer(e *echo.Echo, b *handler.BookingHandler, t *handler.TicketHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1", middleware.BuyerAuth(jwtSecret))

	g.POST("/bookings", b.Create, middleware.RateLimit(rl, rdb))
	g.GET("/bookings/:id", b.Get)
	g.GET("/my-bookings", b.ListMine)
	g.GET("/bookings/:id/tickets", b.Tickets)
	g.DELETE("/bookings/:id", b.Cancel)
	g.POST("/bookings/:id/sync-payment", b.SyncPayment)

	g.POST("/tickets/:id/transfer", t.Transfer)
	g.GET("/tickets/:id/qr", t.QR)
}

// RegisterStaff registers the gate scanner endpoint.  Scanners are
// devices, not users: they authenticate with the shared API key and
// identify the operator through the X-Staff-Id header.
func RegisterStaff(e *echo.Echo, h *handler.CheckinHandler, apiKeyHash string) {
	g := e.Group("/v1", middleware.StaffAPIKey(apiKeyHash))
	g.POST("/checkin", h.Verify)
}

// RegisterAdmin registers category administration under /v1/admin.
// All routes require a JWT carrying the admin role.
func RegisterAdmin(e *echo.Echo, cat *handler.CategoryHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.BuyerAuth(jwtSecret),
		middleware.RequireRole("admin"),
	)
	g.POST("/categories", cat.Create)
	g.PATCH("/categories/:id/capacity", cat.RaiseCapacity)
	g.PATCH("/categories/:id/active", cat.SetActive)
}
