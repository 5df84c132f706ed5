package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/attendly/ticketing/internal/booking"
	"github.com/attendly/ticketing/internal/checkin"
	"github.com/attendly/ticketing/internal/config"
	"github.com/attendly/ticketing/internal/database"
	"github.com/attendly/ticketing/internal/directory"
	"github.com/attendly/ticketing/internal/handler"
	"github.com/attendly/ticketing/internal/notify"
	"github.com/attendly/ticketing/internal/payment"
	"github.com/attendly/ticketing/internal/repository"
	"github.com/attendly/ticketing/internal/router"
)

func main() {
	// .env is optional; in containers the environment is injected.
	_ = godotenv.Load()

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, rate limiting disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayClientID, cfg.GatewaySecret, cfg.GatewayTimeout)
	go gateway.StartTokenRefresh(ctx, cfg.GatewayTokenRefresh)

	events := directory.NewHTTPEventDirectory(cfg.CatalogBaseURL, cfg.ServiceAPIKey, 5*time.Second)
	identity := directory.NewHTTPIdentity(cfg.IdentityBaseURL, cfg.ServiceAPIKey, 5*time.Second)

	publisher := notify.NewPublisher(cfg.BrokerURL)
	go notify.StartReceiptConsumer(cfg.BrokerURL)

	categories := repository.NewCategoryRepo(db)
	bookings := repository.NewBookingRepo(db)
	tickets := repository.NewTicketRepo(db)

	orch := booking.NewOrchestrator(categories, bookings, tickets, gateway, events, publisher)
	rec := booking.NewReconciler(categories, bookings, tickets, gateway, events, identity, publisher)
	policy := booking.RefundPolicy{
		FullRefundLead: cfg.FullRefundLead,
		HalfRefundLead: cfg.HalfRefundLead,
		BlackoutLead:   cfg.BlackoutLead,
	}
	canc := booking.NewCanceller(categories, bookings, tickets, gateway, events, publisher, policy, cfg.PaymentTimeout, rec)
	go canc.RunSweep(ctx, cfg.SweepInterval)

	verifier := checkin.NewVerifier(tickets, events, publisher, cfg.CheckinLead, cfg.DefaultDuration)

	bookingH := handler.NewBookingHandler(orch, rec, canc)
	ticketH := handler.NewTicketHandler(orch, tickets, cfg.QRSize)
	checkinH := handler.NewCheckinHandler(verifier)
	paymentH := handler.NewPaymentHandler(gateway, rec)
	categoryH := handler.NewCategoryHandler(categories)

	e := echo.New()
	e.HideBanner = true

	router.RegisterPublic(e, categoryH, paymentH, handler.Health(db))
	router.RegisterBuyer(e, bookingH, ticketH, cfg.JWTSecret, rlCfg, rdb)
	router.RegisterStaff(e, checkinH, cfg.CheckinAPIKeyHash)
	router.RegisterAdmin(e, categoryH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
