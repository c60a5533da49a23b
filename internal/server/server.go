package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/adiswara/karcis/config"
	"github.com/adiswara/karcis/internal/cart"
	"github.com/adiswara/karcis/internal/clock"
	"github.com/adiswara/karcis/internal/handlers"
	"github.com/adiswara/karcis/internal/middleware"
	"github.com/adiswara/karcis/internal/repositories"
	"github.com/adiswara/karcis/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	xenditCfg, err := config.LoadXenditConfig()
	if err != nil {
		return fmt.Errorf("failed to load gateway config: %v", err)
	}
	xenditClient, err := config.InitXenditClient(xenditCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway client: %v", err)
	}

	policy := config.LoadPolicyConfig()

	carts, err := cart.NewStore(policy.CartDir)
	if err != nil {
		return fmt.Errorf("failed to initialize cart store: %v", err)
	}

	qrSecret := os.Getenv("JWT_SECRET")
	credentialStore, err := services.NewLocalCredentialStore(policy.CredentialDir, qrSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %v", err)
	}

	clk := clock.NewSystem()
	gateway := services.NewXenditGateway(xenditClient, xenditCfg.WebhookSecret, xenditCfg.SuccessURL, xenditCfg.FailureURL)

	intents := repositories.NewIntentRepository(db)
	tickets := repositories.NewTicketRepository(db)
	tiers := repositories.NewTierRepository(db)
	coupons := repositories.NewCouponRepository(db)
	ledger := repositories.NewLoyaltyRepository(db)

	loyaltySvc := services.NewLoyaltyService(ledger)
	checkoutSvc := services.NewCheckoutService(gateway, intents, tiers, coupons, loyaltySvc, clk, policy.ServiceFee, policy.Currency)
	settlementSvc := services.NewSettlementService(gateway, intents, carts, clk)
	credentialSvc := services.NewCredentialService(credentialStore, tickets, services.RetryPolicy{
		MaxAttempts: policy.RetryMaxAttempts,
		BaseDelay:   policy.RetryBaseDelay,
		Multiplier:  2.0,
	}, clock.NewSystemSleeper())

	r := gin.Default()

	setupRoutes(r, db, routeDeps{
		carts:       handlers.NewCartHandler(carts),
		checkout:    handlers.NewCheckoutHandler(checkoutSvc, settlementSvc, carts),
		webhook:     handlers.NewWebhookHandler(settlementSvc),
		tickets:     handlers.NewTicketHandler(credentialSvc, tickets, qrSecret),
		loyaltyAcct: handlers.NewLoyaltyHandler(loyaltySvc),
	})

	startAbandonSweep(checkoutSvc, policy.AbandonTTL)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

type routeDeps struct {
	carts       *handlers.CartHandler
	checkout    *handlers.CheckoutHandler
	webhook     *handlers.WebhookHandler
	tickets     *handlers.TicketHandler
	loyaltyAcct *handlers.LoyaltyHandler
}

func setupRoutes(r *gin.Engine, db *gorm.DB, deps routeDeps) {
	r.Use(middleware.DatabaseMiddleware(db))

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("", handlers.ListEvents)
			eventPublic.GET("/:id", handlers.GetEvent)
		}

		public.GET("/tiers/:id", handlers.GetTier)

		// Gateway-to-server notification; authenticated by signature, not JWT.
		public.POST("/webhooks/payment", deps.webhook.HandlePaymentWebhook)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		eventProtected := protected.Group("/events")
		{
			eventProtected.POST("", handlers.CreateEvent)
			eventProtected.PUT("/:id", handlers.UpdateEvent)
			eventProtected.DELETE("/:id", handlers.DeleteEvent)
		}

		tierProtected := protected.Group("/tiers")
		{
			tierProtected.POST("", handlers.CreateTier)
			tierProtected.PUT("/:id", handlers.UpdateTier)
			tierProtected.DELETE("/:id", handlers.DeleteTier)
		}

		couponProtected := protected.Group("/coupons")
		{
			couponProtected.POST("", handlers.CreateCoupon)
			couponProtected.GET("", handlers.ListCoupons)
			couponProtected.POST("/claim", handlers.ClaimCoupon)
			couponProtected.DELETE("/:id", handlers.DeleteCoupon)
		}

		cartGroup := protected.Group("/cart")
		{
			cartGroup.GET("", deps.carts.GetCart)
			cartGroup.POST("/items", deps.carts.AddItem)
			cartGroup.PATCH("/items", deps.carts.UpdateQuantity)
			cartGroup.DELETE("/items/:eventId/:tierId", deps.carts.RemoveItem)
			cartGroup.DELETE("", deps.carts.ClearCart)
		}

		checkoutGroup := protected.Group("/checkout")
		{
			checkoutGroup.POST("", deps.checkout.BeginCheckout)
			checkoutGroup.GET("/:intentId", deps.checkout.GetIntent)
			checkoutGroup.POST("/:intentId/confirm", deps.checkout.ConfirmPayment)
		}

		ticketGroup := protected.Group("/tickets")
		{
			ticketGroup.GET("", deps.tickets.ListMyTickets)
			ticketGroup.GET("/:id/credential", deps.tickets.GetCredential)
			ticketGroup.POST("/validate", deps.tickets.ValidateTicket)
		}

		loyaltyGroup := protected.Group("/loyalty")
		{
			loyaltyGroup.GET("/balance", deps.loyaltyAcct.GetBalance)
			loyaltyGroup.GET("/history", deps.loyaltyAcct.GetHistory)
			loyaltyGroup.POST("/preview", deps.loyaltyAcct.PreviewRedemption)
		}
	}
}

// startAbandonSweep periodically abandons intents stuck before settlement
// longer than the TTL.
func startAbandonSweep(checkoutSvc *services.CheckoutService, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for range ticker.C {
			n, err := checkoutSvc.AbandonStale(context.Background(), ttl)
			if err != nil {
				log.Printf("abandon sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("abandoned %d stale purchase intents", n)
			}
		}
	}()
}
