package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/admin"
	"github.com/n8tive/platform/pkg/n8tive/auth"
	"github.com/n8tive/platform/pkg/n8tive/billing"
	"github.com/n8tive/platform/pkg/n8tive/checkout"
	"github.com/n8tive/platform/pkg/n8tive/config"
	"github.com/n8tive/platform/pkg/n8tive/database"
	"github.com/n8tive/platform/pkg/n8tive/identity"
	"github.com/n8tive/platform/pkg/n8tive/models"
	"github.com/n8tive/platform/pkg/n8tive/subscriptions"
	"github.com/n8tive/platform/pkg/n8tive/waitlist"
	"github.com/n8tive/platform/pkg/n8tive/webhooks"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.WebhookSecret == "" {
		log.Warn().Msg("BILLING_WEBHOOK_SECRET is not set; all webhook deliveries will be rejected")
	}

	if err := database.Connect(cfg.DBPath); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("database migrations completed")

	if err := ensureAdminExists(database.GetDB(), cfg, log); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure admin user exists")
	}

	provider := billing.NewClient(cfg.BillingAPIURL, cfg.BillingAPIKey)

	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "n8tive",
			})
		})

		// Auth routes (bootstrap admin / dev-account login)
		authHandler := auth.NewHandler(database.GetDB(), cfg.JWTSecret)
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Identity sync (called by the frontend after provider login)
		identityHandler := identity.NewHandler(database.GetDB(), cfg, log.With().Str("component", "identity").Logger())
		identityHandler.RegisterRoutes(api.Group("/users"))

		// Subscription status queries (public, email/principal addressed)
		subsHandler := subscriptions.NewHandler(database.GetDB())
		subsHandler.RegisterRoutes(api.Group("/subscriptions"))

		// Checkout
		checkoutHandler := checkout.NewHandler(cfg, provider, log.With().Str("component", "checkout").Logger())
		checkoutHandler.RegisterRoutes(api.Group("/checkout"))

		// Billing webhooks (signature-verified, never JWT)
		webhookHandler := webhooks.NewHandler(database.GetDB(), cfg, provider, log.With().Str("component", "webhooks").Logger())
		webhookHandler.RegisterRoutes(api.Group("/webhooks"))

		// Waitlist signup (public)
		waitlistHandler := waitlist.NewHandler(database.GetDB())
		waitlistHandler.RegisterRoutes(api.Group("/waitlist"))

		// Admin routes (JWT, privileged account required)
		adminHandler := admin.NewHandler(database.GetDB(), cfg)
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.AuthMiddleware(cfg.JWTSecret), auth.RequirePrivileged(database.GetDB()))
		adminHandler.RegisterRoutes(adminGroup)
	}

	log.Info().Str("port", cfg.Port).Msg("starting n8tive server")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// ensureAdminExists creates the bootstrap admin user if no admin exists yet,
// so the admin endpoints are reachable on a fresh database.
func ensureAdminExists(db *gorm.DB, cfg *config.Config, log zerolog.Logger) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        cfg.AdminEmail,
		Name:         "Admin",
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
		IsPrivileged: true,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	log.Info().Str("email", cfg.AdminEmail).Msg("created bootstrap admin user")
	return nil
}
