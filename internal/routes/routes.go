package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pixa-pay/pixa_pay/internal/auth"
	"github.com/pixa-pay/pixa_pay/internal/config"
	"github.com/pixa-pay/pixa_pay/internal/deposit"
	"github.com/pixa-pay/pixa_pay/internal/gateway"
	"github.com/pixa-pay/pixa_pay/internal/identity"
	"github.com/pixa-pay/pixa_pay/internal/ledger"
	"github.com/pixa-pay/pixa_pay/internal/metrics"
	"github.com/pixa-pay/pixa_pay/internal/middleware"
	"github.com/pixa-pay/pixa_pay/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Stores: Postgres in production, in-memory stand-ins in dev.
	var store ledger.Store
	var userRepo identity.Repository
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		userRepo = identity.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewInMemory()
		userRepo = identity.NewMemoryRepository()
	}

	var gw gateway.Gateway
	if d.Cfg.ProviderSecret != "" {
		gw = gateway.NewHTTPGateway(d.Cfg.ProviderBaseURL, d.Cfg.ProviderSecret, d.Cfg.ProviderTimeout)
	} else {
		gw = gateway.StaticGateway{}
	}

	postbackURL := ""
	if d.Cfg.PublicWebhookBase != "" {
		postbackURL = d.Cfg.PublicWebhookBase + "/api/v1/webhooks/provider"
	}

	depositSvc, err := deposit.NewService(store, gw, deposit.Options{
		Notifier:             notification.NewLoggerNotifier(d.Logger),
		Metrics:              metrics.New(),
		Logger:               d.Logger,
		MinDepositMinorUnits: d.Cfg.MinDepositMinorUnits,
		PostbackURL:          postbackURL,
	})
	if err != nil {
		return err
	}

	identitySvc := identity.NewService(userRepo)
	tokenSvc := auth.NewService(d.Cfg, userRepo)
	authHandler := auth.NewHandler(identitySvc, tokenSvc, depositSvc, d.Cfg.WelcomeBonusMinorUnits, d.Logger)
	depositHandler := deposit.NewHandler(depositSvc, userRepo)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes. The webhook is unauthenticated: the provider calls it
	// from outside and retries until it gets a 2xx.
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)
	RegisterWebhookRoutes(api, depositHandler)

	// Protected routes.
	jwtmw := middleware.JWTAuth(tokenSvc)
	protected := api.Group("", jwtmw)
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		user, err := userRepo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":    user.ID,
			"name":       user.Name,
			"email":      user.Email,
			"created_at": user.CreatedAt,
		})
	})

	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterWalletRoutes(protected, depositHandler, idem)

	return nil
}
