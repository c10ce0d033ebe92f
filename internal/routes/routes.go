package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rayenfassatoui/amen-bank/internal/agency"
	"github.com/rayenfassatoui/amen-bank/internal/audit"
	"github.com/rayenfassatoui/amen-bank/internal/auth"
	"github.com/rayenfassatoui/amen-bank/internal/config"
	"github.com/rayenfassatoui/amen-bank/internal/identity"
	"github.com/rayenfassatoui/amen-bank/internal/lifecycle"
	"github.com/rayenfassatoui/amen-bank/internal/middleware"
	"github.com/rayenfassatoui/amen-bank/internal/notification"
	"github.com/rayenfassatoui/amen-bank/internal/request"
	"github.com/rayenfassatoui/amen-bank/internal/seed"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory stores are used.
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
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		agencyRepo   agency.Repository
		identityRepo identity.Repository
		requestRepo  request.Repository
		auditLog     audit.Reader
		notifier     notification.Notifier
	)
	if d.DB != nil {
		agencyRepo = agency.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
		requestRepo = request.NewPostgresRepository(d.DB)
		auditLog = audit.NewPostgresStore(d.DB)
	} else {
		store := audit.NewMemoryStore()
		agencyRepo = agency.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
		requestRepo = request.NewMemoryRepository(store)
		auditLog = store
	}
	if d.Cache != nil {
		notifier = notification.NewRedisNotifier(d.Cache, notification.DefaultChannel)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	agencySvc := agency.NewService(agencyRepo)
	identitySvc := identity.NewService(identityRepo, agencySvc, d.Cfg.BcryptCost)
	authSvc := auth.NewService(d.Cfg, identitySvc, identityRepo)
	auditSvc := audit.NewService(auditLog)
	engine := lifecycle.NewEngine(lifecycle.Deps{
		Requests:  requestRepo,
		AuditLog:  auditLog,
		Agencies:  agencySvc,
		Passwords: identitySvc,
		Notifier:  notifier,
		Logger:    d.Logger,
		Currency:  d.Cfg.Currency,
	})

	// In-memory stores start empty; load the demo directory so the API is usable.
	if d.DB == nil {
		if err := seed.Run(context.Background(), seed.Deps{Agencies: agencySvc, Users: identitySvc, Engine: engine, Logger: d.Logger}); err != nil {
			return fmt.Errorf("seed memory stores: %w", err)
		}
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, auth.NewHandler(authSvc), middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit), middleware.JWTAuth(authSvc))

	var limiterStorage fiber.Storage
	if d.Cache != nil {
		limiterStorage = middleware.NewRedisStorage(d.Cache)
	}
	protected := api.Group("",
		middleware.JWTAuth(authSvc),
		middleware.RateLimit(limiterStorage, d.Cfg.RateLimitMax, d.Cfg.RateLimitWindow),
	)

	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	RegisterIdentityRoutes(protected, identity.NewHandler(identitySvc))
	RegisterAgencyRoutes(protected, agency.NewHandler(agencySvc))
	RegisterAuditRoutes(protected, audit.NewHandler(auditSvc))
	RegisterRequestRoutes(protected, lifecycle.NewHandler(engine), idempotency)

	return nil
}
