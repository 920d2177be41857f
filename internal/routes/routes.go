package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/mfi_wallet/internal/auth"
	"github.com/congo-pay/mfi_wallet/internal/config"
	"github.com/congo-pay/mfi_wallet/internal/funding"
	"github.com/congo-pay/mfi_wallet/internal/member"
	"github.com/congo-pay/mfi_wallet/internal/middleware"
	"github.com/congo-pay/mfi_wallet/internal/notification"
	"github.com/congo-pay/mfi_wallet/internal/payments"
	"github.com/congo-pay/mfi_wallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Rail moves money to and from linked accounts. Nil selects the
	// built-in static rail.
	Rail funding.Rail
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
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	walletSvc, err := newWalletService(d)
	if err != nil {
		return err
	}

	var memberRepo member.Repository
	if d.DB != nil {
		memberRepo = member.NewPostgresRepository(d.DB)
	} else {
		memberRepo = member.NewMemoryRepository()
	}
	memberSvc := member.NewService(memberRepo)
	authSvc := auth.NewService(d.Cfg, memberRepo)

	notifier := notification.NewLoggerNotifier(d.Logger)
	paymentSvc := payments.NewService(walletSvc, notifier, d.Logger)
	fundingSvc, err := funding.NewService(walletSvc, d.Rail, notifier, d.Logger)
	if err != nil {
		return err
	}

	validate := validator.New()
	walletHandler := wallet.NewHandler(walletSvc, validate)
	memberHandler := member.NewHandler(memberSvc, walletSvc, validate, d.Logger)
	authHandler := auth.NewHandler(memberSvc, authSvc, walletSvc, validate)
	paymentHandler := payments.NewHandler(paymentSvc, validate)
	fundingHandler := funding.NewHandler(fundingSvc, validate)

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterMemberRoutes(api, memberHandler)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMinute))

	// Registered ahead of the JWT group, whose empty prefix covers all of /api/v1.
	if d.Cfg.OperatorAPIKey != "" {
		RegisterOperatorRoutes(api.Group("/admin", middleware.OperatorAuth(d.Cfg.OperatorAPIKey)), walletHandler)
	}

	protected := api.Group("", middleware.JWTAuth(authSvc))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(protected, walletHandler, memberHandler)
	RegisterFundingRoutes(protected, fundingHandler)
	RegisterPaymentRoutes(protected, paymentHandler)

	return nil
}

func newWalletService(d Deps) (*wallet.Service, error) {
	loc, err := d.Cfg.Location()
	if err != nil {
		return nil, err
	}
	daily, transaction, monthly, err := d.Cfg.Limits()
	if err != nil {
		return nil, err
	}

	var repo wallet.Repository
	if d.DB != nil {
		repo = wallet.NewPostgresRepository(d.DB)
	} else {
		repo = wallet.NewMemoryRepository()
	}
	return wallet.NewService(repo, wallet.NewPolicy(loc, d.Cfg.EnforceMonthly), wallet.Settings{
		DefaultCurrency: d.Cfg.DefaultCurrency,
		DefaultLimits:   wallet.Limits{Daily: daily, Transaction: transaction, Monthly: monthly},
		ConflictRetries: d.Cfg.ConflictRetries,
	}, d.Logger), nil
}
