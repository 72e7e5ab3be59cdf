package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/auth"
	"github.com/mockbank/mockbank/internal/banking"
	"github.com/mockbank/mockbank/internal/config"
	"github.com/mockbank/mockbank/internal/ledger"
	"github.com/mockbank/mockbank/internal/lock"
	"github.com/mockbank/mockbank/internal/middleware"
	"github.com/mockbank/mockbank/internal/notification"
	"github.com/mockbank/mockbank/internal/seed"
	"github.com/mockbank/mockbank/internal/session"
	"github.com/mockbank/mockbank/internal/statement"
)

const (
	accountLockTTL  = 10 * time.Second
	accountLockWait = 5 * time.Second
	breakerOpenFor  = 30 * time.Second
	pdfSlotWait     = 5 * time.Second
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory backends are used.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Seed, when set, is applied to the stores before routes are served.
	Seed *seed.Seed
}

// Services holds the wired application services.
type Services struct {
	Ledger     ledger.Ledger
	Accounts   *account.Service
	Guard      *session.Guard
	Auth       *auth.Service
	Banking    *banking.Service
	Statements *statement.Service
	Notifier   notification.Notifier
	breaker    *notification.RedisNotifier
}

// NewServices builds every service on top of the configured backends.
func NewServices(d Deps) (*Services, error) {
	node, err := snowflake.NewNode(d.Cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	loc := d.Cfg.Location()

	var (
		led      ledger.Ledger
		accounts account.Repository
	)
	if d.DB != nil {
		led = ledger.NewPostgresLedger(d.DB, ledger.WithNode(node))
		accounts = account.NewPostgresRepository(d.DB)
	} else {
		led = ledger.NewInMemory(ledger.WithNode(node))
		accounts = account.NewMemoryRepository()
	}

	var (
		store  session.Store
		locker lock.Locker
	)
	notifiers := notification.Fanout{notification.NewLoggerNotifier(d.Logger)}
	svcs := &Services{Ledger: led}
	if d.Cache != nil {
		store = session.NewRedisStore(d.Cache)
		locker = lock.NewRedis(d.Cache, accountLockTTL, accountLockWait)
		svcs.breaker = notification.NewRedisNotifier(d.Cache, breakerOpenFor)
		notifiers = append(notifiers, svcs.breaker)
	} else {
		store = session.NewMemoryStore()
		locker = lock.NewLocal()
	}
	svcs.Notifier = notifiers

	svcs.Accounts = account.NewService(accounts, led)
	svcs.Guard = session.NewGuard(store, d.Cfg.SessionWindow)
	svcs.Auth = auth.NewService(svcs.Accounts, svcs.Guard, auth.Settings{
		Secret:      []byte(d.Cfg.JWTSecret),
		Issuer:      d.Cfg.AppName,
		AccessTTL:   d.Cfg.AccessTokenTTL,
		RecoveryTTL: d.Cfg.RecoveryTokenTTL,
	}, auth.WithNotifier(svcs.Notifier))
	svcs.Banking = banking.NewService(led, locker,
		banking.WithLimits(banking.Limits{
			MaxTransaction: d.Cfg.MaxTransactionAmount,
			DailyDebit:     d.Cfg.DailyTransactionLimit,
		}),
		banking.WithLocation(loc),
		banking.WithSessions(svcs.Guard),
		banking.WithNotifier(svcs.Notifier),
		banking.WithLogger(d.Logger),
	)
	svcs.Statements = statement.NewService(led, svcs.Accounts,
		statement.WithLocation(loc),
		statement.WithRenderLimit(d.Cfg.StatementConcurrency, pdfSlotWait),
	)
	return svcs, nil
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	svcs, err := NewServices(d)
	if err != nil {
		return nil, err
	}
	if d.Seed != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := seed.EnsureInitialStore(ctx, svcs.Accounts, svcs.Ledger, *d.Seed, d.Logger); err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	var cache redis.UniversalClient
	if d.Cache != nil {
		cache = d.Cache
		app.Use(middleware.Idempotency(cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	var notifierState func() string
	if svcs.breaker != nil {
		notifierState = svcs.breaker.State
	}
	RegisterHealthRoutes(app, d, notifierState)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	authHandler := auth.NewHandler(svcs.Auth)
	accountHandler := account.NewHandler(svcs.Accounts, svcs.Guard, svcs.Notifier, d.Logger)

	// Public routes go first; the protected group's middleware matches every
	// path registered after it.
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(cache, d.Cfg.LoginAttemptsPerMinute))
	RegisterAccountRoutes(api, accountHandler)

	protected := api.Group("", middleware.SessionAuth(svcs.Auth, svcs.Guard))
	RegisterProfileRoutes(protected, accountHandler)
	RegisterSessionRoutes(protected, authHandler)
	RegisterBankingRoutes(protected, banking.NewHandler(svcs.Banking))
	RegisterStatementRoutes(protected, statement.NewHandler(svcs.Statements))

	return svcs, nil
}
