package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

type stores struct {
	users   repository.UserRepository
	tickets repository.TicketRepository
	audit   repository.AuditRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var st stores
	if pg.Enabled() {
		st = stores{
			users:   repository.NewUserRepository(pg.Pool),
			tickets: repository.NewTicketRepository(pg.Pool),
			audit:   repository.NewAuditRepository(pg.Pool),
		}
	} else {
		mem := repository.NewMemoryStore()
		st = stores{users: mem.Users(), tickets: mem.Tickets(), audit: mem.Audit()}
	}

	deps := map[string]handlers.Pinger{"postgres": pg, "redis": nil}
	var throttle service.LoginLimiter
	if cfg.Login.ThrottleEnabled {
		rdb := persistence.OpenThrottleStore(ctx, cfg.Redis, logger)
		defer rdb.Close()
		deps["redis"] = rdb
		throttle = auth.NewLoginThrottle(rdb.Counters(), auth.ThrottleLimits{
			IPLimit:      cfg.Login.IPLimit,
			EmailLimit:   cfg.Login.EmailLimit,
			Window:       cfg.Login.Window(),
			FailLimit:    cfg.Login.FailLimit,
			LockDuration: cfg.Login.LockDuration(),
		})
	}

	metrics := observability.NewMetrics(nil)
	engine := auth.NewEngine(auth.NewCatalog())
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	trail := audit.NewTrail(st.audit, logger,
		audit.WithObserver(metrics),
		audit.WithTimeout(cfg.Audit.WriteTimeout()))

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification), logger)

	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:     st.users,
		Engine:       engine,
		TokenManager: tokens,
		Hasher:       hasher,
		Throttle:     throttle,
		Audit:        trail,
		Logger:       logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: st.tickets,
		UserRepo:   st.users,
		Engine:     engine,
		Audit:      trail,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	adminService := service.NewAdminUserService(service.AdminUserDependencies{
		UserRepo: st.users,
		Engine:   engine,
		Hasher:   hasher,
		Audit:    trail,
		Metrics:  metrics,
		Logger:   logger,
	})
	auditQuery := service.NewAuditQueryService(st.audit, engine)

	app := httptransport.NewServer(httptransport.ServerConfig{
		AppName:        cfg.App.Name,
		RequestTimeout: cfg.App.RequestTimeout(),
		Logger:         logger,
		Metrics:        metrics,
		Routes: httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
			Auth:           handlers.NewAuthHandler(authService),
			Tickets:        handlers.NewTicketsHandler(ticketService),
			AdminUsers:     handlers.NewAdminUsersHandler(adminService, engine),
			AuditLogs:      handlers.NewAuditLogsHandler(auditQuery),
			AuthMiddleware: auth.NewAuthMiddleware(tokens, st.users, logger),
			Engine:         engine,
		},
	})

	go func() {
		logger.Info("http server starting",
			zap.String("addr", cfg.App.Addr()),
			zap.Bool("memory_store", !pg.Enabled()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
