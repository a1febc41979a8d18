package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-crm/internal/activities"
	"github.com/odyssey-erp/odyssey-crm/internal/app"
	"github.com/odyssey-erp/odyssey-crm/internal/documents"
	"github.com/odyssey-erp/odyssey-crm/internal/modules"
	"github.com/odyssey-erp/odyssey-crm/internal/notify"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/rbac"
	"github.com/odyssey-erp/odyssey-crm/internal/roles"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/jobs"
)

func main() {
	seedModules := flag.Bool("seed-modules", false, "upsert the default module catalog and exit")
	ensureRoles := flag.Int64("ensure-roles", 0, "create the system roles for the given company id and exit")
	flag.Parse()

	if app.SkipStartup("api", nil) {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	activity := shared.NewActivityLogger(dbpool, logger)
	metrics := observability.NewMetrics()

	registry := modules.NewRegistry(modules.NewRepository(dbpool), logger)
	rbacCache := rbac.NewCache(redisClient, cfg.RBACCacheTTL, logger)
	rbacService := rbac.NewService(rbac.NewRepository(dbpool), registry, rbacCache, activity, logger)
	rbacMiddleware := rbac.NewMiddleware(rbacService)
	rolesService := roles.NewService(roles.NewRepository(dbpool), rbacService, activity, logger)

	if *seedModules {
		if err := registry.Seed(ctx, modules.DefaultCatalog); err != nil {
			logger.Error("seed modules", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("module catalog seeded", slog.Int("modules", len(modules.DefaultCatalog)))
		return
	}
	if *ensureRoles > 0 {
		created, err := rolesService.EnsureSystemRoles(ctx, *ensureRoles)
		if err != nil {
			logger.Error("ensure system roles", slog.Int64("company_id", *ensureRoles), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("system roles ensured", slog.Int64("company_id", *ensureRoles), slog.Int("roles", len(created)))
		return
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts, cfg.NotifyQueue)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	dispatcher := notify.NewDispatcher(jobClient, metrics, logger)

	documentsService := documents.NewService(
		documents.NewRepository(dbpool),
		dispatcher,
		metrics,
		activity,
		logger,
		documents.WithNumberingAttempts(cfg.NumberingMaxAttempts),
	)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		ModulesHandler:     modules.NewHandler(logger, registry),
		RolesHandler:       roles.NewHandler(logger, rolesService, rbacService, rbacMiddleware),
		PermissionsHandler: rbac.NewHandler(rbacService, rbacMiddleware),
		DocumentsHandler:   documents.NewHandler(logger, documentsService, rbacMiddleware),
		ActivitiesHandler:  activities.NewHandler(logger, activity, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, cfg.NotifyQueue, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
