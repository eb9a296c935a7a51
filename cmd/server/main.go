package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "strconv"
    "sync"
    "syscall"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/config"
    "github.com/iliyamo/game-ground/internal/database"
    "github.com/iliyamo/game-ground/internal/handler"
    "github.com/iliyamo/game-ground/internal/logging"
    "github.com/iliyamo/game-ground/internal/metrics"
    "github.com/iliyamo/game-ground/internal/middleware"
    "github.com/iliyamo/game-ground/internal/notify"
    "github.com/iliyamo/game-ground/internal/queue"
    "github.com/iliyamo/game-ground/internal/repository"
    "github.com/iliyamo/game-ground/internal/router"
    "github.com/iliyamo/game-ground/internal/service"
)

func main() {
    cfg := config.Load()
    logger, err := logging.New(cfg.LogLevel, cfg.Env)
    if err != nil {
        panic(err)
    }
    defer func() { _ = logger.Sync() }()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        logger.Fatal("database unavailable", zap.Error(err))
    }
    defer db.Close()
    schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
    if err := database.EnsureSchema(schemaCtx, db); err != nil {
        logger.Fatal("schema", zap.Error(err))
    }
    cancelSchema()

    rdb := config.NewRedisClient(logger)
    if rdb != nil {
        defer rdb.Close()
    }
    m := metrics.New()
    hub := notify.NewHub(logger)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    var workers sync.WaitGroup

    var events service.EventPublisher = queue.LogPublisher{Logger: logger.Named("events")}
    if cfg.Queue.Enabled {
        events = queue.NewPublisher(cfg.Queue.URL, logger)
        consumer := queue.NewConsumer(cfg.Queue.URL, cfg.Queue.LogDir, logger)
        workers.Add(1)
        go func() {
            defer workers.Done()
            if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
                logger.Error("session event consumer stopped", zap.Error(err))
            }
        }()
    }

    // Repositories
    store := repository.NewStore(db)
    users := repository.NewUserRepo(db)
    tokens := repository.NewTokenRepo(db)
    branches := repository.NewBranchRepo(db)
    categories := repository.NewCategoryRepo(db)
    devices := repository.NewDeviceRepo(db)
    games := repository.NewGameRepo(db)
    snacks := repository.NewSnackRepo(db)
    prices := repository.NewPricingRepo(db)
    sessions := repository.NewSessionRepo(db)

    sessionSvc := service.NewSessionService(service.SessionDeps{
        Tx:       store,
        Sessions: sessions,
        Pricing:  prices,
        Snacks:   snacks,
        Events:   events,
        Metrics:  m,
        Logger:   logger,
    })
    deviceSvc := service.NewDeviceService(store, sessionSvc, m, logger)

    cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, m, logger)
    deviceSvc.OnRepair(func(ctx context.Context, branchID uint64) {
        cache.Bump(ctx, strconv.FormatUint(branchID, 10))
    })

    var notified service.NotifiedStore = service.NewMemoryNotified()
    if rdb != nil {
        notified = service.NewRedisNotified(rdb, "gg:notified")
    }
    watcher := service.NewExpiryWatcher(sessions, notified, hub, cfg.Workers.ExpiryLeadWindow, m, logger)
    workers.Add(2)
    go func() {
        defer workers.Done()
        watcher.Run(ctx, cfg.Workers.ExpiryInterval)
    }()
    go func() {
        defer workers.Done()
        deviceSvc.RunReconciler(ctx, cfg.Workers.ReconcileInterval)
    }()

    e := echo.New()
    e.HideBanner = true
    e.Use(echomw.RequestID())
    e.Use(m.Middleware())
    e.Use(middleware.RequestLogger(logger))
    e.Use(echomw.Recover())

    router.Register(e, router.Handlers{
        Health:    handler.NewHealthHandler(db, rdb),
        Auth:      handler.NewAuthHandler(cfg, users, tokens, branches, logger),
        Branches:  handler.NewBranchHandler(branches, users, logger),
        Staff:     handler.NewStaffHandler(users, branches, cfg.BcryptCost, logger),
        Devices:   handler.NewDeviceHandler(categories, devices, deviceSvc, logger),
        Games:     handler.NewGameHandler(games, logger),
        Snacks:    handler.NewSnackHandler(snacks, logger),
        Pricing:   handler.NewPricingHandler(prices, logger),
        Sessions:  handler.NewSessionHandler(sessionSvc, logger),
        Dashboard: handler.NewDashboardHandler(repository.NewDashboardRepo(db), logger),
        Notify:    handler.NewNotifyHandler(hub),
    }, router.Options{
        JWTSecret:   cfg.JWTSecret,
        Cache:       cache,
        RateLimit:   middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger),
        Idempotency: middleware.NewIdempotency(config.LoadIdempotencyConfig(), rdb, logger),
        Metrics:     m,
    })

    addr := ":" + cfg.Port
    go func() {
        logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
        if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Fatal("http server", zap.Error(err))
        }
    }()

    <-ctx.Done()
    logger.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := e.Shutdown(shutdownCtx); err != nil {
        logger.Error("http shutdown", zap.Error(err))
    }
    workers.Wait()
    sessionSvc.Wait()
}
