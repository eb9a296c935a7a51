package main

import (
    "context"
    "flag"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/config"
    "github.com/iliyamo/game-ground/internal/database"
    "github.com/iliyamo/game-ground/internal/logging"
    "github.com/iliyamo/game-ground/internal/repository"
    "github.com/iliyamo/game-ground/internal/seed"
)

func main() {
    path := flag.String("file", "seed.yaml", "seed file to apply")
    check := flag.Bool("check", false, "validate the file and exit without touching the database")
    flag.Parse()

    cfg := config.Load()
    logger, err := logging.New(cfg.LogLevel, cfg.Env)
    if err != nil {
        panic(err)
    }
    defer func() { _ = logger.Sync() }()
    logger = logger.Named("seed")

    f, err := seed.Load(*path)
    if err != nil {
        logger.Fatal("invalid seed file", zap.String("file", *path), zap.Error(err))
    }
    if *check {
        logger.Info("seed file is valid", zap.String("file", *path), zap.Int("branches", len(f.Branches)))
        return
    }

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        logger.Fatal("database unavailable", zap.Error(err))
    }
    defer db.Close()

    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
    defer cancel()
    if err := database.EnsureSchema(ctx, db); err != nil {
        logger.Fatal("schema", zap.Error(err))
    }

    s := &seed.Seeder{
        Branches:   repository.NewBranchRepo(db),
        Users:      repository.NewUserRepo(db),
        Categories: repository.NewCategoryRepo(db),
        Devices:    repository.NewDeviceRepo(db),
        Games:      repository.NewGameRepo(db),
        Snacks:     repository.NewSnackRepo(db),
        Pricing:    repository.NewPricingRepo(db),
        BcryptCost: cfg.BcryptCost,
        Logger:     logger,
    }
    rep, err := s.Apply(ctx, f)
    if err != nil {
        logger.Fatal("seed failed", zap.Error(err), zap.Any("partial", rep))
    }
    logger.Info("seed applied", zap.Any("report", rep))
}
