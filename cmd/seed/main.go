// Команда seed создаёт начальные аккаунты администратора и демо-оператора.
// Повторный запуск существующие аккаунты не трогает.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/magabrotheeeer/parkease-coordinator/internal/config"
	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/jwt"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/migrations"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/auth"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/session"
	"github.com/magabrotheeeer/parkease-coordinator/internal/storage/repository"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("seed failed", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("seed completed")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return err
	}

	bus := eventbus.New(logger, nil)
	registry := session.New(logger, db, bus)
	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL, cfg.RefreshTokenTTL)
	service := auth.New(logger, db, registry, tokens, cfg.Lifecycle)

	return service.Seed(ctx, cfg.Seed)
}
