package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/teaandpython/wodserver/internal/auth"
	"github.com/teaandpython/wodserver/internal/config"
	"github.com/teaandpython/wodserver/internal/db"
	"github.com/teaandpython/wodserver/internal/game"
	"github.com/teaandpython/wodserver/internal/mail"
	"github.com/teaandpython/wodserver/internal/model"
	"github.com/teaandpython/wodserver/internal/server"
)

const ConfigPath = "config/gameserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// .env is optional; EMAIL_USER/EMAIL_PASS may come from the shell.
	_ = godotenv.Load()

	cfgPath := ConfigPath
	if p := os.Getenv("WOD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadGameServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	slog.Info("war of dots server starting",
		"bind", cfg.BindAddress, "port", cfg.Port, "version", cfg.ProtocolVersion)

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	mailer := mail.NewSender(cfg.SMTP)
	authSvc := auth.NewService(database, mailer)

	registry := game.NewRegistry()
	sessions := game.NewSessionRunner(database, registry)
	rooms := game.NewRooms(registry, sessions)
	queues := map[model.Mode]*game.Queue{
		model.Mode1v1: game.NewQueue(),
		model.ModeV3:  game.NewQueue(),
		model.ModeV4:  game.NewQueue(),
		model.ModeV34: game.NewQueue(),
	}
	matchmaker := game.NewMatchmaker(queues, registry, sessions)

	srv := server.NewServer(cfg, authSvc, database, registry, rooms, queues)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("game server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return matchmaker.Run1v1(gctx)
	})
	g.Go(func() error {
		return matchmaker.RunV34(gctx)
	})
	g.Go(func() error {
		return rooms.Sweep(gctx)
	})
	g.Go(func() error {
		janitor(gctx, authSvc)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// janitor sweeps expired verification codes once a minute.
func janitor(ctx context.Context, authSvc *auth.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			authSvc.Codes().CleanExpired()
		}
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
