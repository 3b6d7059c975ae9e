package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/sumire/autopost/internal/config"
	"github.com/sumire/autopost/internal/joblog"
	"github.com/sumire/autopost/internal/repository"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autopost",
		Short:         "Scheduled content generation and publishing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		jobsCmd(),
		postsCmd(),
		tokenCmd(),
	)
	return root
}

// app is the state shared by every command.
type app struct {
	cfg   config.Config
	db    *sqlx.DB
	feed  *joblog.RedisFeed
	jobs  *repository.JobRepository
	posts *repository.PostJobRepository
	logs  *joblog.Sink
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	db, err := repository.Open(ctx, repository.Config{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{
		cfg:   cfg,
		db:    db,
		jobs:  repository.NewJobRepository(db),
		posts: repository.NewPostJobRepository(db),
	}

	var feed joblog.Feed
	if cfg.RedisURL != "" {
		f, err := joblog.NewRedisFeed(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("live progress feed disabled", "error", err)
		} else {
			a.feed = f
			feed = f
		}
	}
	a.logs = joblog.New(repository.NewJobLogRepository(db), feed, slog.Default())
	return a, nil
}

func (a *app) Close() error {
	if a.feed != nil {
		_ = a.feed.Close()
	}
	return a.db.Close()
}
