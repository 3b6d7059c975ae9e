package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumire/autopost/internal/automation"
	"github.com/sumire/autopost/internal/automation/rodsession"
	"github.com/sumire/autopost/internal/blogger"
	"github.com/sumire/autopost/internal/captcha"
	"github.com/sumire/autopost/internal/config"
	"github.com/sumire/autopost/internal/content"
	"github.com/sumire/autopost/internal/handler"
	"github.com/sumire/autopost/internal/importer"
	"github.com/sumire/autopost/internal/postqueue"
	"github.com/sumire/autopost/internal/publish"
	"github.com/sumire/autopost/internal/service"
	"github.com/sumire/autopost/internal/worker"
)

// importDebounce is how long a dropped workbook must stay unchanged before import.
const importDebounce = 2 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the schedulers, the post queue and the operator API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	if err := cfg.RequireAuth(); err != nil {
		return err
	}
	logger := slog.Default()

	// orphans must be failed before anything can claim work
	recovery := worker.NewRecovery(a.logs, logger,
		worker.RecoveryTarget{Name: "jobs", Store: a.jobs},
		worker.RecoveryTarget{Name: "post_jobs", Store: a.posts},
	)
	if _, err := recovery.Run(ctx); err != nil {
		return fmt.Errorf("recover orphaned jobs: %w", err)
	}

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	generator := content.NewClient(content.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		Timeout:     cfg.OpenAITimeout,
		Language:    cfg.ContentLanguage,
	}, logger)

	registry := worker.NewRegistry(
		service.NewBlogPostProcessor(a.jobs, a.logs, generator, nil, nil, publisher, logger),
		service.NewTopicProcessor(a.jobs, a.logs, generator, logger),
	)
	scheduler := worker.NewScheduler(a.jobs, registry, a.logs, logger, cfg.JobPollInterval)

	runner := service.NewPostRunner(publisher, a.logs)
	queue := postqueue.New(a.posts, runner.Run, a.logs,
		postqueue.WithCooldown(cfg.PostCooldown),
		postqueue.WithLogger(logger),
	)
	posts := service.NewPostService(a.posts, a.logs, queue, service.PostServiceConfig{
		PollInterval: cfg.PostPollInterval,
		Headless:     cfg.BrowserHeadless,
	}, logger)
	imp := importer.New(posts, cfg.ImportLocation, logger)

	auth := service.NewAuthService(service.AuthConfig{JWTSecret: cfg.JWTSecret})
	e := handler.NewRouter(handler.Services{
		Auth:     auth,
		Jobs:     service.NewJobService(a.jobs, a.logs),
		Posts:    posts,
		Importer: imp,
		Queue:    queue,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil {
				logger.Error("background task stopped", "task", name, "error", err)
			}
		}()
	}
	start("job scheduler", scheduler.Run)
	start("post poller", posts.Run)
	if cfg.ImportDir != "" {
		start("import watcher", func(ctx context.Context) error {
			return imp.Watch(ctx, cfg.ImportDir, importDebounce)
		})
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	wg.Wait()
	if err := queue.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("post queue shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

func newPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger) (*publish.Publisher, error) {
	profiles, err := config.LoadDestinations(cfg.DestinationsFile)
	if err != nil {
		return nil, err
	}

	var solver automation.ChallengeSolver
	if cfg.CaptchaURL != "" {
		solver = captcha.NewClient(captcha.Config{URL: cfg.CaptchaURL, APIKey: cfg.CaptchaAPIKey}, logger)
	} else {
		logger.Warn("CAPTCHA_URL not set; posts that hit a challenge will fail")
	}
	forum := automation.New(
		rodsession.New(logger),
		automation.NewFileCookieStore(cfg.CookieDir),
		solver,
		profiles,
		cfg.Automation,
		logger,
	)

	var blog publish.BlogClient
	if cfg.BloggerEnabled() {
		blog = blogger.NewClient(ctx, blogger.Config{
			ClientID:     cfg.BloggerClientID,
			ClientSecret: cfg.BloggerClientSecret,
			RefreshToken: cfg.BloggerRefreshToken,
			BlogID:       cfg.BloggerBlogID,
		}, logger)
	} else {
		logger.Warn("blogger credentials not set; BLOG_POST jobs will fail")
	}
	return publish.New(blog, forum), nil
}
