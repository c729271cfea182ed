package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orrn/fileprint/internal/api"
	"github.com/orrn/fileprint/internal/api/middleware"
	"github.com/orrn/fileprint/internal/config"
	"github.com/orrn/fileprint/internal/core"
	"github.com/orrn/fileprint/internal/db"
	"github.com/orrn/fileprint/internal/fetch"
	"github.com/orrn/fileprint/internal/hostipc"
	"github.com/orrn/fileprint/internal/janitor"
	"github.com/orrn/fileprint/internal/logging"
	"github.com/orrn/fileprint/internal/printer"
	"github.com/orrn/fileprint/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for auth.password_hash and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := middleware.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer store.Close()

	instanceID := uuid.NewString()
	logger = logger.With(zap.String("instance_id", instanceID))
	logger.Info("starting fileprint",
		zap.Int("port", cfg.Server.Port),
		zap.String("cache_dir", cfg.Print.CacheDir),
		zap.String("device_name", cfg.Print.DeviceName),
		zap.Bool("host_ipc", cfg.Host.IPC),
	)

	if err := os.MkdirAll(cfg.Print.CacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	var channel *hostipc.Channel
	if cfg.Host.IPC {
		channel = hostipc.New(os.Stdin, os.Stdout, logger)
	}

	commands := printer.NewCommandPrinter(cfg.Print.Command, logger)
	var images core.ImagePrinter = commands
	if cfg.Print.ImagePrinter == config.ImagePrinterHost {
		images = printer.NewHostImagePrinter(channel)
	}

	pipeline := core.NewPipeline(
		core.NewScratchAllocator(cfg.Print.CacheDir),
		fetch.NewHTTPFetcher(logger),
		commands,
		images,
		core.PipelineConfig{
			DeviceName:   cfg.Print.DeviceName,
			FetchTimeout: cfg.Print.FetchTimeout,
			TLSVerify:    cfg.Print.TLSVerify,
		},
		logger,
	)

	endpoints := make([]webhook.Endpoint, 0, len(cfg.Webhooks))
	for _, w := range cfg.Webhooks {
		endpoints = append(endpoints, webhook.Endpoint{Name: w.Name, URL: w.URL, Secret: w.Secret, Events: w.Events})
	}
	sender := webhook.NewWebhookSender(endpoints, webhook.WebhookConfig{}, logger)
	sender.Start()
	defer sender.Stop()

	scheduler := core.NewScheduler(pipeline,
		core.WithLogger(logger),
		core.WithObservers(db.NewAuditObserver(store, instanceID, logger), sender),
	)
	planner := core.NewPlanner(scheduler)

	sweeper := janitor.New(store.Jobs, janitor.Config{
		CacheDir:      cfg.Print.CacheDir,
		RetentionDays: cfg.Database.RetentionDays,
		Interval:      cfg.Janitor.Interval,
		StaleAfter:    cfg.Janitor.StaleAfter,
	}, logger)

	gin.SetMode(gin.ReleaseMode)
	deps := api.Deps{
		Planner: planner,
		Queue:   scheduler,
		History: store.Jobs,
		Auth:    middleware.NewAuthMiddleware(cfg.Auth.PasswordHash, cfg.Auth.JWTSecret),
		Logger:  logger,
	}
	if channel != nil {
		deps.Previewer = channel
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if channel != nil {
		g.Go(func() error {
			// The host owns our lifetime: once it closes stdin we shut down.
			defer cancel()
			return channel.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		scheduler.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
