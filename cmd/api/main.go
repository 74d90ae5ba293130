package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-orchestrator/internal/audit"
	"call-orchestrator/internal/calls"
	"call-orchestrator/internal/classify"
	"call-orchestrator/internal/completion"
	"call-orchestrator/internal/config"
	"call-orchestrator/internal/crm"
	"call-orchestrator/internal/dedup"
	"call-orchestrator/internal/dispatch"
	"call-orchestrator/internal/httpapi"
	"call-orchestrator/internal/intake"
	"call-orchestrator/internal/telephony"
	"call-orchestrator/pkg/logger"
	"call-orchestrator/pkg/tracing"
	"call-orchestrator/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand(run).Run(rootCtx, os.Args); err != nil {
		slog.Error("orchestrator exited", "err", err)
		os.Exit(1)
	}
}

func newCommand(serve func(context.Context, config.Config) error) *cli.Command {
	return &cli.Command{
		Name:  "call-orchestrator",
		Usage: "Bridge CRM lead events to outbound voice calls and write call outcomes back",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Env file loaded before reading configuration (missing file is ignored)",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides LOG_LEVEL",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := loadEnvFile(command.String("env-file")); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if command.IsSet("log-level") {
				cfg.App.LogLevel = command.String("log-level")
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid flags: %w", err)
				}
			}
			return serve(ctx, cfg)
		},
	}
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Setup(ctx, "call-orchestrator", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("tracing shutdown failed", "err", err)
		}
	}()

	httpClient := &http.Client{Timeout: cfg.HTTPClient.Timeout}

	// CRM
	tokens := crm.NewTokenManager(cfg.HubSpot.BaseURL, crm.Credentials{
		AccessToken:  cfg.HubSpot.AccessToken,
		ClientID:     cfg.HubSpot.ClientID,
		ClientSecret: cfg.HubSpot.ClientSecret,
		RefreshToken: cfg.HubSpot.RefreshToken,
	}, httpClient, logger.Module(log, "crm.token"))

	var limiter *rate.Limiter
	if cfg.HubSpot.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HubSpot.RateLimitRPS), max(1, int(cfg.HubSpot.RateLimitRPS)))
	}
	crmClient := crm.NewClient(tokens, crm.Options{
		BaseURL:         cfg.HubSpot.BaseURL,
		HTTPClient:      httpClient,
		Limiter:         limiter,
		SummaryProperty: cfg.HubSpot.SummaryProperty,
		Logger:          logger.Module(log, "crm"),
	})

	// Call platform
	vapi := telephony.NewVapiProvider(telephony.VapiConfig{
		BaseURL:    cfg.Vapi.BaseURL,
		APIKey:     cfg.Vapi.APIKey,
		WorkflowID: cfg.Vapi.WorkflowID,
		WebhookURL: cfg.VapiCallbackURL(),
	}, httpClient)

	classifier, err := classify.New(ctx, cfg.LLM, httpClient, log)
	if err != nil {
		return fmt.Errorf("classifier init failed: %w", err)
	}

	// Dedup: shared across replicas when Redis is configured.
	var store dedup.Store = dedup.NewMemoryCache(cfg.Dedup.MaxKeys)
	if cfg.Redis.Addr != "" {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.Redis.Addr})
		if err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
		defer rdb.Close()
		store = dedup.NewRedisStore(rdb, "", 0)
	}
	guard := dedup.NewGuard(store, log)

	// Audit
	var auditRepo audit.Repository = audit.NewLogRepo(logger.Module(log, "audit"))
	if cfg.DB.URL != "" {
		db, err := utils.OpenPostgres(ctx, cfg.DB.URL, utils.PostgresPoolConfig{})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		defer db.Close()
		if err := audit.Migrate(ctx, db); err != nil {
			return fmt.Errorf("audit migrations failed: %w", err)
		}
		auditRepo = audit.NewPostgresRepo(db)
	}
	auditSvc := audit.NewService(auditRepo)

	// Workflows
	intakeSvc, err := intake.NewService(crmClient, vapi, auditSvc, intake.Options{
		PhoneRegion: cfg.Phone.DefaultRegion,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("intake init failed: %w", err)
	}
	completionHandler := completion.NewHandler(crmClient, classifier, calls.StatusMap{
		OpenDeal:    cfg.Statuses.OpenDeal,
		Unqualified: cfg.Statuses.Unqualified,
		Contacted:   cfg.Statuses.Contacted,
	}, auditSvc, log)

	jobs := dispatch.New(dispatch.Options{
		Workers:    cfg.Dispatch.Workers,
		QueueSize:  cfg.Dispatch.QueueSize,
		JobTimeout: cfg.Dispatch.JobTimeout,
		Logger:     log,
	})
	jobs.Start()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r,
		httpapi.Handlers{Dedup: guard, Jobs: jobs, Intake: intakeSvc},
		telephony.VapiWebhookHandler{
			Secret:     cfg.Vapi.WebhookSecret,
			Dedup:      guard,
			Jobs:       jobs,
			Completion: completionHandler,
		},
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"model_classifier", cfg.UsesModelClassifier(),
			"shared_dedup", cfg.Redis.Addr != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		// In-flight jobs get what is left of the deadline.
		if err := jobs.Shutdown(shutdownCtx); err != nil {
			log.Error("dispatcher shutdown failed", "err", err)
		}
		_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
		return nil
	})

	return g.Wait()
}
