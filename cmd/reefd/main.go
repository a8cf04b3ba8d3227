// Package main runs reefd, Reef's scheduling daemon: it opens the catalog,
// wires the profile/import pipelines, starts the job scheduler, and serves
// until signalled to stop. Adapted from cmd/server/main.go's bootstrap
// order (encryption → database → repositories → services → background
// loops → wait-for-signal), dropping the HTTP/gRPC/auth surface the
// specification places out of scope.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/delta"
	"github.com/reefdata/reef/internal/destination"
	"github.com/reefdata/reef/internal/emailexport"
	"github.com/reefdata/reef/internal/encryption"
	"github.com/reefdata/reef/internal/importpipeline"
	"github.com/reefdata/reef/internal/metrics"
	"github.com/reefdata/reef/internal/notify"
	"github.com/reefdata/reef/internal/profilepipeline"
	"github.com/reefdata/reef/internal/scheduler"
	"github.com/reefdata/reef/internal/source"
	"github.com/reefdata/reef/internal/sqlclient"
	"github.com/reefdata/reef/internal/throttle"
	"github.com/reefdata/reef/internal/webhook"
)

var (
	version = "dev"
	commit  = "none"
)

type config struct {
	dbDriver     string
	dbDSN        string
	dataDir      string
	masterSecret string
	logLevel     string

	maxConcurrentJobs    int
	checkIntervalSeconds int

	emailSMTPServer string
	emailSMTPPort   int
	emailFrom       string
	notifyTo        string
	webhookURL      string
	webhookSecret   string

	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "reefd",
		Short: "reefd — Reef's scheduling daemon",
		Long: `reefd discovers due Jobs and Profiles, dispatches them through
the profile export and import execution pipelines, and applies delta-sync,
dependency gating, and notification throttling along the way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.dbDriver, "db-driver", envOrDefault("REEF_DB_DRIVER", "sqlite"), "Catalog driver (sqlite or postgres)")
	flags.StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("REEF_DB_DSN", "./reef.db"), "Catalog DSN or file path for SQLite")
	flags.StringVar(&cfg.dataDir, "data-dir", envOrDefault("REEF_DATA_DIR", "./data"), "Directory for the encryption keypair")
	flags.StringVar(&cfg.masterSecret, "master-secret", envOrDefault("REEF_MASTER_SECRET", ""), "Secret wrapping the encryption private key (empty = derive from REEF_ENCRYPTION_KEY / fallback)")
	flags.StringVar(&cfg.logLevel, "log-level", envOrDefault("REEF_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flags.IntVar(&cfg.maxConcurrentJobs, "max-concurrent-jobs", envIntOrDefault("REEF_MAX_CONCURRENT_JOBS", 10), "Worker pool size")
	flags.IntVar(&cfg.checkIntervalSeconds, "check-interval-seconds", envIntOrDefault("REEF_CHECK_INTERVAL_SECONDS", 10), "Scheduler tick interval")
	flags.StringVar(&cfg.emailSMTPServer, "notify-smtp-server", envOrDefault("REEF_NOTIFY_SMTP_SERVER", ""), "SMTP server for notification email (empty disables email notifications)")
	flags.IntVar(&cfg.emailSMTPPort, "notify-smtp-port", envIntOrDefault("REEF_NOTIFY_SMTP_PORT", 587), "SMTP port for notification email")
	flags.StringVar(&cfg.emailFrom, "notify-from", envOrDefault("REEF_NOTIFY_FROM", "reef@localhost"), "From address for notification email")
	flags.StringVar(&cfg.notifyTo, "notify-to", envOrDefault("REEF_NOTIFY_TO", ""), "Comma-separated recipient list for notification email")
	flags.StringVar(&cfg.webhookURL, "notify-webhook-url", envOrDefault("REEF_NOTIFY_WEBHOOK_URL", ""), "Outbound webhook URL for notifications (empty disables)")
	flags.StringVar(&cfg.webhookSecret, "notify-webhook-secret", envOrDefault("REEF_NOTIFY_WEBHOOK_SECRET", ""), "HMAC secret signing outbound notification webhooks")
	flags.StringVar(&cfg.metricsAddr, "metrics-addr", envOrDefault("REEF_METRICS_ADDR", ":9090"), "Listen address for the Prometheus /metrics endpoint (empty disables it)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reefd %s (commit: %s)\n", version, commit)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	masterSecret := cfg.masterSecret
	if masterSecret == "" {
		masterSecret = encryption.LoadMasterSecret("", os.Getenv("REEF_ENCRYPTION_KEY"), ".env")
	}
	encSvc, err := encryption.Open(cfg.dataDir, masterSecret)
	if err != nil {
		return fmt.Errorf("open encryption service: %w", err)
	}
	catalog.SetEncryptionService(encSvc)

	// --- 2. Catalog ---
	store, err := catalog.NewStore(catalog.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		if sqlDB, err := store.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	// --- 3. Throttler ---
	throttler := throttle.New(nil)
	go throttler.Run()
	defer throttler.Stop()

	// --- Metrics ---
	recorder := metrics.New()
	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		metricsSrv := &http.Server{Addr: cfg.metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	// --- 4. Notify ---
	notifySvc := notify.New(notify.Config{
		Email: emailexport.DestinationConfig{
			Provider:   emailexport.ProviderSMTP,
			SMTPServer: cfg.emailSMTPServer,
			SMTPPort:   cfg.emailSMTPPort,
			Security:   emailexport.SecurityAuto,
			FromAddress: cfg.emailFrom,
			FromName:   "Reef",
		},
		EmailRecipients: splitCSV(cfg.notifyTo),
		WebhookURL:      cfg.webhookURL,
		WebhookSecret:   cfg.webhookSecret,
	}, throttler, logger)
	notifySvc.SetMetrics(recorder)

	// --- 5. Destination / source registries, delta engine ---
	destinations := destination.NewRegistry(logger)
	sources := source.NewRegistry(logger)
	deltaEngine := delta.NewEngine(store.DeltaState)

	// --- 6. Pipelines ---
	profiles := profilepipeline.New(store, deltaEngine, destinations, notifySvc, logger, openConnection)
	imports := importpipeline.New(store, deltaEngine, sources, notifySvc, logger, openConnection)

	// --- 7. Scheduler ---
	executor := &pipelineExecutor{store: store, profiles: profiles, imports: imports}
	sched, err := scheduler.New(scheduler.Config{
		MaxConcurrentJobs:    cfg.maxConcurrentJobs,
		CheckIntervalSeconds: cfg.checkIntervalSeconds,
	}, store, executor, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.SetMetrics(recorder)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	// --- 8. Webhook service (used only if an operator wires an HTTP front
	// end to it; exposed here so reefctl and any future listener share one
	// rate limiter).
	_ = webhook.NewService(store.Webhooks, &schedulerTrigger{sched}, webhook.NewRateLimiter(nil))

	logger.Info("reefd started",
		zap.String("version", version),
		zap.String("db_driver", cfg.dbDriver),
		zap.Int("max_concurrent_jobs", cfg.maxConcurrentJobs),
	)

	<-ctx.Done()
	logger.Info("shutting down reefd")
	return nil
}

// pipelineExecutor implements scheduler.Executor, dispatching a profileID to
// whichever pipeline owns it: a plain Profile runs the export pipeline, an
// ImportProfile runs the import pipeline.
type pipelineExecutor struct {
	store    *catalog.Store
	profiles *profilepipeline.Pipeline
	imports  *importpipeline.Pipeline
}

func (e *pipelineExecutor) RunProfile(ctx context.Context, profileID uuid.UUID, triggeredBy catalog.TriggeredBy) error {
	if profile, err := e.store.Profiles.GetByID(ctx, profileID); err == nil {
		return e.profiles.Run(ctx, profile, triggeredBy).Err
	}
	importProfile, err := e.store.ImportProfiles.GetByID(ctx, profileID)
	if err != nil {
		return fmt.Errorf("reefd: no profile or import profile with id %s: %w", profileID, err)
	}
	return e.imports.Run(ctx, importProfile, triggeredBy).Err
}

// schedulerTrigger adapts *scheduler.Scheduler to webhook.Trigger.
type schedulerTrigger struct {
	sched *scheduler.Scheduler
}

func (t *schedulerTrigger) TriggerNow(ctx context.Context, targetID uuid.UUID) error {
	return t.sched.TriggerNow(ctx, targetID)
}

func (t *schedulerTrigger) TriggerJobNow(ctx context.Context, jobID uuid.UUID) error {
	return t.sched.TriggerJobNow(ctx, jobID)
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func openConnection(ctx context.Context, conn *catalog.Connection) (sqlclient.Client, error) {
	var dialect sqlclient.Dialect
	switch conn.Kind {
	case catalog.ConnectionSqlServer:
		dialect = sqlclient.DialectSQLServer
	case catalog.ConnectionMySQL:
		dialect = sqlclient.DialectMySQL
	default:
		dialect = sqlclient.DialectPostgres
	}
	return sqlclient.Open(sqlclient.Config{Dialect: dialect, DSN: string(conn.ConnectionString)})
}

func splitCSV(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
