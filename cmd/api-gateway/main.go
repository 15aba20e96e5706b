package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/cyberguard-api/api/swagger"
	"github.com/noah-isme/cyberguard-api/internal/handler"
	"github.com/noah-isme/cyberguard-api/internal/models"
	"github.com/noah-isme/cyberguard-api/internal/repository"
	"github.com/noah-isme/cyberguard-api/internal/service"
	"github.com/noah-isme/cyberguard-api/pkg/cache"
	"github.com/noah-isme/cyberguard-api/pkg/config"
	"github.com/noah-isme/cyberguard-api/pkg/database"
	"github.com/noah-isme/cyberguard-api/pkg/jobs"
	"github.com/noah-isme/cyberguard-api/pkg/logger"
	"github.com/noah-isme/cyberguard-api/pkg/mqtt"
)

// @title CyberGuard API
// @version 1.0.0
// @description Cyberbullying incident reporting, critical area analysis and escalation to cybercrime authorities.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type reportStore interface {
	ListAll(ctx context.Context) ([]models.Report, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Report, error)
	GetByID(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error)
	Create(ctx context.Context, report *models.Report) error
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error
}

type forwarder interface {
	Forward(ctx context.Context, notice service.AuthorityNotice) error
}

type publisher interface {
	PublishJSON(ctx context.Context, suffix string, v interface{}) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, critical area cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	var store reportStore
	switch cfg.Storage.ReportDriver {
	case config.StoreDriverMemory:
		logr.Warn("reports are kept in memory and will not survive a restart")
		store = repository.NewMemoryReportStore()
	default:
		store = repository.NewReportRepository(db)
	}
	users := repository.NewUserRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.ServiceName, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.CriticalAreas.CacheTTL, logr, cfg.CriticalAreas.CacheEnabled)

	analyzer := service.NewCriticalAreaAnalyzer(service.AnalyzerConfig{
		Thresholds: service.SeverityThresholds{
			Medium:   cfg.CriticalAreas.SeverityMediumFloor,
			High:     cfg.CriticalAreas.SeverityHighFloor,
			Critical: cfg.CriticalAreas.SeverityCritFloor,
		},
		MinClusterSize: cfg.CriticalAreas.MinClusterSize,
		MinPatternSize: cfg.Escalation.MinPatternSize,
	}, logr)

	var authority forwarder
	if cfg.Escalation.WebhookURL != "" {
		authority = service.NewAuthorityClient(service.AuthorityClientConfig{
			URL:     cfg.Escalation.WebhookURL,
			Token:   cfg.Escalation.WebhookToken,
			Timeout: cfg.Escalation.WebhookTimeout,
			Retries: cfg.Escalation.WebhookRetries,
		}, logr)
	}

	validate := validator.New()
	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	reportSvc := service.NewReportService(store, cacheSvc, validate, logr)
	areaSvc := service.NewCriticalAreaService(store, analyzer, cacheSvc, metrics, logr, cfg.CriticalAreas.CacheTTL)
	escalationSvc := service.NewEscalationService(store, analyzer, authority, cacheSvc, metrics, logr, service.EscalationConfig{
		PortalURL:      cfg.Escalation.PortalURL,
		MinPatternSize: cfg.Escalation.MinPatternSize,
	})
	exportSvc := service.NewExportService(areaSvc, nil, logr)

	stopHotspots := startHotspotMonitor(ctx, cfg, logr, areaSvc, escalationSvc, metrics)
	defer stopHotspots()

	checks := map[string]handler.Pinger{
		"postgres": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }
	}

	router := newRouter(cfg, logr, routeDeps{
		auth:       handler.NewAuthHandler(authSvc),
		reports:    handler.NewReportHandler(reportSvc),
		areas:      handler.NewCriticalAreaHandler(areaSvc, escalationSvc, exportSvc, reportSvc),
		metrics:    handler.NewMetricsHandler(metrics, checks),
		tokens:     authSvc,
		audit:      users,
		observer:   metrics,
		enableDocs: cfg.Env != config.EnvProduction,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "report_store", cfg.Storage.ReportDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startHotspotMonitor launches the monitor and, when auto escalation is on,
// the escalation queue. The returned func stops both.
func startHotspotMonitor(ctx context.Context, cfg *config.Config, logr *zap.Logger, areas *service.CriticalAreaService, escalation *service.EscalationService, metrics *service.MetricsService) func() {
	if cfg.Hotspots.ScanInterval <= 0 {
		return func() {}
	}

	var alerts publisher
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Enabled {
		p, err := mqtt.NewPublisher(cfg.MQTT, logr)
		if err != nil {
			logr.Warn("mqtt unavailable, hotspot alerts will only be logged", zap.Error(err))
		} else {
			mqttPub, alerts = p, p
		}
	}

	var queue *jobs.Queue
	var enqueuer interface{ Enqueue(jobs.Job) error }
	if cfg.Hotspots.AutoEscalate {
		worker := service.NewEscalationWorker(escalation, logr)
		queue = jobs.NewQueue("escalations", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Hotspots.Workers,
			MaxRetries: cfg.Hotspots.MaxRetries,
			RetryDelay: cfg.Hotspots.RetryDelay,
			Logger:     logr,
		})
		queue.Start(ctx)
		enqueuer = queue
	}

	monitor := service.NewHotspotMonitor(areas, alerts, enqueuer, metrics, logr, service.HotspotConfig{
		Interval:             cfg.Hotspots.ScanInterval,
		AlertSeverity:        models.Severity(strings.ToLower(cfg.Hotspots.AlertSeverity)),
		AutoEscalate:         cfg.Hotspots.AutoEscalate,
		AutoEscalateSeverity: models.Severity(strings.ToLower(cfg.Hotspots.AutoEscalateSeverity)),
	})
	monitorCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(monitorCtx)
	}()

	return func() {
		cancel()
		<-done
		if queue != nil {
			queue.Stop()
		}
		if mqttPub != nil {
			mqttPub.Close()
		}
	}
}
