package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/seqportal/runhub/internal/analysis"
	"github.com/seqportal/runhub/internal/annotate"
	"github.com/seqportal/runhub/internal/domain"
	"github.com/seqportal/runhub/internal/ingest"
	"github.com/seqportal/runhub/internal/payloadstore"
	"github.com/seqportal/runhub/internal/platform/env"
	"github.com/seqportal/runhub/internal/platform/httpserver"
	"github.com/seqportal/runhub/internal/platform/metrics"
	"github.com/seqportal/runhub/internal/platform/objectstore"
	"github.com/seqportal/runhub/internal/platform/postgres"
	repopg "github.com/seqportal/runhub/internal/repo/postgres"
	"github.com/seqportal/runhub/internal/relay"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("RUNHUB_HTTP_ADDR", ":8088")
	shutdownTimeout, err := env.Duration("RUNHUB_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	runningWindow, err := env.Duration("RUNHUB_RUNNING_REPEAT_WINDOW", domain.DefaultRunningWindow)
	if err != nil {
		logger.Error("invalid running repeat window", "error", err)
		os.Exit(2)
	}

	if path := strings.TrimSpace(env.String("RUNHUB_STATUS_ALIASES_FILE", "")); path != "" {
		if err := domain.LoadStatusAliases(path); err != nil {
			logger.Error("status alias overrides failed", "error", err)
			os.Exit(2)
		}
		logger.Info("status alias overrides loaded", "path", path)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	store := repopg.New(db)

	var publisher relay.Publisher
	relayCfg := relay.ConfigFromEnv()
	if relayCfg.Enabled() {
		natsPub, err := relay.NewNATSPublisher(relayCfg)
		if err != nil {
			logger.Error("nats unavailable", "error", err)
			os.Exit(1)
		}
		publisher = natsPub
		logger.Info("event relay on nats", "url", relayCfg.URL, "prefix", relayCfg.SubjectPrefix)
	} else {
		publisher = relay.NewLogPublisher(logger)
		logger.Info("event relay on log only")
	}

	var blobs *payloadstore.Store
	offloadBytes, err := payloadstore.ThresholdFromEnv()
	if err != nil {
		logger.Error("invalid payload offload config", "error", err)
		os.Exit(2)
	}
	var storeClient *minio.Client
	var storeCfg objectstore.Config
	if offloadBytes > 0 {
		storeCfg, err = objectstore.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid object store config", "error", err)
			os.Exit(2)
		}
		client, err := objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := objectstore.EnsureBuckets(startupCtx, client, storeCfg); err != nil {
			cancel()
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		cancel()
		blobs = payloadstore.New(client, storeCfg.BucketPayloads, offloadBytes)
		storeClient = client
	}

	ingestMetrics := metrics.NewIngest("runhub-manager")

	runs, err := ingest.NewService(store, publisher, blobs, ingestMetrics, logger, runningWindow)
	if err != nil {
		logger.Error("ingest service init failed", "error", err)
		os.Exit(2)
	}
	analyses, err := analysis.NewService(store, runs, publisher, ingestMetrics, logger, analysis.RunNamePrefixFromEnv())
	if err != nil {
		logger.Error("analysis service init failed", "error", err)
		os.Exit(2)
	}
	annotations, err := annotate.NewService(store, logger)
	if err != nil {
		logger.Error("annotate service init failed", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("runhub-manager"))
	readiness := []httpserver.ReadinessCheck{
		{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		},
	}
	if storeClient != nil {
		client := storeClient
		cfg := storeCfg
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "minio",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return objectstore.CheckBuckets(checkCtx, client, cfg)
			},
		})
	}
	mux.HandleFunc("/readyz", httpserver.Readyz("runhub-manager", readiness...))
	mux.Handle("GET /metrics", ingestMetrics.Handler())

	api := newManagerAPI(logger, runs, analyses, annotations, ingestMetrics)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "runhub-manager",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	handler := httpserver.Wrap(logger, cfg.Service, mux)
	if err := httpserver.Run(ctx, logger, cfg, handler); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
