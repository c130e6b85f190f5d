// main wires the verification service: config, the issuer read path with its
// optional snapshot cache, the verification log, and server lifecycle.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hodazia/kubecredentials/internal/audit"
	"github.com/Hodazia/kubecredentials/internal/platform/config"
	"github.com/Hodazia/kubecredentials/internal/platform/database"
	"github.com/Hodazia/kubecredentials/internal/platform/health"
	"github.com/Hodazia/kubecredentials/internal/platform/httpserver"
	"github.com/Hodazia/kubecredentials/internal/platform/kafka"
	"github.com/Hodazia/kubecredentials/internal/platform/kafka/producer"
	"github.com/Hodazia/kubecredentials/internal/platform/logger"
	"github.com/Hodazia/kubecredentials/internal/platform/middleware"
	platformredis "github.com/Hodazia/kubecredentials/internal/platform/redis"
	"github.com/Hodazia/kubecredentials/internal/platform/tracer"
	"github.com/Hodazia/kubecredentials/internal/verification/handler"
	"github.com/Hodazia/kubecredentials/internal/verification/issuer"
	"github.com/Hodazia/kubecredentials/internal/verification/metrics"
	"github.com/Hodazia/kubecredentials/internal/verification/service"
	"github.com/Hodazia/kubecredentials/internal/verification/store"
)

func main() {
	cfg := config.VerificationFromEnv()
	log := logger.New("verification", cfg.WorkerID)

	log.Info("initializing verification service",
		"addr", cfg.Addr,
		"worker_id", cfg.WorkerID,
		"issuer_url", cfg.IssuerURL,
		"environment", cfg.Environment,
	)

	healthHandler := health.New("verification", cfg.WorkerID)

	var logStore store.Store = store.NewMemoryStore()
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		logStore = store.NewPostgres(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
		log.Info("using postgres verification log")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory verification log")
	}

	// Issuer read path. The snapshot cache bounds how stale a verdict can
	// be; without Redis every verification fetches the listing directly.
	var issuerClient issuer.Client = issuer.NewHTTPClient(cfg.IssuerURL, cfg.FetchTimeout, log)
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		issuerClient = issuer.NewCachedClient(issuerClient, redisClient, cfg.SnapshotCacheTTL, log)
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
		log.Info("snapshot cache enabled", "ttl", cfg.SnapshotCacheTTL)
	}

	var sink audit.Sink = audit.NewMemorySink()
	var kafkaProducer *producer.Producer
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         cfg.KafkaBrokers,
			Retries:         3,
			DeliveryTimeout: 5 * time.Second,
		}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		sink = audit.NewKafkaSink(kafkaProducer)
		checker := kafka.NewHealthChecker(cfg.KafkaBrokers)
		healthHandler.RegisterCheck("kafka", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return checker.Check(ctx)
		})
		log.Info("audit events publishing to kafka", "brokers", cfg.KafkaBrokers)
	}
	auditor := audit.NewPublisher(sink,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)

	m := metrics.New()
	svc := service.New(logStore, issuerClient, cfg.WorkerID, log, m,
		service.WithAuditor(auditor),
		service.WithTracer(tracer.NewOTel()),
	)
	h := handler.New(svc, m, log)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.WithClientMetadata)
	router.Use(middleware.Timeout(15 * time.Second))
	healthHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		h.Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	auditor.Close()
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(ctx); err != nil {
			log.Error("kafka producer close failed", "error", err)
		}
	}

	log.Info("server stopped")
}
