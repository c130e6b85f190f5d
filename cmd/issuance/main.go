// main wires the issuance service: config, storage, audit stream, router,
// and server lifecycle. Business logic lives in internal/issuance.
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
	"github.com/Hodazia/kubecredentials/internal/issuance/handler"
	"github.com/Hodazia/kubecredentials/internal/issuance/metrics"
	"github.com/Hodazia/kubecredentials/internal/issuance/service"
	"github.com/Hodazia/kubecredentials/internal/issuance/store"
	"github.com/Hodazia/kubecredentials/internal/platform/config"
	"github.com/Hodazia/kubecredentials/internal/platform/database"
	"github.com/Hodazia/kubecredentials/internal/platform/health"
	"github.com/Hodazia/kubecredentials/internal/platform/httpserver"
	"github.com/Hodazia/kubecredentials/internal/platform/kafka"
	"github.com/Hodazia/kubecredentials/internal/platform/kafka/producer"
	"github.com/Hodazia/kubecredentials/internal/platform/logger"
	"github.com/Hodazia/kubecredentials/internal/platform/middleware"
	"github.com/Hodazia/kubecredentials/internal/token"
)

func main() {
	cfg := config.IssuanceFromEnv()
	log := logger.New("issuance", cfg.WorkerID)

	log.Info("initializing issuance service",
		"addr", cfg.Addr,
		"worker_id", cfg.WorkerID,
		"environment", cfg.Environment,
	)

	healthHandler := health.New("issuance", cfg.WorkerID)

	// Storage: Postgres when configured, in-memory otherwise. The memory
	// store loses state on restart and is meant for local development.
	var credentialStore store.Store = store.NewMemoryStore()
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		credentialStore = store.NewPostgres(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
		log.Info("using postgres credential store")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory credential store")
	}

	// Audit stream: Kafka when brokers are configured, in-memory otherwise.
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

	opts := []service.Option{}
	if cfg.JWTSigningKey != "" {
		signer := token.NewService(cfg.JWTSigningKey, "issuance", 24*time.Hour)
		opts = append(opts, service.WithTokenSigner(signer))
		log.Info("attaching signed tokens to issued credentials")
	}
	svc := service.New(credentialStore, cfg.WorkerID, log, auditor, opts...)
	h := handler.New(svc, metrics.New(), log, cfg.WorkerID)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(10 * time.Second))
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
	// Drain pending audit events before tearing down the producer.
	auditor.Close()
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(ctx); err != nil {
			log.Error("kafka producer close failed", "error", err)
		}
	}

	log.Info("server stopped")
}
