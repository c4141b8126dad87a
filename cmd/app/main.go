// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pesalink/internal/config"
	payAdapters "pesalink/internal/infra/adapters/payment"
	pg "pesalink/internal/infra/db/postgres"
	"pesalink/internal/infra/logging"
	"pesalink/internal/infra/metrics"
	red "pesalink/internal/infra/redis"
	"pesalink/internal/infra/sched"
	"pesalink/internal/infra/security"
	"pesalink/internal/infra/web"
	"pesalink/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	limiter := red.NewRateLimiter(redisClient)

	// ---- Credential vault ----
	vault, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Repositories ----
	businessRepo := pg.NewBusinessRepo(pool)
	orderRepo := pg.NewOrderRepo(pool)
	txnRepo := pg.NewTransactionRepo(pool)
	ipnRepo := pg.NewIpnRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Gateway adapter ----
	gateway, err := payAdapters.NewPesapalGateway(cfg.Pesapal.BaseURL, cfg.Pesapal.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("pesapal gateway")
	}

	// ---- Use cases ----
	tokenCache := usecase.NewTokenCache()
	paymentUC := usecase.NewPaymentUseCase(businessRepo, orderRepo, txnRepo, ipnRepo, txManager, gateway, tokenCache, vault, logger)

	// ---- HTTP server ----
	srv := web.NewServer(paymentUC, limiter, cfg.API, logger)
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:     srv.Router(),
		ReadTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Status reconciler ----
	reconciler := sched.NewStatusReconciler(paymentUC, orderRepo, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
