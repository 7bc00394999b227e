package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"npcshop-be/internal/address"
	"npcshop-be/internal/cart"
	"npcshop-be/internal/checkout"
	"npcshop-be/internal/config"
	"npcshop-be/internal/db"
	"npcshop-be/internal/handler"
	"npcshop-be/internal/logger"
	"npcshop-be/internal/metrics"
	"npcshop-be/internal/middleware"
	"npcshop-be/internal/order"
	"npcshop-be/internal/payment"
	"npcshop-be/internal/payment/webhook"
	"npcshop-be/internal/recovery"
	"npcshop-be/internal/shipping"
	"npcshop-be/internal/staging"
	"npcshop-be/internal/tracking"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	database := db.InitDB(cfg)
	defer database.Close()

	store, err := staging.New(ctx, staging.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.StagingTTL,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey)
	go limiter.Cleanup(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           setupRouter(cfg, database, store, reg, limiter),
		ReadHeaderTimeout: 10 * time.Second,
		// recovery may poll for up to RECOVERY_BASE_DELAY * (2^attempts - 1)
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server running", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupRouter(
	cfg *config.Config,
	database *sql.DB,
	store *staging.Store,
	reg *prometheus.Registry,
	limiter *middleware.RateLimiter,
) http.Handler {
	pipeline := metrics.New(reg)

	orderSvc := order.NewService(order.NewRepository(database))
	cartRepo := cart.NewRepository(database)
	addressRepo := address.NewRepository(database)
	paymentRepo := payment.NewRepository(database)

	gateway := payment.NewMidtransGateway(payment.MidtransConfig{
		ServerKey: cfg.MidtransServerKey,
		BaseURL:   cfg.MidtransBaseURL,
		SnapURL:   cfg.MidtransSnapURL,
		FinishURL: cfg.MidtransFinishURL,
	})
	outcomes := payment.NewOutcomeHandler(orderSvc, gateway, cartRepo, addressRepo, store, pipeline)

	// the tracking aggregator also serves courier rates
	quotes := shipping.NewService(shipping.NewRateClient(shipping.RateConfig{
		APIKey:       cfg.TrackingAPIKey,
		BaseURL:      cfg.TrackingBaseURL,
		OriginPostal: cfg.ShippingOriginPostal,
		Couriers:     cfg.TrackingCouriers,
	}), store)

	tracker := tracking.NewService(tracking.NewClient(tracking.Config{
		APIKey:      cfg.TrackingAPIKey,
		BaseURL:     cfg.TrackingBaseURL,
		FallbackURL: cfg.TrackingFallbackURL,
		Couriers:    cfg.TrackingCouriers,
	}), orderSvc, store, pipeline)

	recoverySvc := recovery.NewService(orderSvc, store, gateway, outcomes, recovery.Policy{
		Base:        cfg.RecoveryBaseDelay,
		MaxAttempts: cfg.RecoveryMaxAttempts,
		Freshness:   cfg.RecoveryFreshness,
	}, pipeline)

	checkoutSvc := checkout.NewService(orderSvc, gateway, quotes, store, cfg.Coupons, pipeline)

	h := handler.New(checkoutSvc, quotes, outcomes, orderSvc, recoverySvc, tracker)
	webhookHandler := webhook.NewWebhookHandler(gateway, paymentRepo, outcomes)

	return handler.NewRouter(handler.RouterConfig{
		Handler:    h,
		Webhook:    webhookHandler.MidtransNotificationHandler,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Limiter:    limiter,
		JWTSecret:  []byte(cfg.JWTSecret),
		CORSOrigin: cfg.CORSOrigin,
		Health: map[string]handler.HealthCheck{
			"postgres": database.PingContext,
			"redis":    store.Ping,
		},
	})
}
