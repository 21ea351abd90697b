package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/liuyulin-1024/payment-gateway/internal/config"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
	"github.com/liuyulin-1024/payment-gateway/internal/infrastructure/jobs"
	"github.com/liuyulin-1024/payment-gateway/internal/infrastructure/providers"
	"github.com/liuyulin-1024/payment-gateway/internal/infrastructure/repositories"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/handlers"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/middleware"
	"github.com/liuyulin-1024/payment-gateway/internal/usecases"
	"github.com/liuyulin-1024/payment-gateway/pkg/logger"
	"github.com/liuyulin-1024/payment-gateway/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logEnv := "production"
	if cfg.Server.GinMode != gin.ReleaseMode {
		logEnv = "development"
	}
	logger.Init(logEnv)
	ctx := context.Background()
	logger.Info(ctx, "logger initialized", zap.String("gin_mode", cfg.Server.GinMode))

	if err := redis.Init(cfg.Redis.URL, cfg.Redis.Password); err != nil {
		logger.Error(ctx, "failed to initialize redis", zap.Error(err))
		return fmt.Errorf("init redis: %w", err)
	}
	logger.Info(ctx, "redis initialized")

	gin.SetMode(cfg.Server.GinMode)

	gormLogLevel := gormlogger.Warn
	if cfg.Database.Echo {
		gormLogLevel = gormlogger.Info
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.Database.DSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		PrepareStmt: false,
		Logger:      gormlogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(cfg.Database.PoolSize + cfg.Database.MaxOverflow)
	if err := sqlDB.Ping(); err != nil {
		logger.Warn(ctx, "database not reachable at startup; endpoints will error until it recovers", zap.Error(err))
	} else if err := repositories.Migrate(db); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	registry, err := buildProviderRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}

	appRepo := repositories.NewAppRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	refundRepo := repositories.NewRefundRepository(db)
	callbackRepo := repositories.NewCallbackRepository(db)
	deliveryRepo := repositories.NewWebhookDeliveryRepository(db)
	uow := repositories.NewUnitOfWork(db)

	paymentService := usecases.NewPaymentService(paymentRepo, uow, registry, cfg.Payment.ExpireMinutesDefault)
	refundService := usecases.NewRefundService(refundRepo, paymentRepo, uow, registry)
	callbackService := usecases.NewCallbackService(callbackRepo, paymentRepo, refundRepo, deliveryRepo, appRepo, uow)

	paymentHandler := handlers.NewPaymentHandler(paymentService)
	refundHandler := handlers.NewRefundHandler(refundService, paymentService)
	callbackHandler := handlers.NewCallbackHandler(registry, callbackService)

	apiKeyAuth := middleware.APIKeyAuth(appRepo)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := jobs.NewDeliveryEngine(deliveryRepo, cfg.Worker.PollInterval, cfg.Worker.BatchSize, cfg.Worker.MaxRetries)
	go engine.Start(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	registerRoutes(r, routeDeps{
		paymentHandler:  paymentHandler,
		refundHandler:   refundHandler,
		callbackHandler: callbackHandler,
		apiKeyAuth:      apiKeyAuth,
	})

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: r}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting payment gateway", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-rootCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("run server: %w", err)
		}
	}

	engine.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	logger.Info(ctx, "shutdown complete")
	return nil
}

// buildProviderRegistry constructs each configured adapter once at
// startup and keys them by provider tag. No global mutable singleton is
// used; call sites resolve adapters from the registry they were handed.
func buildProviderRegistry(cfg *config.Config) (provider.Registry, error) {
	registry := provider.Registry{}

	registry[entities.ProviderStripe] = providers.NewStripeAdapter(cfg.Stripe)

	if cfg.Alipay.AppID != "" {
		alipayAdapter, err := providers.NewAlipayAdapter(cfg.Alipay)
		if err != nil {
			return nil, fmt.Errorf("build alipay adapter: %w", err)
		}
		registry[entities.ProviderAlipay] = alipayAdapter
	}

	if cfg.WeChat.MchID != "" {
		wechatAdapter, err := providers.NewWeChatPayAdapter(cfg.WeChat)
		if err != nil {
			return nil, fmt.Errorf("build wechatpay adapter: %w", err)
		}
		registry[entities.ProviderWeChatPay] = wechatAdapter
	}

	return registry, nil
}
