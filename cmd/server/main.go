package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venue-ledger/config"
	"venue-ledger/internal/cache"
	"venue-ledger/internal/database"
	"venue-ledger/internal/handler"
	"venue-ledger/internal/middleware"
	"venue-ledger/internal/queue"
	"venue-ledger/internal/repository"
	"venue-ledger/internal/service"
	"venue-ledger/internal/worker"
	"venue-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	logger.SetLevel(cfg.LogLevel)
	log := logger.WithComponent("server")

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(&cfg.Database); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	pool, err := database.InitDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	defer rdb.Close()

	events, err := newEventQueue(cfg, rdb)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.String("bus", cfg.Ledger.EventBus), zap.Error(err))
	}
	defer events.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	packageRepo := repository.NewPackageRepository(pool)
	promoRepo := repository.NewPromoRepository(pool)
	posRepo := repository.NewPOSSessionRepository(pool)
	waitlistRepo := repository.NewWaitlistRepository(pool)

	turnoverSource := service.NewTurnoverSource(cfg.Ledger.TurnoverStrategy, waitlistRepo, cfg.Ledger.TurnoverSampleSize)
	turnover := service.NewCachedTurnoverStrategy(
		cache.NewRedisTurnoverCache(rdb, cfg.Ledger.TurnoverSampleSize),
		turnoverSource,
	)

	resolver := service.NewCodeResolver(bookingRepo, packageRepo, promoRepo)
	admission := service.NewAdmissionService(bookingRepo, posRepo, events, cfg.Ledger)
	redemption := service.NewRedemptionService(packageRepo, events)
	waitlist := service.NewWaitlistService(waitlistRepo, turnover, events, cfg.Ledger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.NewEventWorker(events, worker.NewLogNotifier(), turnover).Start(ctx); err != nil {
		log.Fatal("Failed to start event worker", zap.Error(err))
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.OperatorIdentity())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	handler.NewResolveHandler(resolver).RegisterRoutes(router)
	handler.NewAdmissionHandler(admission).RegisterRoutes(router)
	handler.NewRedemptionHandler(redemption).RegisterRoutes(router)
	handler.NewWaitlistHandler(waitlist).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr), zap.String("event_bus", cfg.Ledger.EventBus))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// newEventQueue 依 EVENT_BUS 選擇事件匯流排
func newEventQueue(cfg *config.Config, rdb *redis.Client) (queue.EventQueue, error) {
	switch cfg.Ledger.EventBus {
	case config.EventBusRedis:
		hostname, _ := os.Hostname()
		return queue.NewRedisStreamEventQueue(rdb, hostname, nil)
	case config.EventBusKafka:
		return queue.NewKafkaEventQueue(cfg.Kafka), nil
	default:
		return queue.NewMemoryEventQueue(1024), nil
	}
}
