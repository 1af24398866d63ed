package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/richxcame/ridecore/internal/cancellation"
	"github.com/richxcame/ridecore/internal/drivers"
	"github.com/richxcame/ridecore/internal/notifications"
	"github.com/richxcame/ridecore/internal/pricing"
	"github.com/richxcame/ridecore/internal/rides"
	"github.com/richxcame/ridecore/internal/scheduler"
	"github.com/richxcame/ridecore/internal/vouchers"
	"github.com/richxcame/ridecore/internal/wallet"
	"github.com/richxcame/ridecore/pkg/config"
	"github.com/richxcame/ridecore/pkg/database"
	"github.com/richxcame/ridecore/pkg/errors"
	"github.com/richxcame/ridecore/pkg/eventbus"
	"github.com/richxcame/ridecore/pkg/health"
	"github.com/richxcame/ridecore/pkg/logger"
	"github.com/richxcame/ridecore/pkg/middleware"
	redisclient "github.com/richxcame/ridecore/pkg/redis"
	"github.com/richxcame/ridecore/pkg/resilience"
	"github.com/richxcame/ridecore/pkg/tracing"
	"github.com/richxcame/ridecore/pkg/websocket"
	"go.uber.org/zap"
)

const (
	serviceName = "ridecore"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment, serviceName); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting ride service",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Initialize Sentry for error tracking
	if enabled, err := errors.InitSentry(cfg.Sentry, serviceName); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else if enabled {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized")
	}

	if err := tracing.InitTracer(rootCtx, serviceName, cfg.Server.Environment, cfg.Tracing, logger.Get()); err != nil {
		logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shutdown tracer", zap.Error(err))
		}
	}()

	db, err := database.NewPostgresPool(&cfg.Database, serviceName)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("Connected to database")

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()
	logger.Info("Connected to redis", zap.String("addr", cfg.Redis.RedisAddr()))

	var bus *eventbus.Bus
	if cfg.NATS.Enabled {
		busCfg := eventbus.DefaultConfig()
		busCfg.URL = cfg.NATS.URL
		busCfg.Name = serviceName
		busCfg.StreamName = cfg.NATS.Stream
		bus, err = eventbus.New(rootCtx, busCfg)
		if err != nil {
			logger.Warn("Failed to connect to NATS, delivering notifications locally", zap.Error(err))
			bus = nil
		} else {
			defer bus.Close()
			logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
		}
	}

	var busBreaker, smsBreaker *resilience.CircuitBreaker
	if cfg.Resilience.CircuitBreaker.Enabled {
		busBreaker = resilience.NewCircuitBreaker(resilience.SettingsFromConfig("nats", cfg.Resilience.CircuitBreaker), nil)
		smsBreaker = resilience.NewCircuitBreaker(resilience.SettingsFromConfig("twilio", cfg.Resilience.CircuitBreaker), nil)
	}

	// Notification delivery: outbox rows go to the bus when NATS is up, and
	// every instance relays bus events to its own websocket connections.
	hub := websocket.NewHub()
	go hub.Run(rootCtx)
	hubSink := notifications.NewHubSink(hub)

	var alertSink *notifications.AlertSink
	if cfg.Twilio.Enabled() {
		sms := notifications.NewResilientSMS(
			notifications.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber),
			smsBreaker,
		)
		alertSink = notifications.NewAlertSink(sms, cfg.Twilio.EmergencyPhone)
		logger.Info("Emergency SMS escalation enabled")
	} else {
		alertSink = notifications.NewAlertSink(nil, "")
	}

	var sink notifications.Sink
	if bus != nil {
		sink = notifications.NewFanoutSink(notifications.NewBusSink(bus, serviceName, busBreaker), alertSink)
		if err := notifications.NewRelay(bus, hubSink).Start(rootCtx); err != nil {
			logger.Fatal("Failed to start notification relay", zap.Error(err))
		}
	} else {
		sink = notifications.NewFanoutSink(hubSink, alertSink)
	}

	outbox := notifications.NewOutbox(db)
	go notifications.NewDispatcher(outbox, sink, cfg.Outbox).Run(rootCtx)

	// Domain services
	pricingRepo := pricing.NewRepository(db)
	pricingResolver := pricing.NewResolver(pricingRepo, redisClient, cfg.Pricing.CacheTTL())
	pricingService := pricing.NewService(pricingRepo, pricingResolver)

	walletService := wallet.NewService(wallet.NewRepository(db))
	voucherService := vouchers.NewService(vouchers.NewRepository(db))
	cancellationService := cancellation.NewService(cancellation.NewRepository(db))

	locator := drivers.NewLocator(redisClient, cfg.Drivers.SearchRadiusKm, cfg.Drivers.DefaultPickupRadiusKm)
	driverService := drivers.NewService(drivers.NewRepository(db), locator, outbox)
	if n, err := driverService.RebuildIndex(rootCtx); err != nil {
		logger.Warn("Failed to rebuild online driver index", zap.Error(err))
	} else {
		logger.Info("Online driver index rebuilt", zap.Int("drivers", n))
	}

	rideService := rides.NewService(rides.NewRepository(db, outbox), rides.Deps{
		Directory: driverService,
		Reasons:   cancellationService,
		Pricing:   pricingResolver,
		Ledger:    walletService,
		Vouchers:  voucherService,
	}, cfg.Rides, cfg.Drivers)

	worker := scheduler.NewWorker(rideService, cfg.Rides.SchedulerInterval(), logger.Get())
	go worker.Start(rootCtx)
	defer worker.Stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeoutDuration()))
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.Metrics(serviceName))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware(serviceName))
	}
	router.Use(middleware.ErrorHandler())

	readiness := health.NewReadiness(serviceName, 2*time.Second)
	readiness.Add("database", health.DatabaseChecker(database.SQLDB(db)), true)
	readiness.Add("redis", health.RedisChecker(redisClient.Client), true)
	if bus != nil {
		readiness.Add("nats", health.ConnectionChecker("nats", bus.Connected), false)
	}
	if cfg.Resilience.CircuitBreaker.Enabled {
		readiness.AddBreaker("nats", busBreaker)
		readiness.AddBreaker("twilio", smsBreaker)
	}

	router.GET("/healthz", health.Liveness(serviceName))
	router.GET("/health/live", health.Liveness(serviceName))
	router.GET("/health/ready", readiness.Handler())
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"version": version,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", websocket.Handler(hub, cfg.JWT.Secret))

	pricing.NewHandler(pricingService).RegisterRoutes(router, cfg.JWT.Secret)
	wallet.NewHandler(walletService).RegisterRoutes(router, cfg.JWT.Secret)
	vouchers.NewHandler(voucherService).RegisterRoutes(router, cfg.JWT.Secret)
	cancellation.NewHandler(cancellationService).RegisterRoutes(router, cfg.JWT.Secret)
	drivers.NewHandler(driverService).RegisterRoutes(router, cfg.JWT.Secret)
	rides.NewHandler(rideService).RegisterRoutes(router, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	cancelRoot()

	logger.Info("Server stopped")
}
