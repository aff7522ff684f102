package main

import (
	"context"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"hydra-signals/internal/bot"
	"hydra-signals/internal/cache"
	"hydra-signals/internal/config"
	"hydra-signals/internal/db"
	"hydra-signals/internal/handler"
	"hydra-signals/internal/job"
	"hydra-signals/internal/provider"
	"hydra-signals/internal/repository"
	"hydra-signals/internal/service"
	signalengine "hydra-signals/internal/signal"
	"hydra-signals/internal/tickers"
	"hydra-signals/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "hydra-signals/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	loadTickersFunc        = tickers.Load
	newSignalRepoFunc      = repository.NewSignalRepository
	newSubRepoFunc         = repository.NewSubscriptionRepository
	newErrorRepoFunc       = repository.NewErrorLogRepository
	newSignalServiceFunc   = service.NewSignalService
	newOrchestratorFunc    = job.NewOrchestrator
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Hydra Signals API
// @version         1.0
// @description     Signal lifecycle engine with Telegram notifications.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repositories and run migrations
	signalRepo := newSignalRepoFunc(db.Pool, tracer)
	subRepo := newSubRepoFunc(db.Pool, tracer)
	errorRepo := newErrorRepoFunc(db.Pool, tracer)
	if db.Pool != nil {
		if err := signalRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run signal migrations: %v", err)
		}
		if err := subRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run subscription migrations: %v", err)
		}
		if err := errorRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run error log migrations: %v", err)
		}
	}

	// Instrument list
	instruments, err := loadTickersFunc(cfg.TickersFile)
	if err != nil {
		log.Fatalf("failed to load tickers from %s: %v", cfg.TickersFile, err)
	}
	log.Printf("tracking %d instruments across timeframes %v", len(instruments), cfg.Timeframes)

	// Services
	signalService := newSignalServiceFunc(signalRepo, errorRepo, tracer,
		time.Duration(cfg.FreshnessWindowMins)*time.Minute)
	priceCache := cache.NewPriceCache(cache.Client, 0)
	apiClient := provider.NewSignalAPIClient(tracer, cfg.SignalAPIURL,
		time.Duration(cfg.APITimeoutSecs)*time.Second, cfg.APIRetries, cfg.Timeframes)
	annotator := signalengine.NewAnnotator(
		cfg.HighConfidenceThreshold, cfg.LowConfidenceThreshold, cfg.TrendConflictThreshold)

	// Telegram bot (nil notifier when no token is configured)
	orchestratorHolder := &orchestratorRef{}
	notifier := startTelegramBotFunc(cfg.TelegramBotToken, cfg.TelegramAdminID,
		signalRepo, subRepo, orchestratorHolder,
		time.Duration(cfg.NotifyDelayMillis)*time.Millisecond)

	// Orchestrator and scheduler
	orchestrator := newOrchestratorFunc(
		apiClient, annotator, signalService, priceCache, notifierOrNil(notifier), errorRepo, tracer,
		instruments,
		time.Duration(cfg.FetchIntervalMinutes)*time.Minute,
		time.Duration(cfg.FetchDelayMillis)*time.Millisecond,
		time.Duration(cfg.StopWaitSecs)*time.Second,
	)
	orchestratorHolder.set(orchestrator)
	if err := orchestrator.Start(ctx, false); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	// HTTP surface
	h := newHandlerFunc(tracer, signalRepo, errorRepo, orchestrator)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("hydra-signals"))
	r.Use(cors.Default())

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    httpAddrFromEnv(),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	if err := orchestrator.Stop(context.Background()); err != nil {
		log.Printf("orchestrator shutdown: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func httpAddrFromEnv() string {
	port := os.Getenv("PORT")
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

// orchestratorRef breaks the startup cycle between the bot (which needs the
// orchestrator for /run and /status) and the orchestrator (which needs the
// bot's notifier).
type orchestratorRef struct {
	o *job.Orchestrator
}

func (r *orchestratorRef) set(o *job.Orchestrator) { r.o = o }

func (r *orchestratorRef) RunManual(ctx context.Context) (job.CycleResult, error) {
	if r.o == nil {
		return job.CycleResult{}, job.ErrCycleInProgress
	}
	return r.o.RunManual(ctx)
}

func (r *orchestratorRef) Status() job.Status {
	if r.o == nil {
		return job.Status{}
	}
	return r.o.Status()
}

// notifierOrNil keeps the orchestrator's notifier interface nil when the bot
// is disabled, instead of a non-nil interface wrapping a nil pointer.
func notifierOrNil(n *bot.SignalNotifier) job.Notifier {
	if n == nil {
		return nil
	}
	return n
}
