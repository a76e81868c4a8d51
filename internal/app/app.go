package app

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/controller"
	"caseprep_backend/internal/repository"
	"caseprep_backend/internal/service"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/configwatcher"
	"caseprep_backend/pkg/database"
	"caseprep_backend/pkg/logger"
	"caseprep_backend/pkg/monitoring"
	"caseprep_backend/pkg/security"
	"caseprep_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiters        *limiters
	tracer          *sdktrace.TracerProvider
	stop            chan struct{}
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user     *repository.UserRepository
	credit   *repository.CreditRepository
	cases    *repository.CaseRepository
	progress *repository.ProgressRepository
	response *repository.ResponseRepository
}

type services struct {
	auth          *service.AuthService
	credit        *service.CreditService
	cases         *service.CaseService
	progress      *service.ProgressService
	feedback      *service.FeedbackService
	sketch        *service.SketchService
	interview     *service.InterviewService
	packages      *service.CreditPackages
	checkout      *service.CheckoutService
	storage       *service.StorageService
	transcription *service.TranscriptionService
}

type controllers struct {
	auth      *controller.AuthController
	cases     *controller.CaseController
	interview *controller.InterviewController
	credit    *controller.CreditController
	checkout  *controller.CheckoutController
	upload    *controller.UploadController
	health    *controller.HealthController
}

type limiters struct {
	global   *security.Limiter
	feedback *security.Limiter
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		credit:   repository.NewCreditRepository(db),
		cases:    repository.NewCaseRepository(db),
		progress: repository.NewProgressRepository(db),
		response: repository.NewResponseRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	// one client for every outbound model call; per-request deadlines come from ctx
	httpClient := &http.Client{Timeout: cfg.AI.Timeout + 5*time.Second}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.credit = service.NewCreditService(db, repos.credit)
	s.cases = service.NewCaseService(repos.cases, rdb, cfg.Catalog.CacheTTL)
	s.progress = service.NewProgressService(db, repos.progress, s.credit, &cfg.Credits)
	s.feedback = service.NewFeedbackService(
		service.NewCompletionBackend(&cfg.AI, httpClient),
		cfg.AI.Timeout,
		cfg.AI.FallbackFeedback,
	)
	s.sketch = service.NewSketchService(&cfg.AI, httpClient)
	s.interview = service.NewInterviewService(
		db,
		s.cases,
		s.progress,
		s.credit,
		repos.response,
		s.sketch,
		s.feedback,
		&cfg.Credits,
	)

	s.packages = service.NewCreditPackages(cfg.Credits.Packages)
	s.checkout = service.NewCheckoutService(
		service.NewStripeGateway(cfg.Stripe.SecretKey),
		s.packages,
		s.credit,
		repos.credit,
		repos.user,
		service.NewMailService(&cfg.Mail),
		cfg.Stripe,
	)

	s.storage = service.NewStorageService(&cfg.Storage)
	s.transcription = service.NewTranscriptionService(cfg, httpClient)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		cases:     controller.NewCaseController(s.cases),
		interview: controller.NewInterviewController(s.interview, s.progress),
		credit:    controller.NewCreditController(s.credit, s.packages),
		checkout:  controller.NewCheckoutController(s.checkout),
		upload:    controller.NewUploadController(s.storage, s.transcription, a.Config.Transcription.MaxUploadMB),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(a.limiters.global.Middleware())

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) initLimiters(cfg *config.Config) *limiters {
	return &limiters{
		global:   security.NewLimiter(cfg.RateLimit.MaxRequests, globalWindow(cfg), security.ClientIPKey),
		feedback: security.NewLimiter(cfg.RateLimit.FeedbackPerMinute, time.Minute, userKey),
	}
}

// userKey buckets authenticated requests per user and falls back to the client IP.
func userKey(c *gin.Context) string {
	if claims := util.GetUserFromContext(c); claims != nil {
		return "user:" + claims.UserID
	}
	return security.ClientIPKey(c)
}

func globalWindow(cfg *config.Config) time.Duration {
	if cfg.RateLimit.WindowMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
}

func (a *App) startBackgroundTasks() {
	go a.limiters.global.Cleanup(a.stop)
	go a.limiters.feedback.Cleanup(a.stop)

	if a.Config.ConfigFile == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-a.stop
		cancel()
	}()
	go func() {
		err := configwatcher.WatchConfig(ctx, a.Config.ConfigFile, func(cfg *config.Config) {
			for _, callback := range a.configCallbacks {
				callback(cfg)
			}
		})
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

// registerReloadables wires the settings that may change without a restart.
func (a *App) registerReloadables() {
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.services.packages.Set(cfg.Credits.Packages)
		logger.Log.Info("Credit packages reloaded", zap.Int("count", len(cfg.Credits.Packages)))
	})
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.limiters.global.SetRate(cfg.RateLimit.MaxRequests, globalWindow(cfg))
		a.limiters.feedback.SetRate(cfg.RateLimit.FeedbackPerMinute, time.Minute)
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, cfg.ForceMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		stop:   make(chan struct{}),
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, db, rdb)
	controllers := app.initControllers(app.services, db, rdb)
	app.limiters = app.initLimiters(cfg)

	if cfg.SeedFile != "" {
		n, err := app.services.cases.Seed(context.Background(), cfg.SeedFile)
		if err != nil {
			logger.Log.Fatal("Failed to seed cases", zap.String("file", cfg.SeedFile), zap.Error(err))
		}
		logger.Log.Info("Cases seeded", zap.Int("count", n))
	}

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("caseprep-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.registerReloadables()
	app.startBackgroundTasks()

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// wait for an interrupt, then drain in-flight requests for up to 5 seconds
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	close(a.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
