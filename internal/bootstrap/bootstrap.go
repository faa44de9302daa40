package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	appControllers "github.com/okasha/maarif/internal/app/controllers"
	appMigrations "github.com/okasha/maarif/internal/app/migrations"
	appRepos "github.com/okasha/maarif/internal/app/repositories"
	appRoutes "github.com/okasha/maarif/internal/app/routes"
	appServices "github.com/okasha/maarif/internal/app/services"
	"github.com/okasha/maarif/internal/config"
	"github.com/okasha/maarif/internal/db"
	appMiddleware "github.com/okasha/maarif/internal/middleware"
	pkgAuth "github.com/okasha/maarif/internal/pkg/auth"
	"github.com/okasha/maarif/internal/pkg/email"
	"github.com/okasha/maarif/internal/pkg/filestorage"
	"github.com/okasha/maarif/internal/pkg/helpers"
	"github.com/okasha/maarif/internal/pkg/logger"
	"github.com/okasha/maarif/internal/pkg/ratelimit"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	AuthService     *appServices.AuthService
	UserService     *appServices.UserService
	AuthController  *appControllers.AuthController
	UserController  *appControllers.UserController
	AuthMiddleware  *appMiddleware.AuthMiddleware
	RateLimit       *appMiddleware.RateLimitMiddleware
	Repos           *appRepos.Repositories
	JWTService      *pkgAuth.JWTService
	EmailService    email.EmailService
	FileStorage     *filestorage.LocalStorage
	RateLimitStore  ratelimit.Store
	MemoryStore     *ratelimit.MemoryStore // nil when the redis store is active
	Logger          zerolog.Logger
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger() (*config.Config, zerolog.Logger, error) {
	configPath := filepath.Join("configs", "config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.LogLevel(strings.ToLower(cfg.Logging.Level))
	prettyLog := strings.ToLower(cfg.Logging.Format) == "text"

	logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: prettyLog,
	})

	lgr := log.Logger
	lgr.Info().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupDatabase establishes the database connection and runs migrations.
func SetupDatabase(cfg *config.Config, lgr zerolog.Logger) (*pgxpool.Pool, error) {
	lgr.Info().Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, err
	}
	dbPool := database.Pool

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbPool.Ping(ctx); err != nil {
		lgr.Error().Err(err).Msg("Failed to ping database")
		dbPool.Close()
		return nil, err
	}
	lgr.Info().Msg("Database connection successfully established.")

	lgr.Info().Msg("Running database migrations...")
	migrator := appMigrations.NewMigrator(dbPool)

	migrationsDir := "migrations"
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		lgr.Error().Str("path", migrationsDir).Msg("Migrations directory not found")
		dbPool.Close()
		return nil, fmt.Errorf("migrations directory not found at %s: %w", migrationsDir, err)
	}

	if err := migrator.MigrateFromDirectory(migrationsDir); err != nil {
		lgr.Error().Err(err).Msg("Database migration error")
		dbPool.Close()
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}

	lgr.Info().Msg("Database migrations successfully applied.")
	return dbPool, nil
}

// BuildDependencies initializes application repositories, services, and controllers.
func BuildDependencies(cfg *config.Config, dbPool *pgxpool.Pool, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: lgr}

	deps.Repos = appRepos.NewRepositories(dbPool)

	// baseURL must match the static file serving path registered by the server
	var err error
	deps.FileStorage, err = filestorage.NewLocalStorage(cfg.Server.StoragePath, cfg.Server.BaseURL)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to initialize file storage")
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}

	deps.JWTService = pkgAuth.NewJWTService(pkgAuth.JWTConfig{
		SecretKey:          cfg.JWT.Secret,
		ConfirmationSecret: cfg.JWT.ConfirmationSecret,
		SessionTokenExp:    helpers.ParseDuration(cfg.JWT.SessionTokenExpiration, 168*time.Hour),
		ConfirmTokenExp:    helpers.ParseDuration(cfg.JWT.ConfirmTokenExpiration, 1*time.Hour),
		TokenIssuer:        cfg.JWT.Issuer,
	})

	deps.EmailService = email.NewEmailService(email.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		FromName:  cfg.SMTP.FromName,
		FromEmail: cfg.SMTP.FromEmail,
		UseTLS:    cfg.SMTP.UseTLS,
		BaseURL:   cfg.Server.BaseURL,
	}, lgr)

	deps.AuthService = appServices.NewAuthService(
		deps.Repos.UserRepository,
		deps.Repos.TokenRepository,
		deps.JWTService,
		deps.EmailService,
		deps.FileStorage,
		lgr,
		cfg.Security.BcryptCost,
		cfg.Security.MaxLoginAttempts,
		helpers.ParseDuration(cfg.Security.LockoutDuration, 15*time.Minute),
	)

	deps.UserService = appServices.NewUserService(
		deps.Repos.UserRepository,
		deps.Repos.TokenRepository,
		deps.EmailService,
		deps.FileStorage,
		lgr,
		cfg.Security.BcryptCost,
	)

	deps.AuthMiddleware = appMiddleware.NewAuthMiddleware(
		deps.JWTService,
		deps.Repos.TokenRepository,
		deps.Repos.UserRepository,
		lgr,
	)

	store, memStore, err := setupRateLimitStore(cfg, lgr)
	if err != nil {
		return nil, err
	}
	deps.RateLimitStore = store
	deps.MemoryStore = memStore
	deps.RateLimit = appMiddleware.NewRateLimitMiddleware(ratelimit.NewLimiter(store))

	deps.AuthController = appControllers.NewAuthController(deps.AuthService, lgr)
	deps.UserController = appControllers.NewUserController(deps.UserService, lgr)

	appMiddleware.SetDebugMode(!cfg.IsProduction())

	return deps, nil
}

// setupRateLimitStore picks the redis-backed store when an address is
// configured, otherwise falls back to the in-process store with its sweeper.
func setupRateLimitStore(cfg *config.Config, lgr zerolog.Logger) (ratelimit.Store, *ratelimit.MemoryStore, error) {
	if cfg.RateLimit.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RateLimit.RedisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			lgr.Error().Err(err).Str("addr", cfg.RateLimit.RedisAddr).Msg("Failed to connect to redis")
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RateLimit.RedisAddr, err)
		}

		lgr.Info().Str("addr", cfg.RateLimit.RedisAddr).Msg("Rate limiting backed by redis")
		return ratelimit.NewRedisStore(client), nil, nil
	}

	memStore := ratelimit.NewMemoryStore()
	memStore.StartSweeper(helpers.ParseDuration(cfg.RateLimit.SweepInterval, 5*time.Minute))
	lgr.Info().Msg("Rate limiting backed by in-process store")
	return memStore, memStore, nil
}

// SetupRouter configures the Gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies, lgr zerolog.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		lgr.Info().Msg("Setting Gin mode to release")
	} else {
		gin.SetMode(gin.DebugMode)
		lgr.Info().Msg("Setting Gin mode to debug")
	}

	router := gin.Default()

	appRoutes.SetupRouter(router,
		deps.AuthController,
		deps.UserController,
		deps.AuthMiddleware,
		deps.RateLimit,
	)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "status": "success"})
	})

	return router
}
