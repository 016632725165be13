package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ayesh156/roxeleye-crud/internal/app"
	"github.com/ayesh156/roxeleye-crud/internal/config"
	"github.com/ayesh156/roxeleye-crud/internal/database"
	"github.com/ayesh156/roxeleye-crud/internal/health"
	"github.com/ayesh156/roxeleye-crud/internal/http/handler"
	"github.com/ayesh156/roxeleye-crud/internal/http/middleware"
	"github.com/ayesh156/roxeleye-crud/internal/http/router"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/repository"
	"github.com/ayesh156/roxeleye-crud/internal/security"
	"github.com/ayesh156/roxeleye-crud/internal/service"
	"github.com/ayesh156/roxeleye-crud/internal/storage"
	"github.com/ayesh156/roxeleye-crud/internal/upload"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideStorage,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewItemRepository,
)

var SecuritySet = wire.NewSet(
	provideJWTManager,
	providePasswordHasher,
)

var ServiceSet = wire.NewSet(
	provideUploadPipeline,
	provideUserListCache,
	service.NewAuthService,
	service.NewUserService,
	service.NewItemService,
	wire.Bind(new(handler.AuthService), new(*service.AuthService)),
	wire.Bind(new(handler.UserService), new(*service.UserService)),
	wire.Bind(new(handler.ItemService), new(*service.ItemService)),
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	provideUserHandler,
	handler.NewAdminHandler,
	provideItemHandler,
	handler.NewUploadHandler,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

// MigrationRunner applies the schema and seeds the bootstrap admin without
// starting the server.
type MigrationRunner struct {
	cfg    *config.Config
	db     *gorm.DB
	hasher *security.PasswordHasher
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB, hasher *security.PasswordHasher) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db, hasher: hasher}
}

func (m *MigrationRunner) Run(ctx context.Context) (*database.SeedReport, error) {
	if err := database.Migrate(m.db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	report, err := database.Seed(ctx, m.db, m.hasher, bootstrapAdmin(m.cfg))
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return report, nil
}

func (m *MigrationRunner) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func bootstrapAdmin(cfg *config.Config) database.BootstrapAdmin {
	return database.BootstrapAdmin{
		Email:    cfg.BootstrapAdminEmail,
		Password: cfg.BootstrapAdminPassword,
		Name:     cfg.BootstrapAdminName,
	}
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config, hasher *security.PasswordHasher) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	if _, err := database.Seed(context.Background(), db, hasher, bootstrapAdmin(cfg)); err != nil {
		return nil, err
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func provideStorage(cfg *config.Config) (storage.Store, error) {
	if cfg.StorageBackend == "minio" {
		store, err := storage.NewMinIOStore(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
		if err != nil {
			return nil, fmt.Errorf("minio storage: %w", err)
		}
		return store, nil
	}
	store, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return store, nil
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
}

func providePasswordHasher() *security.PasswordHasher {
	return security.NewPasswordHasher(security.DefaultArgon2Params)
}

func provideUploadPipeline(cfg *config.Config, store storage.Store, logger *slog.Logger) *upload.Pipeline {
	return upload.NewPipeline(store, upload.Options{
		MaxBytes:     cfg.UploadMaxBytes,
		MaxDimension: cfg.UploadMaxDimension,
		Quality:      float32(cfg.UploadWebPQuality),
	}, logger)
}

func provideUserListCache(cfg *config.Config, redisClient redis.UniversalClient, logger *slog.Logger) *service.UserListCache {
	var store service.ListCacheStore = service.NewInMemoryListCacheStore()
	if redisClient != nil {
		store = service.NewRedisListCacheStore(redisClient, "roxeleye:list_cache")
	}
	return service.NewUserListCache(store, cfg.UserListCacheTTL, logger)
}

func provideUserHandler(userSvc handler.UserService, cfg *config.Config) *handler.UserHandler {
	return handler.NewUserHandler(userSvc, cfg.UploadMaxBytes)
}

func provideItemHandler(itemSvc handler.ItemService, cfg *config.Config) *handler.ItemHandler {
	return handler.NewItemHandler(itemSvc, cfg.UploadMaxBytes)
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	itemHandler *handler.ItemHandler,
	uploadHandler *handler.UploadHandler,
	jwt *security.JWTManager,
	readiness *health.ProbeRunner,
	logger *slog.Logger,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:    authHandler,
		UserHandler:    userHandler,
		AdminHandler:   adminHandler,
		ItemHandler:    itemHandler,
		UploadHandler:  uploadHandler,
		JWTManager:     jwt,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Readiness:      readiness,
		RequestLogger:  middleware.RequestLogger(logger),
		EnableOTelHTTP: cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

// provideHTTPServer leaves WriteTimeout generous enough for image uploads.
func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient, store storage.Store) *health.ProbeRunner {
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ReadinessGracePeriod,
		health.NewDBChecker(db),
		health.NewRedisChecker(redisClient),
		health.NewStorageChecker(store),
	)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
) *app.App {
	return app.New(cfg, logger, server, runtime, db, redisClient)
}
