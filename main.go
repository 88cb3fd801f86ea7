package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/adapters/entitystore"
	"github.com/ekaya-inc/ekaya-merge/pkg/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/config"
	"github.com/ekaya-inc/ekaya-merge/pkg/database"
	"github.com/ekaya-inc/ekaya-merge/pkg/handlers"
	"github.com/ekaya-inc/ekaya-merge/pkg/join"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
	"github.com/ekaya-inc/ekaya-merge/pkg/mcp"
	mcpauth "github.com/ekaya-inc/ekaya-merge/pkg/mcp/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-merge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-merge/pkg/middleware"
	"github.com/ekaya-inc/ekaya-merge/pkg/repositories"
	"github.com/ekaya-inc/ekaya-merge/pkg/resolver"
	"github.com/ekaya-inc/ekaya-merge/pkg/retry"
	"github.com/ekaya-inc/ekaya-merge/pkg/services"
	"github.com/ekaya-inc/ekaya-merge/pkg/storage"
	"github.com/ekaya-inc/ekaya-merge/pkg/tenant"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("registered_entities", len(cfg.Tenant.Entities)))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connStr := cfg.Database.ConnectionString()
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            connStr,
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Error("Failed to connect to database",
			zap.String("database", logging.SanitizeConnectionString(connStr)),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("connect to database: %s", logging.SanitizeError(err))
	}
	defer db.Close()

	if err := migrate(connStr, cfg.MigrationsPath, logger); err != nil {
		return err
	}

	registry, err := tenant.NewRegistry(cfg.Tenant.Entities)
	if err != nil {
		return fmt.Errorf("build entity registry: %w", err)
	}
	padding, err := join.ParsePaddingPolicy(cfg.Merge.NullPadding)
	if err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx, &cfg.Storage, logger)
	if err != nil {
		return err
	}

	uploads := repositories.NewUploadRepository()
	scopes := database.NewTenantScopeProvider(db)
	res := resolver.New(registry, entitystore.NewPostgresStore(db, logger), uploads, blobs, logger)

	mergeService := services.NewMergeService(res, join.NewEngine(join.Options{Padding: padding}), scopes,
		services.MergeOptions{DefaultLimit: cfg.Merge.DefaultLimit, MaxLimit: cfg.Merge.MaxLimit}, logger)
	queryService := services.NewReportQueryService(tenant.NewFilter(registry, logger),
		entitystore.NewQueryExecutor(db, logger), logger)
	sourcesService := services.NewSourcesService(registry, uploads, logger)
	uploadService := services.NewUploadService(blobs, uploads, cfg.Storage.MaxObjectBytes, logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		return fmt.Errorf("initialize JWKS client: %w", err)
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewReportsHandler(mergeService, queryService, sourcesService, logger).
		RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewUploadsHandler(uploadService, cfg.Storage.MaxObjectBytes, logger).
		RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	mcpServer := mcp.NewServer(cfg.Version, &tools.ReportToolDeps{
		MergeService:   mergeService,
		QueryService:   queryService,
		SourcesService: sourcesService,
		Scopes:         scopes,
		Logger:         logger,
	}, logger)
	mcpServer.RegisterRoutes(mux, mcpauth.NewMiddleware(authService, logger))

	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(metrics.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-merge",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		var serveErr error
		if cfg.TLSCertPath != "" {
			serveErr = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func migrate(connStr, path string, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, path, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func newBlobStore(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (storage.BlobStore, error) {
	switch cfg.Backend {
	case config.StorageBackendMinio:
		store, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:        config.ResolveEndpointForDocker(cfg.Endpoint),
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretKey,
			UseSSL:          cfg.UseSSL,
			Bucket:          cfg.Bucket,
			MaxObjectBytes:  cfg.MaxObjectBytes,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create object store client: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket %q: %w", cfg.Bucket, err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStore(cfg.LocalDir, cfg.MaxObjectBytes)
		if err != nil {
			return nil, fmt.Errorf("create local blob store: %w", err)
		}
		logger.Info("Using local blob store", zap.String("dir", cfg.LocalDir), zap.Int64("max_object_bytes", cfg.MaxObjectBytes))
		return store, nil
	}
}
