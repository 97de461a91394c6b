package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pollenlabs/nectar-gateway/config"
	"github.com/pollenlabs/nectar-gateway/middleware"
	"github.com/pollenlabs/nectar-gateway/services/access"
	"github.com/pollenlabs/nectar-gateway/services/admission"
	"github.com/pollenlabs/nectar-gateway/services/audit"
	"github.com/pollenlabs/nectar-gateway/services/authn"
	"github.com/pollenlabs/nectar-gateway/trust"
	"github.com/pollenlabs/nectar-gateway/upstream"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *sql.DB
	Logger *zap.Logger

	// Trust service
	TrustClient *trust.Client
	TrustCache  *trust.Cache

	// Services
	Resolver  *authn.Resolver
	Access    *access.Service
	Admission *admission.Service
	Audit     *audit.Service
	Upstream  *upstream.Client

	// HTTP plumbing
	AuthMiddleware *middleware.AuthMiddleware

	reloader *access.Reloader
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initTrust(cfg)

	if err := deps.initServices(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initMiddleware()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens the optional decision audit database
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Logger.Info("decision audit log disabled: no DATABASE_URL configured")
		return nil
	}

	db, err := sql.Open("postgres", cfg.Database.ConnectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	d.DB = db
	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initTrust wires the trust service client and its lookup cache
func (d *Dependencies) initTrust(cfg *config.Config) {
	d.TrustClient = trust.NewClient(trust.Config{
		BaseURL:  cfg.Trust.BaseURL,
		AdminKey: cfg.Trust.AdminKey,
		Timeout:  cfg.Trust.Timeout,
	}, d.Logger)

	d.TrustCache = trust.NewCache(d.TrustClient, cfg.Trust.CacheTTL, d.Logger)
}

// initServices wires the domain services
func (d *Dependencies) initServices(ctx context.Context, cfg *config.Config) error {
	d.Resolver = authn.NewResolver(authn.ResolverConfig{
		EnterTokenSecret:    cfg.Auth.EnterTokenSecret,
		ElevatedDefaultTier: cfg.Auth.ElevatedDefaultTier,
	}, d.TrustCache, d.Logger)

	d.Access = access.NewService(cfg.Auth.TierUpgradeURL, d.Logger)
	if cfg.Registry.Path != "" {
		if err := d.Access.LoadFile(cfg.Registry.Path); err != nil {
			return fmt.Errorf("failed to load model registry: %w", err)
		}
		reloader, err := access.NewReloader(d.Access, cfg.Registry.Path, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to watch model registry: %w", err)
		}
		d.reloader = reloader
	}

	d.Admission = admission.NewService(admission.Config{
		TokenInterval:     cfg.Admission.TokenInterval,
		ReferrerInterval:  cfg.Admission.ReferrerInterval,
		AnonymousInterval: cfg.Admission.AnonymousInterval,
		Capacity:          cfg.Admission.Capacity,
		IdleTTL:           cfg.Admission.IdleTTL,
	}, d.Logger)

	d.Audit = audit.NewService(d.DB, d.Logger)
	if d.Audit.Enabled() {
		if err := d.Audit.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize audit schema: %w", err)
		}
	}

	d.Upstream = upstream.NewClient(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
	}, d.Logger)

	return nil
}

// initMiddleware wires the verdict-resolving middleware
func (d *Dependencies) initMiddleware() {
	var recorder middleware.DecisionRecorder
	if d.Audit.Enabled() {
		recorder = d.Audit
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Resolver, recorder, d.Logger)
}

// StartWorkers launches the background maintenance loops. They stop when
// ctx is cancelled.
func (d *Dependencies) StartWorkers(ctx context.Context) {
	go d.TrustCache.StartCleanupWorker(ctx, d.Config.Trust.CacheTTL)
	go d.Admission.StartCleanupWorker(ctx, time.Minute)

	if d.Audit.Enabled() {
		go d.Audit.StartCleanupWorker(ctx, time.Hour, 30*24*time.Hour)
	}

	if d.reloader != nil {
		go func() {
			if err := d.reloader.Run(ctx); err != nil {
				d.Logger.Error("model registry watcher stopped", zap.Error(err))
			}
		}()
	}
}

// Close releases held resources
func (d *Dependencies) Close(ctx context.Context) error {
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("failed to close database", zap.Error(err))
			return err
		}
		d.Logger.Info("database connection closed")
	}
	return nil
}
