package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	cacheadapter "github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/cache"
	eventadapter "github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/events"
	grpcadapter "github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/grpc"
	httpadapter "github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/http"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/postgres"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/adapters/security"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/application"
	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

// Runtime owns the shared connections and the application service. The API
// and worker binaries start different loops on top of it.
type Runtime struct {
	cfg       Config
	logger    *slog.Logger
	db        *gorm.DB
	redis     *redis.Client
	repos     postgres.Repositories
	service   *application.Service
	cleanupFn func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping inspection auth service",
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
	)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	cleanup := func(context.Context) {
		_ = redisClient.Close()
		_ = sqlDB.Close()
	}

	tokens, err := newTokenIssuer(cfg, logger)
	if err != nil {
		cleanup(ctx)
		return nil, err
	}

	repos := postgres.NewRepositories(db)
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			SessionTTL:           cfg.SessionTTL,
			RevokedRetention:     cfg.SessionRevokedRetention,
			IdleRetention:        cfg.SessionIdleRetention,
			FailedLoginThreshold: cfg.FailedThreshold,
			LockoutDuration:      cfg.LockoutDuration,
			InspectorAccessKey:   cfg.InspectorAccessKey,
			InspectorUsername:    cfg.InspectorUsername,
		},
		Accounts:      repos.Accounts,
		Sessions:      repos.Sessions,
		MFA:           repos.MFA,
		LoginAttempts: repos.LoginAttempts,
		Outbox:        repos.Outbox,
		Lockouts:      cacheadapter.NewRedisLockoutStore(redisClient),
		Hasher:        security.NewBcryptHasher(cfg.BcryptCost),
		TokenHasher:   security.NewTokenHasher(cfg.BcryptCost),
		Tokens:        tokens,
		TOTP:          security.NewTOTPAuthenticator(cfg.TOTPIssuer),
	})
	if cfg.InspectorAccessKey == "" {
		logger.Warn("INSPECTOR_ACCESS_KEY not set; inspector login disabled")
	}

	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		repos:     repos,
		service:   svc,
		cleanupFn: cleanup,
	}, nil
}

func newTokenIssuer(cfg Config, logger *slog.Logger) (*security.HMACTokenIssuer, error) {
	ttls := map[ports.TokenClass]time.Duration{
		ports.TokenClassAccess:    cfg.AccessTokenTTL,
		ports.TokenClassRefresh:   cfg.RefreshTokenTTL,
		ports.TokenClassTwoFactor: cfg.TwoFactorTokenTTL,
	}
	if cfg.UsesEphemeralSecrets() {
		logger.Warn("using ephemeral JWT secrets; tokens will not survive a restart")
		issuer, err := security.NewEphemeralTokenIssuer(cfg.TokenIssuer, ttls, nil)
		if err != nil {
			return nil, fmt.Errorf("init ephemeral token issuer: %w", err)
		}
		return issuer, nil
	}
	issuer, err := security.NewHMACTokenIssuer(cfg.TokenIssuer, map[ports.TokenClass]security.TokenClassConfig{
		ports.TokenClassAccess:    {Secret: cfg.JWTAccessSecret, TTL: ttls[ports.TokenClassAccess]},
		ports.TokenClassRefresh:   {Secret: cfg.JWTRefreshSecret, TTL: ttls[ports.TokenClassRefresh]},
		ports.TokenClassTwoFactor: {Secret: cfg.JWTTwoFactorSecret, TTL: ttls[ports.TokenClassTwoFactor]},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	return issuer, nil
}

func (r *Runtime) ready(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// RunAPI serves HTTP and internal gRPC until a shutdown signal arrives.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := httpadapter.NewHandler(r.service, httpadapter.Options{
		SecureCookies: r.cfg.Production(),
		Ready:         r.ready,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(r.service))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(ctx)
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	healthSrv.Shutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return runErr
}

// RunWorker runs the outbox publisher and the session reaper side by side.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, closePublisher, err := r.newPublisher()
	if err != nil {
		r.cleanupFn(ctx)
		return err
	}
	defer closePublisher()

	outbox := eventadapter.NewOutboxWorker(
		r.logger,
		r.repos.Outbox,
		publisher,
		r.cfg.OutboxPollInterval,
		r.cfg.OutboxBatchSize,
		r.cfg.OutboxClaimTTL,
		r.cfg.OutboxMaxRetries,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("outbox worker started")
		return ignoreCanceled(outbox.Run(gctx))
	})
	if r.cfg.SessionCleanupEnabled {
		reaper, err := eventadapter.NewSessionReaper(
			r.logger,
			r.service,
			cacheadapter.NewRedisJobLease(r.redis),
			r.cfg.SessionCleanupCron,
			r.cfg.ReaperLeaseTTL,
		)
		if err != nil {
			r.cleanupFn(ctx)
			return err
		}
		g.Go(func() error {
			r.logger.Info("session reaper started", "schedule", r.cfg.SessionCleanupCron)
			return ignoreCanceled(reaper.Run(gctx))
		})
	}

	err = g.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return err
}

func (r *Runtime) newPublisher() (ports.EventPublisher, func(), error) {
	if len(r.cfg.KafkaBrokers) == 0 {
		r.logger.Warn("KAFKA_BROKERS not set; events are logged instead of published")
		return eventadapter.NewLoggingPublisher(r.logger), func() {}, nil
	}
	kafka, err := eventadapter.NewKafkaPublisher(r.cfg.KafkaBrokers, r.cfg.KafkaTopicPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	return kafka, func() { _ = kafka.Close() }, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
