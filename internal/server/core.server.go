package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lelandsequel/metalledger/internal/config"
	"github.com/lelandsequel/metalledger/internal/domain"
	hrest "github.com/lelandsequel/metalledger/internal/handler/rest"
	"github.com/lelandsequel/metalledger/internal/pkg/cache"
	"github.com/lelandsequel/metalledger/internal/pkg/egress"
	"github.com/lelandsequel/metalledger/internal/pub"
	"github.com/lelandsequel/metalledger/internal/repository"
	"github.com/lelandsequel/metalledger/internal/repository/memory"
	"github.com/lelandsequel/metalledger/internal/service"
	"github.com/lelandsequel/metalledger/internal/usecase"
	"github.com/lelandsequel/metalledger/internal/worker"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const healthPollInterval = 10 * time.Second

// Server owns every long-lived component of the ledger process.
type Server struct {
	cfg    config.AppConfig
	logger *zap.Logger

	store    repository.Store
	redis    *cache.Cache
	events   *pub.LedgerEventPublisher
	gate     *egress.Gate
	egress   *egress.Client
	verifier *worker.AuditVerifier
	seeder   *service.AccountSeeder
	sources  *usecase.SourceConfigUsecase

	handler http.Handler
	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *health.Server
}

// New connects the store and builds the usecase graph. Redis and Kafka are
// optional; their features are disabled when unconfigured.
func New(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, logger, store), nil
}

func openStore(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	case config.StoreDriverPostgres:
		db, err := config.ConnectDB(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := repository.Migrate(ctx, db, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repository.NewPostgresStore(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// NewWithStore builds the server over an already opened store.
func NewWithStore(cfg config.AppConfig, logger *zap.Logger, store repository.Store) *Server {
	s := &Server{cfg: cfg, logger: logger, store: store}

	// --- Optional infrastructure ---
	var engineOpts []usecase.EngineOption
	var ledgerOpts []usecase.LedgerOption

	if cfg.RedisAddr != "" {
		s.redis = cache.NewCache([]string{cfg.RedisAddr}, cfg.RedisPass, false)
		ledgerOpts = append(ledgerOpts, usecase.WithAccountCache(cache.NewAccountCache(s.redis, cfg.AccountCacheTTL)))
		engineOpts = append(engineOpts, usecase.WithDenialPublisher(pub.NewPolicyDenialPublisher(s.redis.Client())))
		logger.Info("redis enabled", zap.String("addr", cfg.RedisAddr))
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer := pub.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaLedgerTopic, logger)
		s.events = pub.NewLedgerEventPublisher(writer, logger)
		ledgerOpts = append(ledgerOpts, usecase.WithLedgerEvents(s.events))
		logger.Info("kafka ledger events enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaLedgerTopic))
	}

	// --- Usecases ---
	s.gate = egress.NewGate(cfg.EgressAllowlist)
	auditTrail := usecase.NewAuditTrail(store, logger)
	approvalUC := usecase.NewApprovalUsecase(store, auditTrail, logger, nil)
	engine := usecase.NewPolicyEngine(approvalUC, s.gate, auditTrail, store, logger, engineOpts...)
	ledgerUC := usecase.NewLedgerUsecase(store, store, store, engine, logger, ledgerOpts...)
	s.sources = usecase.NewSourceConfigUsecase(store, engine, approvalUC, s.gate, logger)

	// --- Services and workers ---
	s.seeder = service.NewAccountSeeder(ledgerUC, logger)
	s.verifier = worker.NewAuditVerifier(auditTrail, cfg.AuditVerifyInterval, logger)
	s.egress = egress.NewClient(engine, domain.Service("price_ingestor"), logger)

	// --- Transport ---
	s.handler = hrest.NewLedgerRestHandler(ledgerUC, approvalUC, s.sources, auditTrail, engine, store, logger).Router()
	s.health = health.NewServer()
	s.grpcSrv = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcSrv, s.health)
	reflection.Register(s.grpcSrv)

	return s
}

// Handler is the REST router.
func (s *Server) Handler() http.Handler { return s.handler }

// Egress is the policy-gated HTTP client for outbound data-source calls.
func (s *Server) Egress() *egress.Client { return s.egress }

// Prepare seeds accounts and applies a persisted egress allowlist.
func (s *Server) Prepare(ctx context.Context) error {
	if s.cfg.SeedAccounts {
		if err := s.seeder.SeedAccounts(ctx); err != nil {
			return err
		}
	}
	loaded, err := s.sources.LoadAllowlist(ctx)
	if err != nil {
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			return fmt.Errorf("failed to load egress allowlist: %w", err)
		}
		s.logger.Warn("ignoring stored egress allowlist, keeping configured domains",
			zap.Strings("domains", s.gate.Domains()),
			zap.Error(err))
	}
	if loaded {
		s.logger.Info("egress allowlist loaded from source config", zap.Strings("domains", s.gate.Domains()))
	}
	return nil
}

// Run serves HTTP and gRPC until ctx is cancelled or a listener fails, then
// shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Prepare(ctx); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddr, err)
	}

	s.httpSrv = &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		s.logger.Info("gRPC health server listening", zap.String("addr", s.cfg.GRPCAddr))
		if err := s.grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.logger.Info("REST server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("REST server failed: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.verifier.Start(runCtx)
	}()
	go s.watchHealth(runCtx)

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err = <-errCh:
		s.logger.Error("server failed", zap.Error(err))
	}

	cancel()
	s.shutdown()
	wg.Wait()
	return err
}

// watchHealth mirrors store reachability into the gRPC health service.
func (s *Server) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		s.checkHealth(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) checkHealth(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(pingCtx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("store unreachable", zap.Error(err))
	}
	s.health.SetServingStatus("", status)
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.health.Shutdown()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("REST shutdown incomplete", zap.Error(err))
	}
	s.grpcSrv.GracefulStop()
	s.Close()
}

// Close releases the store and messaging clients.
func (s *Server) Close() {
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	s.store.Close()
}
