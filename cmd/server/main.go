// Command mc-server starts the match and chat backend: REST and websocket on
// one listener, gRPC health on another.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/matchchat/internal/auth"
	"github.com/and161185/matchchat/internal/config"
	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/limiter"
	"github.com/and161185/matchchat/internal/migrate"
	"github.com/and161185/matchchat/internal/model"
	"github.com/and161185/matchchat/internal/presence"
	"github.com/and161185/matchchat/internal/repository"
	"github.com/and161185/matchchat/internal/repository/memory"
	"github.com/and161185/matchchat/internal/repository/postgres"
	grpcserver "github.com/and161185/matchchat/internal/server/grpc"
	httpserver "github.com/and161185/matchchat/internal/server/http"
	"github.com/and161185/matchchat/internal/service"
	"github.com/and161185/matchchat/internal/transport"
	"github.com/and161185/matchchat/internal/transport/ws"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// verifier is what the HTTP and websocket layers authenticate with.
type verifier interface {
	Verify(token string) (auth.Identity, error)
}

type repos struct {
	users    repository.UserRepository
	blocks   repository.BlockRepository
	matches  repository.MatchRepository
	messages repository.MessageRepository
	limiter  limiter.Limiter
	close    func()
}

// provisioning registers token subjects in the in-memory store, which has no
// user directory of its own.
type provisioning struct {
	next  verifier
	store *memory.Store
}

func (p provisioning) Verify(token string) (auth.Identity, error) {
	id, err := p.next.Verify(token)
	if err != nil {
		return id, err
	}
	if _, err := p.store.Users().GetByID(context.Background(), id.UserID); errors.Is(err, errs.ErrNotFound) {
		p.store.PutUser(model.User{ID: id.UserID, DisplayName: id.UserID.String()[:8], Tier: id.Tier})
	}
	return id, nil
}

func newLogger(development bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repos, *memory.Store, error) {
	policy := limiter.Policy{Window: cfg.Limit.Window, MaxHits: cfg.Limit.MaxSends, BlockFor: cfg.Limit.BlockFor}
	var lim limiter.Limiter = limiter.Nop{}

	if cfg.Store.Driver == config.DriverMemory {
		st := memory.New()
		if policy.Enabled() {
			lim = limiter.NewMemory(policy)
		}
		logger.Warn("using in-memory store; data is lost on exit")
		return repos{
			users: st.Users(), blocks: st.Blocks(), matches: st.Matches(), messages: st.Messages(),
			limiter: lim, close: func() {},
		}, st, nil
	}

	if err := migrate.Up(ctx, cfg.DB.DSN); err != nil {
		return repos{}, nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.New(ctx, cfg.DB.DSN, cfg.DB.Timeout)
	if err != nil {
		return repos{}, nil, err
	}
	if policy.Enabled() {
		lim = limiter.NewPG(db.Pool, policy)
	}
	return repos{
		users:    postgres.NewUserRepo(db),
		blocks:   postgres.NewBlockRepo(db),
		matches:  postgres.NewMatchRepo(db),
		messages: postgres.NewMessageRepo(db),
		limiter:  lim,
		close:    db.Close,
	}, nil, nil
}

// main loads configuration, opens the store and serves until SIGINT/SIGTERM.
func main() {
	cfgPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Log.Development)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTP.Addr),
		zap.String("grpc", cfg.GRPC.Addr),
		zap.String("store", cfg.Store.Driver),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, mem, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer r.close()

	var v verifier = auth.NewVerifier([]byte(cfg.JWT.Key), cfg.JWT.Leeway)
	if mem != nil {
		v = provisioning{next: v, store: mem}
	}

	// Services
	matchSvc := service.NewMatchService(r.matches, r.blocks, cfg.MinLikeTier())
	msgSvc := service.NewMessageService(r.messages, r.blocks, cfg.History.PageSize, cfg.History.MaxPageSize)
	gw := transport.NewGateway(presence.NewRegistry(), r.users, matchSvc, msgSvc, logger).WithSendLimiter(r.limiter)
	blockSvc := service.NewBlockService(r.blocks, gw)

	// HTTP + websocket
	wsHandler := ws.NewHandler(gw, v, ws.Config{
		SendBuffer:      cfg.WS.SendBuffer,
		WriteWait:       cfg.WS.WriteWait,
		PongWait:        cfg.WS.PongWait,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		AllowedOrigins:  cfg.WS.AllowedOrigins,
	}, logger)
	api := httpserver.New(matchSvc, blockSvc, msgSvc, v, logger)
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(wsHandler),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	httpSrv.RegisterOnShutdown(gw.Shutdown)

	// gRPC health
	var opts []grpc.ServerOption
	if cfg.GRPC.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.GRPC.TLSCert, cfg.GRPC.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	health := grpcserver.NewHealth(r.users, cfg.Health.Interval, logger)
	gs := grpcserver.NewServer(health, logger, cfg.GRPC.Reflection, opts...)
	go health.Run(ctx)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPC.Addr))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		gs.Stop()
	}

	logger.Info("shutdown complete")
}
