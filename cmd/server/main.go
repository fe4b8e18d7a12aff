// Command gp-server starts the Web Push gRPC server.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/goph-push/internal/api/pushv1"
	"github.com/and161185/goph-push/internal/config"
	"github.com/and161185/goph-push/internal/limiter"
	"github.com/and161185/goph-push/internal/migrate"
	"github.com/and161185/goph-push/internal/repository/postgres"
	grpcserver "github.com/and161185/goph-push/internal/server/grpc"
	"github.com/and161185/goph-push/internal/service"
	"github.com/and161185/goph-push/internal/webpush"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and starts the gRPC server.
func main() {
	// Flags
	cfgPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "listen address")
	dsn := flag.String("dsn", "", "PostgreSQL DSN")
	certFile := flag.String("tls-cert", "", "TLS certificate (PEM)")
	keyFile := flag.String("tls-key", "", "TLS private key (PEM)")
	workers := flag.Int("workers", 0, "concurrent deliveries per batch")
	dev := flag.Bool("dev", false, "plaintext listener and server reflection (dev only)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	cfg.ApplyEnv(os.Getenv)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "dsn":
			cfg.Database.DSN = *dsn
		case "tls-cert":
			cfg.Server.TLSCert = *certFile
		case "tls-key":
			cfg.Server.TLSKey = *keyFile
		case "workers":
			cfg.Dispatch.Workers = *workers
		case "dev":
			cfg.Server.Dev = *dev
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	keys, err := cfg.VapidKeys()
	if err != nil {
		logger.Fatal("vapid keys", zap.Error(err))
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
		zap.Int("workers", cfg.Dispatch.Workers),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ver, err := migrate.Up(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	// DB pool
	db, err := postgres.New(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	subRepo := postgres.NewSubscriptionRepo(db)

	var lim limiter.Limiter = limiter.Unlimited{}
	if cfg.Limits.MemberNotifyMax > 0 {
		lim = limiter.NewPG(db.Pool, cfg.Limits.MemberNotifyWindow, cfg.Limits.MemberNotifyMax)
	}

	// Services
	client := webpush.NewClient(&http.Client{Timeout: cfg.Dispatch.Timeout}, cfg.Dispatch.TTL, cfg.Dispatch.Urgency)
	dispatcher := service.NewDispatcher(subRepo, webpush.NewSigner(cfg.Vapid.Subject), client, lim, keys,
		cfg.Dispatch.Workers, logger.Named("dispatch"))
	subSvc := service.NewSubscriptionService(subRepo)
	tokens := service.NewTokenIssuer([]byte(cfg.Auth.JWTKey), cfg.Auth.AccessTTL)

	creds := insecure.NewCredentials()
	if !cfg.Server.Dev {
		creds, err = credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
	}

	// gRPC server with interceptors
	s := grpc.NewServer(
		grpc.Creds(creds),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(tokens, grpcserver.PublicMethods...),
		),
	)

	app := grpcserver.New(subSvc, dispatcher, tokens, webpush.EncodeKey(keys.PublicKey))
	pushv1.RegisterPushServiceServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(pushv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Server.Dev {
		reflection.Register(s)
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.Bool("tls", !cfg.Server.Dev))
		errCh <- s.Serve(lis)
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
