package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/messenger/config"
	"github.com/cwrk-planet/messenger/internal/postgres"
	"github.com/cwrk-planet/messenger/internal/scheduler"
	"github.com/cwrk-planet/messenger/internal/security"
	"github.com/cwrk-planet/messenger/internal/service"
	grpcx "github.com/cwrk-planet/messenger/internal/transport/grpc"
	httpx "github.com/cwrk-planet/messenger/internal/transport/http"
	"github.com/cwrk-planet/messenger/internal/transport/ws"
	"github.com/cwrk-planet/messenger/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting messenger",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.ConnLifetime(),
		ApplicationName: cfg.Logging.Service,
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalf("postgres: %v", err)
		}
	}

	// --- repos ---
	messageRepo := postgres.NewMessageRepository(pool)
	contractRepo := postgres.NewContractRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)

	// --- security ---
	priv, pub, err := loadKeys(cfg.Auth, logger.ParseEnv(cfg.Logging.Env))
	if err != nil {
		log.Fatalf("auth keys: %v", err)
	}
	signer := security.NewJWTSigner(priv, pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TTL(), cfg.Auth.Skew())

	// --- WS Hub ---
	hub := ws.NewHub(cfg.WS.RecentPerRoom)

	// --- services ---
	messageSvc := service.NewMessageService(messageRepo, contractRepo, hub, cfg.Messages.MaxLength)
	contractSvc := service.NewContractService(contractRepo)
	authSvc := service.NewAuthService(accountRepo, sessionRepo, signer, nil)

	wsServer := ws.NewServer(hub, authSvc, messageSvc, ws.Options{
		PingEvery:      cfg.WS.Ping(),
		WriteTimeout:   cfg.WS.Write(),
		ReadLimit:      cfg.WS.ReadLimit,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// --- HTTP ---
	readTimeout, writeTimeout, idleTimeout, requestTimeout := cfg.HTTP.Timeouts()
	handler := httpx.NewHandler(messageSvc, contractSvc, authSvc)
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:        handler,
		Auth:           authSvc,
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: requestTimeout,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	// --- gRPC ---
	grpcServer, health := grpcx.NewGRPCServer(grpcx.NewServer(authSvc, messageSvc), cfg.GRPC.Guard())

	// --- scheduler ---
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(authSvc, cfg.Scheduler.SessionPurge, time.Minute)
		if err := sched.Start(); err != nil {
			log.Fatalf("scheduler: %v", err)
		}
	}

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health.Shutdown()
	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	if sched != nil {
		sched.Stop(ctxShutdown)
	}
	slog.Info("stopped")
}

// loadKeys читает PEM-пару; без путей в dev генерирует эфемерный ключ.
func loadKeys(a config.Auth, env logger.Env) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if a.PrivateKeyPath != "" {
		priv, err := security.LoadRSAPrivateKeyFromPEM(a.PrivateKeyPath)
		if err != nil {
			return nil, nil, err
		}
		pub, err := security.LoadRSAPublicKeyFromPEM(a.PublicKeyPath)
		if err != nil {
			return nil, nil, err
		}
		return priv, pub, nil
	}
	if env != logger.EnvDev {
		return nil, nil, errors.New("auth.privateKeyPath is required outside dev")
	}
	slog.Warn("auth: no key configured, using ephemeral RSA key; tokens die with the process")
	priv, err := security.GenerateRSAKey(2048)
	if err != nil {
		return nil, nil, err
	}
	return priv, &priv.PublicKey, nil
}
