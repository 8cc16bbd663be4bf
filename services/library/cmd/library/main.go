package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"libraryhub/internal/ratelimit"
	"libraryhub/internal/stafftoken"
	"libraryhub/internal/util"
	"libraryhub/pkg/storage"
	"libraryhub/pkg/store"
	"libraryhub/services/library/internal/app"
	"libraryhub/services/library/internal/config"
	"libraryhub/services/library/internal/server"
)

func main() {
	path := os.Getenv("LIBRARY_CONFIG")
	if path == "" {
		path = config.ConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	appCfg := app.Config{
		DatabaseURL:            cfg.DatabaseURL,
		ResetSequenceWhenEmpty: cfg.ResetSequenceWhenEmpty,
		Minio: storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
		},
		CoverURLExpiry: cfg.CoverURLExpiry(),
		AMQPURL:        cfg.AMQPURL,
		AMQPExchange:   cfg.AMQPExchange,
	}
	if cfg.StoreDriver == config.StoreDriverMemory {
		appCfg.Store = store.NewMemoryStore(store.WithResetSequenceWhenEmpty(cfg.ResetSequenceWhenEmpty))
		logger.Warn("using in-memory store; data is lost on restart")
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() {
		if err := appCore.Close(); err != nil {
			logger.Error("close app", "err", err)
		}
	}()

	limiter, err := ratelimit.New(cfg.RedisAddr, cfg.RedisPassword, "library:ratelimit:write", cfg.WriteRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	if limiter != nil {
		defer limiter.Close()
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	var staffTokens *stafftoken.Verifier
	if cfg.StaffTokensEnabled() {
		opts := stafftoken.VerifierOptions{
			PublicKeyPath:  cfg.StaffTokenPublicKeyPath,
			KeyID:          cfg.StaffTokenKeyID,
			Audience:       cfg.StaffTokenAudience,
			AllowedIssuers: cfg.StaffTokenIssuers,
		}
		if cfg.RedisAddr != "" {
			revoker := stafftoken.NewRedisRevoker(cfg.RedisAddr, cfg.RedisPassword)
			defer revoker.Close()
			opts.Revoker = revoker
		}
		staffTokens, err = stafftoken.NewVerifier(opts)
		if err != nil {
			log.Fatalf("failed to init staff token verifier: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:                appCore,
		APIPrefix:          cfg.APIPrefix,
		Limiter:            limiter,
		TrustedProxies:     trusted,
		StaffTokens:        staffTokens,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CoverMaxBytes:      cfg.CoverMaxBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("library server listening",
			"addr", addr,
			"store", cfg.StoreDriver,
			"covers", appCore.CoversEnabled(),
			"staff_tokens", staffTokens != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down library server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
