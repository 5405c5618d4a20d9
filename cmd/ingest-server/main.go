package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-repository/pkg/ingest"
	"github.com/tendant/simple-repository/pkg/ingest/api"
	"github.com/tendant/simple-repository/pkg/ingest/config"
	"golang.org/x/sync/errgroup"
)

func main() {
	envHelp := flag.Bool("env-help", false, "print the supported environment variables and exit")
	issueToken := flag.String("issue-token", "", "print a bearer token for the given identity and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	if *envHelp {
		usage, err := config.EnvUsage()
		if err != nil {
			slog.Error("Failed to describe configuration", "err", err)
			os.Exit(1)
		}
		fmt.Println(usage)
		return
	}

	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger, err := serverConfig.NewLogger(os.Stdout)
	if err != nil {
		slog.Error("Failed to create logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if *issueToken != "" {
		token, err := issueBearerToken(serverConfig, logger, *issueToken, *tokenTTL)
		if err != nil {
			logger.Error("Failed to issue token", "err", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(serverConfig, logger); err != nil {
		logger.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

// issueBearerToken signs a token without building storage or the index
func issueBearerToken(serverConfig *config.ServerConfig, logger *slog.Logger, who string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	auth := api.NewAuthenticator(serverConfig.JWTSecret, nil, logger)
	return auth.IssueToken(ingest.Identity(who), ttl)
}

func run(serverConfig *config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := serverConfig.BuildService(ctx, logger)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer rt.Close()

	httpServer := &http.Server{
		Addr:              ":" + serverConfig.Port,
		Handler:           routes(serverConfig, rt, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The worker outlives the signal so pending tasks can drain after Shutdown.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	worker := serverConfig.NewWorker(rt, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Repository server starting",
			"port", serverConfig.Port,
			"storage", serverConfig.StorageType,
			"index", serverConfig.DatabaseType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if rt.Webhook != nil {
		g.Go(func() error {
			return rt.Webhook.RefreshDNS(gctx, 5*time.Minute)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		// pending promotions get the same grace period as open requests
		time.AfterFunc(serverConfig.ShutdownTimeout, cancelWorker)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", "err", err)
		}

		// no uploads are in flight anymore; let the worker finish what is queued
		rt.Queue.Close()
		return nil
	})

	err = g.Wait()
	promoted, failed := worker.Stats()
	logger.Info("Server exiting", "promoted", promoted, "failed", failed)
	return err
}

func routes(serverConfig *config.ServerConfig, rt *config.Runtime, logger *slog.Logger) http.Handler {
	opts := []api.HandlerOption{api.WithHandlerLogger(logger)}
	if rt.StaticRoot != "" {
		opts = append(opts, api.WithStaticRoot(rt.StaticRoot))
	}
	handler := api.NewHandler(rt.Service, opts...)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if serverConfig.MaxUploadSize > 0 {
		r.Use(middleware.RequestSize(serverConfig.MaxUploadSize))
	}
	r.Use(rt.Authenticator.Middleware)

	r.Mount("/", handler.Routes())

	return r
}
