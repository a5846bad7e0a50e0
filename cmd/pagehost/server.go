package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/pagehost/internal/shell/api"
	"github.com/artpar/pagehost/internal/shell/api/middleware"
	"github.com/artpar/pagehost/internal/shell/blob"
	"github.com/artpar/pagehost/internal/shell/domains"
	"github.com/artpar/pagehost/internal/shell/registrar"
	"github.com/artpar/pagehost/internal/shell/revalidate"
	"github.com/artpar/pagehost/internal/shell/routing"
	"github.com/artpar/pagehost/internal/shell/store"
	"github.com/artpar/pagehost/internal/shell/workers"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitRedisError      = 3
	ExitHTTPServerError = 4
	ExitStorageError    = 5
)

// =============================================================================
// Server
// =============================================================================

// Server represents the pagehost application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	redis      *redis.Client
	reconciler *workers.Reconciler
	logger     *slog.Logger
}

// NewServer connects the backing services and builds the HTTP handler.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	rdb, err := routing.NewClient(cfg.Redis)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitRedisError,
		}
	}
	table := routing.NewRedisTable(rdb, logger)

	var blobs *blob.Store
	if cfg.Blob.Bucket != "" {
		blobs, err = blob.New(cfg.Blob, logger)
		if err != nil {
			s.Close()
			rdb.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitStorageError,
			}
		}
		logger.Info("file storage enabled", "bucket", cfg.Blob.Bucket)
	} else {
		logger.Info("file storage disabled")
	}

	if cfg.Registrar.Token == "" || cfg.Registrar.ProjectID == "" {
		logger.Warn("registrar credentials missing, provider calls will fail")
	}
	if cfg.Auth.SessionSecret == "" {
		logger.Warn("auth.session_secret not set, every request is anonymous")
	}

	reg := registrar.New(registrar.NewClient(cfg.Registrar.Config, logger), logger)
	cache := revalidate.New(cfg.Revalidate.CacheSize, revalidate.StoreLoader(s), logger)

	svc := domains.NewService(table, reg, s, cache, domains.Config{
		Targets:         cfg.Registrar.Targets(),
		StrictOwnership: cfg.Pages.StrictDomainOwnership,
		StepTimeout:     cfg.Pages.StepTimeout,
	}, logger)

	handler := api.SetupAPI(api.APIConfig{
		Store:   s,
		Domains: svc,
		Cache:   cache,
		Blob:    blobs,
		Routes:  table,
		Logger:  logger,
		ReadyChecks: map[string]api.Pinger{
			"database": s,
			"redis":    table,
		},
		EdgeRules: cfg.Pages.EdgeRules(),
		SignInURL: cfg.Pages.SignInURL,
		Auth: middleware.AuthConfig{
			Secret:     []byte(cfg.Auth.SessionSecret),
			Issuer:     cfg.Auth.Issuer,
			CookieName: cfg.Auth.CookieName,
		},
		RevalidateSecret: cfg.Revalidate.Secret,
		RateLimit:        cfg.RateLimit,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var reconciler *workers.Reconciler
	if cfg.Reconciler.Enabled {
		reconciler = workers.NewReconciler(s, svc, cfg.Reconciler, logger)
		logger.Info("domain reconciler enabled", "interval", cfg.Reconciler.Interval)
	} else {
		logger.Info("domain reconciler disabled")
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		redis:      rdb,
		reconciler: reconciler,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if s.reconciler != nil {
		s.reconciler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"app_host", s.config.Pages.AppHost,
			"pages_base_host", s.config.Pages.BaseHost)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.reconciler != nil {
		s.reconciler.Stop()
	}

	if err := s.redis.Close(); err != nil {
		s.logger.Error("redis close error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
