// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/biddge/internal/apiclient"
	"github.com/starford/biddge/internal/community"
	"github.com/starford/biddge/internal/content"
	"github.com/starford/biddge/internal/mcpserver"
	"github.com/starford/biddge/internal/session"
	"github.com/starford/biddge/internal/sse"
	"github.com/starford/biddge/internal/web"
)

// Run starts the web server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.String("content_dir", cfg.Content.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	var dir *content.Dir
	if cfg.Content.Dir != "" {
		d, err := content.NewDir(cfg.Content.Dir)
		if err != nil {
			return fmt.Errorf("init content dir: %w", err)
		}
		dir = d
	}
	pages := content.NewPages(dir, logger)

	broker := sse.NewBroker(cfg.Events.Throttle)
	defer broker.Close()

	r, err := newRouter(cfg, logger, pages, broker)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Watch content overrides and tell open pages to refresh.
	if dir != nil {
		g.Go(func() error {
			err := content.Watch(gCtx, pages, dir, logger, func(slug string) {
				broker.PublishContent(slug)
			})
			if err != nil {
				logger.Warn("content watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the remaining goroutines once the server is down.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they do
// not corrupt the protocol stream.
func RunMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	client := apiclient.New(cfg.API.BaseURL, cfg.API.Timeout)
	logger.Info("MCP server starting", slog.String("api_base_url", client.BaseURL()))
	return mcpserver.New(community.NewService(client, logger), app.version).ServeStdio()
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// newRouter wires the page handlers, the event stream and the health checks.
func newRouter(cfg *Config, logger *slog.Logger, pages *content.Pages, broker *sse.Broker) (chi.Router, error) {
	client := apiclient.New(cfg.API.BaseURL, cfg.API.Timeout)
	svc := community.NewService(client, logger)
	sessions := session.NewStore(cfg.Session.CookieSecure, cfg.Session.MaxAge, logger)

	h, err := web.NewHandler(web.Options{
		Service:  svc,
		Pages:    pages,
		Sessions: sessions,
		Events:   broker,
		LoginURL: cfg.Auth.LoginURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init web: %w", err)
	}

	stream := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Accept", "Cache-Control", "Last-Event-ID"},
		MaxAge:         300,
	})(broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","clients":%d}`, broker.ClientCount())
	})

	r.Mount("/", web.NewRouter(h, stream))
	return r, nil
}
