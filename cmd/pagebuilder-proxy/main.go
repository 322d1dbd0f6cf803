package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"pagebuilder-proxy-go/internal/client"
	"pagebuilder-proxy-go/internal/config"
	"pagebuilder-proxy-go/internal/handler"
	"pagebuilder-proxy-go/internal/metrics"
	"pagebuilder-proxy-go/internal/middleware"
	"pagebuilder-proxy-go/internal/model"
	"pagebuilder-proxy-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("pagebuilder-proxy"),
		kong.Description("Local dev server for the landing page builder: serves the front-end and proxies Claude/Gemini API calls."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newEcho,
			client.New,
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, registerMetrics, warnConfigPermissions, startServer),
	).Run()
}

// newLogger builds the diagnostic sink. It writes to stderr so proxy
// diagnostics never mix with anything consuming stdout.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		h = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(h)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout is disabled (0): upstream generation calls can run for
	// minutes, and the claude target has no upstream timeout at all.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.HTTPErrorHandler = newErrorHandler(logger)

	// Pre-router: preflight must be answered on every path, known or not.
	e.Pre(middleware.CORS())

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.Metrics(m))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))

	// Everything the router doesn't match is served from the static root.
	e.Use(echomw.StaticWithConfig(echomw.StaticConfig{
		Root:  cfg.Static.Root,
		Index: "index.html",
	}))

	return e
}

// newErrorHandler converts every unhandled error into the JSON error
// envelope, so a single request's failure always surfaces as a structured
// response instead of a crash or an empty reply.
func newErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				"err", err,
				"path", c.Request().URL.Path,
			)
		}

		if err := c.JSON(code, model.NewErrorBody(msg)); err != nil {
			logger.Error("writing error response", "err", err)
		}
	}
}

func registerMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(
		promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	))
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}

			url := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
			logger.Info("dev server running",
				"addr", addr,
				"url", url,
				"static_root", cfg.Static.Root,
			)
			for _, t := range cfg.Targets() {
				if t.TimeoutSeconds == 0 {
					logger.Warn("upstream target has no timeout; a stalled upstream holds its request open indefinitely",
						"target", t.Name,
					)
				}
			}

			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()

			if !cfg.Static.NoBrowser {
				go func() {
					if err := browser.OpenURL(url); err != nil {
						logger.Warn("opening browser", "err", err)
					}
				}()
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
