package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"pagebuilder-proxy-go/internal/config"
	"pagebuilder-proxy-go/internal/model"
	"pagebuilder-proxy-go/internal/service"
)

// ProxyHandler serves the two proxy routes and maps service failures to the
// JSON error envelope the front-end expects.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Claude proxies POST /api/claude to the Anthropic messages API.
func (h *ProxyHandler) Claude(c echo.Context) error {
	return h.proxy(c, config.TargetClaude)
}

// Gemini proxies POST /api/gemini to the Gemini image-generation API.
func (h *ProxyHandler) Gemini(c echo.Context) error {
	return h.proxy(c, config.TargetGemini)
}

func (h *ProxyHandler) proxy(c echo.Context, targetName string) error {
	req := c.Request()

	// Single-shot relay: the whole body is buffered before anything goes
	// upstream. BodyLimit middleware bounds the read.
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return h.mapError(c, targetName, fmt.Errorf("read request body: %w", err))
	}

	res, err := h.service.Forward(req.Context(), targetName, raw)
	if err != nil {
		return h.mapError(c, targetName, err)
	}

	// Byte-transparent relay: the upstream's status, Content-Type and body
	// go back exactly as received, success or not.
	if res.ContentType != "" {
		c.Response().Header().Set(echo.HeaderContentType, res.ContentType)
	}
	c.Response().WriteHeader(res.StatusCode)
	if _, err := c.Response().Write(res.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// mapError converts every local failure to a 500 with the JSON error
// envelope. Upstream HTTP errors never reach this path; they are forwarded
// verbatim as results.
func (h *ProxyHandler) mapError(c echo.Context, targetName string, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"target", targetName,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrBadEnvelope) {
		return writeError(c, err.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return writeError(c, fmt.Sprintf("network error: upstream %s timed out", targetName))
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return writeError(c, fmt.Sprintf("network error: cannot resolve upstream %s host", targetName))
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return writeError(c, fmt.Sprintf("network error: upstream %s unreachable: %v", targetName, urlErr.Err))
	}

	return writeError(c, err.Error())
}

func writeError(c echo.Context, msg string) error {
	return c.JSON(http.StatusInternalServerError, model.NewErrorBody(msg))
}
