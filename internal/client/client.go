// Package client provides the outbound HTTP client for the upstream AI APIs.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"pagebuilder-proxy-go/internal/config"
	"pagebuilder-proxy-go/internal/metrics"
	"pagebuilder-proxy-go/internal/model"
)

// Client issues single-shot buffered POST requests to the upstream AI APIs.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a Client with connection pooling. The http.Client itself
// carries no timeout: deadlines are target-specific and applied per call.
// The metrics parameter is optional; pass nil to disable upstream metrics
// recording.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "upstream_client"),
		metrics:    m,
	}
}

// Post sends body to the target as a JSON POST and reads the full response
// into memory. The target's auth header carries the caller-supplied key
// verbatim, present or not; key validation is the upstream's job.
//
// Any HTTP status the upstream produces, 2xx or not, comes back as an
// UpstreamResult so the caller can forward it untouched. An error return
// means the request never yielded a usable response: dial failure, DNS
// failure, timeout, connection reset.
func (c *Client) Post(ctx context.Context, target *config.TargetConfig, apiKey string, body []byte) (*model.UpstreamResult, error) {
	if target.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(target.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(target.AuthHeader, apiKey)
	for k, v := range target.ExtraHeaders {
		req.Header.Set(k, v)
	}

	c.logger.Debug("upstream request",
		"target", target.Name,
		"url", target.URL,
		"bytes", len(body),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(target.Name).Observe(duration)
	}

	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", target.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: read response: %w", target.Name, err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(target.Name, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.UpstreamResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}
