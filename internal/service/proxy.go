// Package service implements the proxy forwarding logic.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"pagebuilder-proxy-go/internal/client"
	"pagebuilder-proxy-go/internal/config"
	"pagebuilder-proxy-go/internal/model"
)

// ErrBadEnvelope is returned when the inbound payload is not a valid proxy
// envelope. No upstream call is attempted in that case.
var ErrBadEnvelope = errors.New("invalid proxy envelope")

// ProxyService parses inbound envelopes and relays them to the configured
// upstream targets.
type ProxyService struct {
	client *client.Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.Client, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "proxy_service"),
	}
}

// Forward parses raw as a ProxyEnvelope and relays its body to the named
// target. The envelope must parse as JSON and carry a body field; the API
// key is deliberately not pre-validated — an empty key goes upstream as an
// empty auth header and the upstream's own 401 comes back verbatim.
//
// Upstream HTTP errors are not errors here: any status the upstream
// produced is inside the UpstreamResult so the handler can forward it
// untouched. An error return means no usable upstream response exists.
func (s *ProxyService) Forward(ctx context.Context, targetName string, raw []byte) (*model.UpstreamResult, error) {
	target := s.cfg.Target(targetName)
	if target == nil {
		return nil, fmt.Errorf("unknown upstream target %q", targetName)
	}

	var env model.ProxyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if len(env.Body) == 0 || string(env.Body) == "null" {
		return nil, fmt.Errorf("%w: missing body field", ErrBadEnvelope)
	}

	s.logRequest(target, &env)

	res, err := s.client.Post(ctx, target, env.APIKey, env.Body)
	if err != nil {
		return nil, err
	}

	s.inspectResponse(target, res)

	return res, nil
}
