package service

import (
	"encoding/json"
	"strings"

	"pagebuilder-proxy-go/internal/config"
	"pagebuilder-proxy-go/internal/model"
)

// requestParams is the subset of generation parameters surfaced in the
// diagnostic log. The forwarded body stays opaque; this parse is read-only.
type requestParams struct {
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
}

// claudeContent is the subset of a Claude messages response needed for
// content inspection.
type claudeContent struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// logRequest writes the diagnostic record for an inbound proxy request.
// The key itself never appears in the log; only its presence and a short
// prefix for correlation.
func (s *ProxyService) logRequest(target *config.TargetConfig, env *model.ProxyEnvelope) {
	attrs := []any{
		"target", target.Name,
		"key_present", env.APIKey != "",
		"key_prefix", keyPrefix(env.APIKey),
		"body_bytes", len(env.Body),
	}

	var p requestParams
	if err := json.Unmarshal(env.Body, &p); err == nil {
		if p.Model != "" {
			attrs = append(attrs, "model", p.Model)
		}
		if p.MaxTokens != 0 {
			attrs = append(attrs, "max_tokens", p.MaxTokens)
		}
		if p.Temperature != nil {
			attrs = append(attrs, "temperature", *p.Temperature)
		}
	}

	s.logger.Info("proxy request", attrs...)
}

// inspectResponse writes diagnostic detail about an upstream response,
// including a heuristic check for markdown code fences that the front-end
// response parser would otherwise choke on. Best-effort only: nothing here
// may influence what the caller receives.
func (s *ProxyService) inspectResponse(target *config.TargetConfig, res *model.UpstreamResult) {
	s.logger.Info("proxy response",
		"target", target.Name,
		"status", res.StatusCode,
		"content_type", res.ContentType,
		"bytes", len(res.Body),
	)

	text := string(res.Body)
	if strings.Contains(text, "```") {
		s.logger.Warn("upstream response contains markdown code fences",
			"target", target.Name,
		)
	}

	var parsed claudeContent
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		s.logger.Debug("upstream response is not valid JSON",
			"target", target.Name,
			"err", err,
		)
		return
	}
	if len(parsed.Content) == 0 {
		return
	}

	content := parsed.Content[0].Text
	s.logger.Debug("response content text",
		"target", target.Name,
		"chars", len(content),
	)
	if strings.Contains(content, "```") {
		s.logger.Warn("response content text is wrapped in markdown fences; the front-end parser must unwrap it",
			"target", target.Name,
		)
	}
}

// keyPrefix returns a short prefix of the API key for log correlation.
// Eight characters is enough to tell key families apart without exposing a
// usable fragment.
func keyPrefix(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 8 {
		key = key[:8]
	}
	return key + "..."
}
