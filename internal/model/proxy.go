// Package model defines shared types for the proxy.
package model

import "encoding/json"

// ProxyEnvelope is the wrapper a browser client POSTs to a proxy route:
// the caller-supplied API key plus the opaque payload destined for the
// upstream API. The body is never re-encoded; it travels upstream exactly
// as the client serialized it.
type ProxyEnvelope struct {
	APIKey string          `json:"apiKey"`
	Body   json.RawMessage `json:"body"`
}

// UpstreamResult is a buffered upstream response. Any HTTP status belongs
// here, 2xx or not; the handler forwards status, Content-Type and body to
// the caller byte-for-byte. Only network-level failures are modeled as
// errors.
type UpstreamResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ErrorBody is the JSON payload returned for failures that originate in
// the proxy itself rather than upstream: bad envelope, network error,
// internal error.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the failure description.
type ErrorDetail struct {
	Message string `json:"message"`
}

// NewErrorBody builds the error payload for a message.
func NewErrorBody(msg string) ErrorBody {
	return ErrorBody{Error: ErrorDetail{Message: msg}}
}
