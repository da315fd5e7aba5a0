package transport

import "net/http"

// RequestIDHeader carries a per-request UUID so a stream can be matched
// against server-side logs.
const RequestIDHeader = "X-Request-ID"

// setRequestHeaders sets the headers every completions request carries.
// Accept-Encoding is left to net/http, which is configured not to request
// compression so event bytes arrive as they are flushed.
func setRequestHeaders(req *http.Request, apiKey, requestID string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(RequestIDHeader, requestID)
}
