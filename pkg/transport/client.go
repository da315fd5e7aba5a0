// Package transport opens streamed chat completion requests.
//
// A Client issues exactly one HTTP POST per Open and hands the caller the
// raw response body. It never retries: a failed open surfaces immediately
// and the caller decides what the user sees.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

// Client opens streaming completion requests against one endpoint.
type Client struct {
	endpoint    string
	model       string
	credentials CredentialSource
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("credential source is required")
	}

	c := &Client{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		credentials: cfg.Credentials,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient()
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}

	return c, nil
}

func newHTTPClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DisableCompression = true

	return &http.Client{Transport: t}
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Open sends history to the completions endpoint and returns the response
// body positioned at its first byte. The caller must close it. Cancelling
// ctx aborts the request and unblocks any pending read on the body.
//
// Errors are ErrEmptyHistory, ErrMissingCredential, ErrCancelled, or a
// *TransportError.
func (c *Client) Open(ctx context.Context, history []llm.Message) (io.ReadCloser, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(ctx, err)
	}

	apiKey, err := c.credentials.APIKey()
	if err != nil {
		if errors.Is(err, ErrMissingCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMissingCredential, err)
	}
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	body, err := json.Marshal(llm.NewStreamingRequest(c.model, history))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	requestID := uuid.NewString()
	setRequestHeaders(req, apiKey, requestID)

	log := c.logger.With("request_id", requestID)
	log.Debug("opening completion stream",
		"endpoint", c.endpoint,
		"model", c.model,
		"messages", len(history),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx, ctx.Err())
		}
		log.Error("completion request failed", "error", err)
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		log.Error("completions endpoint returned error",
			"status", resp.StatusCode,
			"body", string(excerpt),
		)
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		log.Error("completions endpoint returned no body", "status", resp.StatusCode)
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: errNoBody}
	}

	log.Debug("completion stream opened",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
	)

	return resp.Body, nil
}

// cancelled maps a context error to ErrCancelled when the caller cancelled,
// and to a TransportError when a deadline expired.
func cancelled(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, err) {
		err = fmt.Errorf("%w: %w", err, cause)
	}
	return &TransportError{Err: err}
}
