package rpcclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"
)

// HeaderProcedureType carries the procedure kind so servers can route or reject
// mutations sent to read-only endpoints.
const HeaderProcedureType = "X-RPC-Procedure-Type"

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Path       string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("rpcclient: %s: received status code %d", e.Path, e.StatusCode)
}

// Interface assertion to ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// HTTPClient calls procedures with JSON-RPC 2.0 over HTTP.
type HTTPClient struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient validates cfg and creates the client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "rpc_http_client"),
	}, nil
}

// Query calls a query procedure. Transient failures are retried with exponential backoff.
func (c *HTTPClient) Query(ctx context.Context, path string, input any, opts *RequestOptions) (any, error) {
	return c.call(ctx, ProcedureQuery, path, input, opts)
}

// Mutation calls a mutation procedure. Mutations are sent once.
func (c *HTTPClient) Mutation(ctx context.Context, path string, input any, opts *RequestOptions) (any, error) {
	return c.call(ctx, ProcedureMutation, path, input, opts)
}

func (c *HTTPClient) call(ctx context.Context, kind ProcedureType, path string, input any, opts *RequestOptions) (any, error) {
	body, err := json2.EncodeClientRequest(path, input)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: failed to encode request for %s: %w", path, err)
	}

	if opts != nil && opts.Signal != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(opts.Signal, cancel)
		defer stop()
	}

	attempts := 1
	if kind == ProcedureQuery {
		attempts += c.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, err := c.attempt(ctx, kind, path, body, opts)
		if err == nil {
			if attempt > 0 {
				c.logger.Debug("request succeeded after retry", "path", path, "attempt", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		if ctx.Err() != nil || !isRetryableError(err) {
			return nil, err
		}
		c.logger.Warn("request attempt failed", "path", path, "attempt", attempt+1, "error", err)
	}

	if attempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("rpcclient: %s failed after %d attempts: %w", path, attempts, lastErr)
}

func (c *HTTPClient) attempt(ctx context.Context, kind ProcedureType, path string, body []byte, opts *RequestOptions) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rpcclient: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderProcedureType, string(kind))
	for name, value := range c.cfg.Headers {
		req.Header.Set(name, value)
	}
	if v, ok := opts.ContextValue(ContextHeaders); ok {
		if headers, ok := v.(map[string]string); ok {
			for name, value := range headers {
				req.Header.Set(name, value)
			}
		}
	}

	do := c.client.Do
	if v, ok := opts.ContextValue(ContextFetch); ok {
		switch fetch := v.(type) {
		case FetchFunc:
			if fetch != nil {
				do = fetch
			}
		case func(*http.Request) (*http.Response, error):
			if fetch != nil {
				do = fetch
			}
		}
	}

	c.logger.Debug("rpc request", "path", path, "type", kind)

	resp, err := do(req)
	if err != nil {
		return nil, err
	}
	defer cleanlyCloseBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode}
	}

	var result any
	if err := json2.DecodeClientResponse(resp.Body, &result); err != nil {
		if errors.Is(err, json2.ErrNullResult) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

// cleanlyCloseBody drains and closes a response body so the connection can be reused.
func cleanlyCloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// isRetryableError reports whether err is a transient failure worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe")
}
