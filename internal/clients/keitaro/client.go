package keitaro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"keitaro-bridge/internal/observability"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	requestTimeout = 30 * time.Second
	errorBodyLimit = 1000
)

// ErrAmbiguous marks a write whose outcome is unknown: the tracker answered
// with a server error after possibly applying the change. Callers recover by
// re-listing the affected campaign's streams.
var ErrAmbiguous = errors.New("keitaro write outcome unknown")

// APIError represents a non-2xx answer from the tracker
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keitaro api error: status %d: %s", e.Status, e.Body)
}

// IsUnauthorized reports whether err is a 401 answer from the tracker
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// isServerError reports whether err is a 5xx answer from the tracker
func isServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError
}

// Client talks to the Keitaro admin API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a new Keitaro API client
func NewClient(baseURL, apiKey string, logger *observability.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// do performs one API request and returns the raw response body. Non-2xx
// statuses come back as *APIError with the body truncated for logging.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "keitaro_method", Value: method},
		observability.Field{Key: "keitaro_path", Value: path},
	)

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.logger.Error(ctx, "failed to marshal keitaro request", err)
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		c.logger.Error(ctx, "failed to create keitaro request", err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "failed to call keitaro API", err)
		return nil, fmt.Errorf("failed to call keitaro: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error(ctx, "failed to read keitaro response", err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode, Body: truncate(string(respBody), errorBodyLimit)}
		c.logger.Error(ctx, "keitaro API returned an error", apiErr)
		return nil, apiErr
	}
	return respBody, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// decodeList unwraps the list shapes the tracker is known to produce: a bare
// array, a {"data": [...]} envelope, or an endpoint-named key. Any other
// shape decodes to an empty list with a warning, never an error.
func (c *Client) decodeList(ctx context.Context, body []byte, key string, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, out); err != nil {
			return fmt.Errorf("failed to decode list response: %w", err)
		}
		return nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return fmt.Errorf("failed to decode list envelope: %w", err)
	}
	for _, candidate := range []string{"data", key} {
		raw, ok := envelope[candidate]
		if !ok {
			continue
		}
		rawTrimmed := bytes.TrimSpace(raw)
		if len(rawTrimmed) == 0 || rawTrimmed[0] != '[' {
			continue
		}
		if err := json.Unmarshal(rawTrimmed, out); err != nil {
			return fmt.Errorf("failed to decode list response: %w", err)
		}
		return nil
	}

	c.logger.Warn(ctx, fmt.Sprintf("unrecognized list shape from keitaro, expected array or %q envelope", key))
	return nil
}
