// Package cloud is the HTTP client for the restaurant cloud backend.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pos-edge/internal/metrics"
)

// ErrNoBaseURL is returned when no cloud base URL is configured.
var ErrNoBaseURL = errors.New("cloud base URL is not configured")

// APIError is a non-2xx answer from the cloud.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cloud returned status %d", e.Status)
	}
	return fmt.Sprintf("cloud returned status %d: %s", e.Status, e.Message)
}

// IsNetworkError reports whether err means the cloud could not be reached,
// as opposed to the cloud rejecting the request. 5xx answers count as
// unreachable since they signal the backend itself is down.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// ResolveBaseURL prefers the process override over the stored URL.
func ResolveBaseURL(override, stored string) string {
	if s := strings.TrimSpace(override); s != "" {
		return strings.TrimRight(s, "/")
	}
	return strings.TrimRight(strings.TrimSpace(stored), "/")
}

// ValidateBaseURL checks that raw is an absolute http(s) URL.
func ValidateBaseURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid cloud base URL %q", raw)
	}
	return raw, nil
}

// Client performs JSON requests against the cloud.
type Client struct {
	http *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// PostJSON posts body to rawURL and decodes a 2xx answer into out. It shares
// timeouts, metrics and APIError handling with the typed cloud calls.
func (c *Client) PostJSON(ctx context.Context, endpoint, rawURL string, headers map[string]string, body, out any) error {
	return c.doJSON(ctx, endpoint, http.MethodPost, rawURL, headers, body, out)
}

// doJSON sends body (when non-nil) to method url and decodes a 2xx answer into
// out (when non-nil). endpoint labels the request in metrics.
func (c *Client) doJSON(ctx context.Context, endpoint, method, rawURL string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.CloudRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.CloudRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.CloudRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
	}
	metrics.CloudRequestsTotal.WithLabelValues(endpoint, "ok").Inc()

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal cloud response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failure body, falling back to
// the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
