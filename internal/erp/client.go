package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/motorgrid/exportd/internal/config"
)

// Client talks to the ERP reporting API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a reporting API client from config.
func NewClient(cfg *config.ERP, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "erp-start-export",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// BaseURL returns the configured API endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL resolves a server-relative file path against the API endpoint.
func (c *Client) ResolveURL(filePath string) string {
	if strings.HasPrefix(filePath, "http://") || strings.HasPrefix(filePath, "https://") {
		return filePath
	}
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}
	return c.baseURL + filePath
}

// StartExport submits an export request. The call is guarded by a
// circuit breaker: once the reporting backend stops answering, further
// submissions fail fast instead of piling up. Status polling is not
// routed through the breaker, so in-flight jobs still resolve.
func (c *Client) StartExport(ctx context.Context, params *ExportParams) (*StartExportResult, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		out := &StartExportResult{}
		if err := c.post(ctx, "/v1/reports/export", params, out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*StartExportResult), nil
}

// ExportStatus queries remote job status by task ID.
func (c *Client) ExportStatus(ctx context.Context, taskID string) (*StatusResult, error) {
	out := &StatusResult{}
	path := "/v1/reports/export/" + url.PathEscape(taskID)
	if err := c.get(ctx, path, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("reporting API returned %s", res.Status)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
