// Package reststore reads milestones from the hosted backend's REST API.
package reststore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/storage"
	"github.com/folio-labs/journey/pkg/core"
)

const defaultTimeout = 15 * time.Second

// row is the wire shape of one experiences row. Unknown columns are ignored.
type row struct {
	ID         int64           `json:"id"`
	SortOrder  int             `json:"sort_order"`
	Role       string          `json:"role"`
	Company    string          `json:"company"`
	StartDate  string          `json:"start_date"`
	EndDate    *string         `json:"end_date"`
	Location   *string         `json:"location"`
	Highlights json.RawMessage `json:"highlights"`
}

// Client handles communication with the hosted backend.
type Client struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
}

var _ storage.Store = (*Client)(nil)

// New creates a new REST client.
func New(cfg config.RestConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	table := cfg.Table
	if table == "" {
		table = "experiences"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		table:      table,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Init checks that the base URL parses.
func (c *Client) Init() error {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid rest base URL %q", c.baseURL)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Healthcheck checks if the backend REST endpoint is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, c.baseURL+"/rest/v1/")
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Milestones fetches the table ordered by sort_order.
func (c *Client) Milestones(ctx context.Context) ([]core.Milestone, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "sort_order.asc")
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(c.table), q.Encode())

	req, err := c.newRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s returned status %d: %s", c.table, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.table, err)
	}
	if len(rows) == 0 {
		return nil, storage.ErrNoMilestones
	}

	out := make([]core.Milestone, 0, len(rows))
	for _, r := range rows {
		m := core.Milestone{
			Role:      r.Role,
			Company:   r.Company,
			StartDate: r.StartDate,
			EndDate:   r.EndDate,
			Location:  r.Location,
		}
		if len(r.Highlights) > 0 && string(r.Highlights) != "null" {
			if err := json.Unmarshal(r.Highlights, &m.Highlights); err != nil {
				return nil, fmt.Errorf("row %d highlights: %w", r.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}
