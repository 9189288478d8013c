package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// StatusFunc builds a fresh Status snapshot at push time.
type StatusFunc func() Status

// Client pushes periodic status objects to one or more catalog hosts
// and can query them for active worker factories (spec §4.11).
type Client struct {
	Hosts          []string
	UpdateInterval time.Duration
	HTTPClient     *http.Client
	StatusFunc     StatusFunc

	logger zerolog.Logger
}

// New constructs a catalog client. hosts are base URLs, e.g.
// "http://catalog.example.org:9097".
func New(hosts []string, updateInterval time.Duration, statusFunc StatusFunc, logger zerolog.Logger) *Client {
	return &Client{
		Hosts:          hosts,
		UpdateInterval: updateInterval,
		HTTPClient:     &http.Client{Timeout: 10 * time.Second},
		StatusFunc:     statusFunc,
		logger:         logger,
	}
}

// Run pushes a status object every UpdateInterval until ctx is
// canceled. It never returns an error; push failures are logged and
// the loop continues, matching the advertisement's best-effort nature.
func (c *Client) Run(ctx context.Context) {
	if len(c.Hosts) == 0 {
		return
	}
	ticker := time.NewTicker(c.UpdateInterval)
	defer ticker.Stop()

	c.pushAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pushAll(ctx)
		}
	}
}

func (c *Client) pushAll(ctx context.Context) {
	status := c.StatusFunc()
	for _, host := range c.Hosts {
		if err := c.push(ctx, host, status); err != nil {
			c.logger.Warn().Err(err).Str("host", host).Msg("catalog push failed")
		}
	}
}

func (c *Client) push(ctx context.Context, host string, status Status) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("catalog: marshal status: %w", err)
	}
	if len(body) > maxStatusBytes {
		body, err = json.Marshal(status.Lean())
		if err != nil {
			return fmt.Errorf("catalog: marshal lean status: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/update", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: push to %s: %w", host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("catalog: push to %s: status %d", host, resp.StatusCode)
	}
	return nil
}

// FactoryEntry is one worker-factory record as advertised by a
// catalog host.
type FactoryEntry struct {
	Name       string `json:"name"`
	Project    string `json:"project"`
	MaxWorkers int    `json:"max_workers"`
}

// QueryFactories asks host for the factories advertising themselves
// under project.
func (c *Client) QueryFactories(ctx context.Context, host, project string) ([]FactoryEntry, error) {
	url := fmt.Sprintf("%s/query?type=dataswarm_factory&project=%s", host, project)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build query: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: query %s: %w", host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog: query %s: status %d", host, resp.StatusCode)
	}

	var entries []FactoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("catalog: decode factories: %w", err)
	}
	return entries, nil
}
