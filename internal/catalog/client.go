// Package catalog talks to the task-hosting service (a Turkle instance or
// compatible) that knows which instance ids exist for each task and serves
// the rendered task pages.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client is a thin HTTP client for the task catalog.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient builds a catalog client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// GetTasks fetches the catalog: task name -> available instance ids.
func (c *Client) GetTasks(ctx context.Context) (map[string][]int, error) {
	url := c.baseURL + "/get_tasks/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch task catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("task catalog returned %s", resp.Status)
	}

	var tasks map[string][]int
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return nil, fmt.Errorf("decode task catalog: %w", err)
	}

	c.log.Debug("fetched task catalog", zap.Int("tasks", len(tasks)))
	return tasks, nil
}

// TaskPageURL returns the renderable page for one task instance.
func (c *Client) TaskPageURL(instanceID int) string {
	return fmt.Sprintf("%s/task/%d/iframe/", c.baseURL, instanceID)
}
