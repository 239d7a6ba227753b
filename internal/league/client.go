package league

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxFeedBytes = 1 << 20

// Client fetches league round feeds over HTTP.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Fetch downloads and decodes a feed document.
func (c *Client) Fetch(ctx context.Context, url string) (Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Feed{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Feed{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Feed{}, fmt.Errorf("feed %s: http %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return Feed{}, err
	}

	var feed Feed
	if err := json.Unmarshal(body, &feed); err != nil {
		return Feed{}, fmt.Errorf("feed %s: %w", url, err)
	}
	return feed, nil
}
