// Package reputation answers "is this user CAS-flagged" with a redis-backed
// TTL cache in front of the CAS API, coalescing concurrent misses.
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Lookup is the remote reputation check. Client implements it against the
// CAS API; tests substitute fakes.
type Lookup interface {
	IsFlagged(ctx context.Context, userID int64) (bool, error)
}

// Client queries the CAS check endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a CAS client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type casResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

// IsFlagged calls GET <base>/check?user_id=N. A record is present when the
// response carries ok=true and a non-empty result.
func (c *Client) IsFlagged(ctx context.Context, userID int64) (bool, error) {
	url := fmt.Sprintf("%s/check?user_id=%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("cas request for %d: %w", userID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("cas request for %d: unexpected status %d", userID, resp.StatusCode)
	}

	var body casResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("cas response for %d: %w", userID, err)
	}
	return body.OK && len(body.Result) > 0 && string(body.Result) != "null" &&
		string(body.Result) != "false", nil
}
