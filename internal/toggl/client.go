package toggl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Tiliavir/billy/internal/model"
)

const defaultBaseURL = "https://api.track.toggl.com/api/v9"

// RawEntry is a time entry as returned by the time-tracking API.
type RawEntry struct {
	ID          int64   `json:"id"`
	ProjectID   *int64  `json:"project_id"`
	Description string  `json:"description"`
	Start       string  `json:"start"`
	Stop        *string `json:"stop"`
	// Duration is negative while the entry is running.
	Duration int64 `json:"duration"`
}

// Client is an authenticated time-tracking API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	now        func() time.Time
}

// NewClient creates a client authenticating with the given API token.
// An empty baseURL selects the public API.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, token: token, now: time.Now}
}

// FetchEntries returns the entries of the authenticated user starting within
// r. A nil r.Until means up to now.
func (c *Client) FetchEntries(ctx context.Context, r model.TimeRange) ([]RawEntry, error) {
	end := c.now().Add(time.Minute)
	if r.Until != nil {
		end = *r.Until
	}

	endpoint := fmt.Sprintf("%s/me/time_entries?start_date=%s&end_date=%s",
		c.baseURL,
		url.QueryEscape(r.After.UTC().Format(time.RFC3339)),
		url.QueryEscape(end.UTC().Format(time.RFC3339)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.token, "api_token")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("time entries request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("time entries API error %d: %s", resp.StatusCode, string(body))
	}

	var entries []RawEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding time entries: %w", err)
	}
	return entries, nil
}
