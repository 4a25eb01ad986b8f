package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const sheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// ErrUnknownTab is returned when an operation names a tab the spreadsheet
// does not have.
var ErrUnknownTab = errors.New("unknown tab")

// Client is an authenticated Sheets API client bound to one spreadsheet.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	spreadsheetID string
	// sheetIDs maps tab titles to numeric sheet ids, loaded once.
	sheetIDs map[string]int64
	titles   []string
}

// NewClient creates a Sheets client using the provided token and config.
// Refreshed tokens are written back to tokenPath.
func NewClient(ctx context.Context, tok *oauth2.Token, cfg *oauth2.Config, tokenPath, spreadsheetID string) *Client {
	ts := cfg.TokenSource(ctx, tok)
	httpClient := oauth2.NewClient(ctx, &savingTokenSource{ts: ts, path: tokenPath})
	return NewClientWithHTTP(httpClient, "", spreadsheetID)
}

// NewClientWithHTTP creates a client on an already authenticated HTTP client.
// An empty baseURL selects the public API.
func NewClientWithHTTP(httpClient *http.Client, baseURL, spreadsheetID string) *Client {
	if baseURL == "" {
		baseURL = sheetsBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, spreadsheetID: spreadsheetID}
}

// savingTokenSource wraps a TokenSource and persists refreshed tokens.
type savingTokenSource struct {
	ts   oauth2.TokenSource
	path string
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		// Best-effort save; ignore errors.
		_ = saveToken(s.path, tok)
		s.last = tok.AccessToken
	}
	return tok, nil
}

// a1Range quotes a tab title for A1 notation.
func a1Range(tab, cells string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'!" + cells
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, into any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheets API request failed: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sheets API error %d: %s", resp.StatusCode, string(data))
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decoding sheets response: %w", err)
	}
	return nil
}

type spreadsheetResponse struct {
	Sheets []struct {
		Properties struct {
			SheetID int64  `json:"sheetId"`
			Title   string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

func (c *Client) loadTabs(ctx context.Context) error {
	if c.sheetIDs != nil {
		return nil
	}
	endpoint := fmt.Sprintf("%s/%s?fields=%s", c.baseURL, url.PathEscape(c.spreadsheetID),
		url.QueryEscape("sheets.properties(sheetId,title)"))
	var resp spreadsheetResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return fmt.Errorf("listing tabs: %w", err)
	}
	c.sheetIDs = make(map[string]int64, len(resp.Sheets))
	c.titles = c.titles[:0]
	for _, s := range resp.Sheets {
		c.sheetIDs[s.Properties.Title] = s.Properties.SheetID
		c.titles = append(c.titles, s.Properties.Title)
	}
	return nil
}

// TabNames lists the tab titles in spreadsheet order.
func (c *Client) TabNames(ctx context.Context) ([]string, error) {
	if err := c.loadTabs(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), c.titles...), nil
}

type valueRange struct {
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values"`
}

// ReadColumn returns the formatted cell values of one column, top to bottom.
// Trailing empty cells are not returned.
func (c *Client) ReadColumn(ctx context.Context, tab, column string) ([]string, error) {
	rng := a1Range(tab, column+":"+column)
	endpoint := fmt.Sprintf("%s/%s/values/%s?majorDimension=COLUMNS",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(rng))
	var resp valueRange
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("reading %s: %w", rng, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	cells := make([]string, len(resp.Values[0]))
	for i, v := range resp.Values[0] {
		if v != nil {
			cells[i] = fmt.Sprint(v)
		}
	}
	return cells, nil
}

// AppendRows appends rows after the last row of the tab's table.
func (c *Client) AppendRows(ctx context.Context, tab string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	rng := a1Range(tab, "A1")
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(rng))
	if err := c.do(ctx, http.MethodPost, endpoint, valueRange{MajorDimension: "ROWS", Values: rows}, nil); err != nil {
		return fmt.Errorf("appending %d rows to %q: %w", len(rows), tab, err)
	}
	return nil
}

type dimensionRange struct {
	SheetID    int64  `json:"sheetId"`
	Dimension  string `json:"dimension"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

type deleteDimension struct {
	Range dimensionRange `json:"range"`
}

type updateRequest struct {
	DeleteDimension *deleteDimension `json:"deleteDimension,omitempty"`
}

type batchUpdateRequest struct {
	Requests []updateRequest `json:"requests"`
}

// DeleteRows deletes rows first..last (1-based, inclusive) of the tab.
func (c *Client) DeleteRows(ctx context.Context, tab string, first, last int) error {
	if first < 1 || last < first {
		return fmt.Errorf("invalid row range %d-%d", first, last)
	}
	if err := c.loadTabs(ctx); err != nil {
		return err
	}
	sheetID, ok := c.sheetIDs[tab]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}

	req := batchUpdateRequest{Requests: []updateRequest{{
		DeleteDimension: &deleteDimension{Range: dimensionRange{
			SheetID:    sheetID,
			Dimension:  "ROWS",
			StartIndex: first - 1,
			EndIndex:   last,
		}},
	}}}

	endpoint := fmt.Sprintf("%s/%s:batchUpdate", c.baseURL, url.PathEscape(c.spreadsheetID))
	if err := c.do(ctx, http.MethodPost, endpoint, req, nil); err != nil {
		return fmt.Errorf("deleting rows %d-%d of %q: %w", first, last, tab, err)
	}
	return nil
}
