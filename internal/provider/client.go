package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the aggregation service over JSON/HTTP. It implements
// Client.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the aggregation service at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type incrementalRequest struct {
	Credential string `json:"access_token"`
	Cursor     string `json:"cursor,omitempty"`
}

type incrementalResponse struct {
	Added      []wireTransaction    `json:"added"`
	Modified   []wireTransaction    `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	Accounts   []wireAccount        `json:"accounts"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

type rangeRequest struct {
	Credential string `json:"access_token"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Offset     int    `json:"offset"`
}

type rangeResponse struct {
	Accounts     []wireAccount     `json:"accounts"`
	Transactions []wireTransaction `json:"transactions"`
	TotalCount   int               `json:"total_transactions"`
}

// FetchIncremental returns the next delta page after cursor.
func (c *HTTPClient) FetchIncremental(ctx context.Context, credential, cursor string) (*Delta, error) {
	var resp incrementalResponse
	if err := c.post(ctx, "/transactions/sync", incrementalRequest{Credential: credential, Cursor: cursor}, &resp); err != nil {
		return nil, fmt.Errorf("incremental fetch failed: %w", err)
	}

	added, err := convertTransactions(resp.Added)
	if err != nil {
		return nil, err
	}
	modified, err := convertTransactions(resp.Modified)
	if err != nil {
		return nil, err
	}
	accounts, err := convertAccounts(resp.Accounts)
	if err != nil {
		return nil, err
	}
	return &Delta{
		Added:      added,
		Modified:   modified,
		Removed:    resp.Removed,
		Accounts:   accounts,
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
	}, nil
}

// FetchRange returns one page of the date-range bulk fetch.
func (c *HTTPClient) FetchRange(ctx context.Context, credential, start, end string, offset int) (*RangePage, error) {
	var resp rangeResponse
	req := rangeRequest{Credential: credential, StartDate: start, EndDate: end, Offset: offset}
	if err := c.post(ctx, "/transactions/get", req, &resp); err != nil {
		return nil, fmt.Errorf("range fetch failed: %w", err)
	}

	transactions, err := convertTransactions(resp.Transactions)
	if err != nil {
		return nil, err
	}
	accounts, err := convertAccounts(resp.Accounts)
	if err != nil {
		return nil, err
	}
	return &RangePage{
		Accounts:     accounts,
		Transactions: transactions,
		TotalCount:   resp.TotalCount,
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("aggregation service returned %d for %s: %s", resp.StatusCode, path, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
