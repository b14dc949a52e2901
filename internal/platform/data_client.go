package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRequestTimeout = 30 * time.Second

// UpstreamError wraps a failed call against the hosting platform. Callers
// never retry; the failure is surfaced to the dashboard as-is.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform: %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("platform: %s failed: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func newUpstreamError(operation string, resp *resty.Response, err error) error {
	if err != nil {
		return &UpstreamError{Operation: operation, Err: err}
	}
	return &UpstreamError{Operation: operation, StatusCode: resp.StatusCode(), Body: resp.String()}
}

// ClientConfig configures the outbound HTTP clients for the hosting platform.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func newRestyClient(cfg ClientConfig) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", cfg.APIKey)
	}
	return client
}

// DataClient talks to the platform's generic collection-store API. All three
// dashboard collections (Notes, Labels, SignatureCache) go through it.
type DataClient struct {
	client *resty.Client
}

// NewDataClient constructs a collection-store client.
func NewDataClient(cfg ClientConfig) *DataClient {
	return &DataClient{client: newRestyClient(cfg)}
}

type queryPayload struct {
	Filters []Filter `json:"filters,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Query runs a filtered query against one collection.
func (c *DataClient) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if req.Collection == "" {
		return QueryResult{}, ErrMissingCollection
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&queryPayload{Filters: req.Filters, Limit: req.Limit}).
		Post(fmt.Sprintf("/v1/collections/%s/query", req.Collection))
	if err != nil || resp.StatusCode() != http.StatusOK {
		return QueryResult{}, newUpstreamError("data.query", resp, err)
	}
	var result QueryResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return QueryResult{}, newUpstreamError("data.query", nil, err)
	}
	return result, nil
}

// Insert stores a new item and returns it with the stamped identifier.
func (c *DataClient) Insert(ctx context.Context, collection string, item Item) (Item, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(item).
		Post(fmt.Sprintf("/v1/collections/%s/items", collection))
	if err != nil || (resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated) {
		return nil, newUpstreamError("data.insert", resp, err)
	}
	var stored Item
	if err := json.Unmarshal(resp.Body(), &stored); err != nil {
		return nil, newUpstreamError("data.insert", nil, err)
	}
	return stored, nil
}

// Update replaces the stored item identified by the payload's _id. The
// platform performs a full-row replace; missing fields are dropped.
func (c *DataClient) Update(ctx context.Context, collection string, item Item) (Item, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}
	itemID := item.ID()
	if itemID == "" {
		return nil, ErrMissingItemID
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(item).
		Put(fmt.Sprintf("/v1/collections/%s/items/%s", collection, itemID))
	if err != nil || resp.StatusCode() != http.StatusOK {
		return nil, newUpstreamError("data.update", resp, err)
	}
	var stored Item
	if err := json.Unmarshal(resp.Body(), &stored); err != nil {
		return nil, newUpstreamError("data.update", nil, err)
	}
	return stored, nil
}
