package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// RESTClient talks to the hosted backend's PostgREST-style row API.
// Each named collection maps to a path segment under the base URL.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// RESTOption configures a RESTClient
type RESTOption func(*RESTClient)

// WithTimeout overrides the default request timeout
func WithTimeout(timeout time.Duration) RESTOption {
	return func(c *RESTClient) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTClient) { c.httpClient = client }
}

// NewRESTClient creates a client for the row API rooted at baseURL
func NewRESTClient(baseURL, apiKey string, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Select returns the rows of collection matching the query
func (c *RESTClient) Select(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	body, err := c.doRequest(ctx, http.MethodGet, collection, q, nil)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s rows: %w", collection, err)
	}

	return rows, nil
}

// Insert creates a record and returns the stored row
func (c *RESTClient) Insert(ctx context.Context, collection string, record any) (json.RawMessage, error) {
	body, err := c.doRequest(ctx, http.MethodPost, collection, Query{}, record)
	if err != nil {
		return nil, err
	}

	// The row API echoes inserted rows back as a single-element array
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode inserted %s row: %w", collection, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	return rows[0], nil
}

// Update applies record's fields to every row matching the query
func (c *RESTClient) Update(ctx context.Context, collection string, q Query, record any) error {
	_, err := c.doRequest(ctx, http.MethodPatch, collection, q, record)
	return err
}

// Delete removes every row matching the query
func (c *RESTClient) Delete(ctx context.Context, collection string, q Query) error {
	_, err := c.doRequest(ctx, http.MethodDelete, collection, q, nil)
	return err
}

// doRequest performs one HTTP round trip against the row API
func (c *RESTClient) doRequest(ctx context.Context, method, collection string, q Query, body any) ([]byte, error) {
	u := c.baseURL + "/" + collection
	if qs := encodeQuery(q); qs != "" {
		u += "?" + qs
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s record: %w", collection, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}
	// Ask the API to echo affected rows so Insert can return the server id
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Collection: collection,
			Message:    strings.TrimSpace(string(data)),
		}
	}

	return data, nil
}

// encodeQuery renders a Query as PostgREST-style URL parameters
func encodeQuery(q Query) string {
	params := url.Values{}

	for column, value := range q.Eq {
		params.Set(column, "eq."+value)
	}

	if q.OrderBy != "" {
		direction := "asc"
		if q.Descending {
			direction = "desc"
		}
		params.Set("order", q.OrderBy+"."+direction)
	}

	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	return params.Encode()
}
