package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Standard errors
var (
	// ErrNotFound indicates a select matched no rows
	ErrNotFound = errors.New("backend: not found")
)

// Query describes the filters applied to a select, update or delete
type Query struct {
	// Eq holds column → value equality filters, ANDed together
	Eq map[string]string
	// OrderBy names the column to sort on; empty means backend default
	OrderBy    string
	Descending bool
	// Limit caps the number of returned rows; 0 means no limit
	Limit int
}

// Client is the remote backend collaborator. Every call may fail with a
// transport or backend error; callers decide whether to retry, queue or
// fall back to cache.
type Client interface {
	// Select returns the rows of collection matching the query
	Select(ctx context.Context, collection string, q Query) ([]json.RawMessage, error)

	// Insert creates a record and returns the stored row, including the
	// server-assigned id
	Insert(ctx context.Context, collection string, record any) (json.RawMessage, error)

	// Update applies record's fields to every row matching the query
	Update(ctx context.Context, collection string, q Query, record any) error

	// Delete removes every row matching the query
	Delete(ctx context.Context, collection string, q Query) error
}

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Collection string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %s returned %d: %s", e.Collection, e.StatusCode, e.Message)
}

// IsNotFound checks if error indicates an absent record
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}

	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
