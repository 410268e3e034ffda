// Package catalog is the client side of the restaurant-catalog service. Only
// the lookup the restaurant consumer needs is modelled; catalog CRUD lives in
// its own service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable means the catalog could not answer; callers treat the lookup
// as retryable.
var ErrUnavailable = errors.New("restaurant catalog unavailable")

// Restaurant is the subset of the catalog record the consumer decides on.
type Restaurant struct {
	ID             uint64 `json:"id"`
	Name           string `json:"name"`
	IsActive       bool   `json:"is_active"`
	MinOrderAmount string `json:"min_order_amount"`
}

// Catalog looks up restaurants. A nil *Restaurant with nil error means the id
// is unknown.
type Catalog interface {
	Restaurant(ctx context.Context, id uint64) (*Restaurant, error)
}

// HTTPCatalog talks to the restaurant service over its HTTP surface.
type HTTPCatalog struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCatalog builds a client with a per-call timeout.
func NewHTTPCatalog(baseURL string, timeout time.Duration) *HTTPCatalog {
	return &HTTPCatalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Restaurant fetches one restaurant record. 404 maps to (nil, nil); transport
// errors and 5xx map to ErrUnavailable.
func (c *HTTPCatalog) Restaurant(ctx context.Context, id uint64) (*Restaurant, error) {
	url := fmt.Sprintf("%s/restaurants/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var r Restaurant
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return &r, nil
}
