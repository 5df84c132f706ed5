package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEventDirectory implements EventDirectory against the catalog
// service's internal API.
type HTTPEventDirectory struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPEventDirectory builds a catalog client with the given base URL
// and service API key.
func NewHTTPEventDirectory(baseURL, apiKey string, timeout time.Duration) *HTTPEventDirectory {
	return &HTTPEventDirectory{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetEvent implements EventDirectory.
func (d *HTTPEventDirectory) GetEvent(ctx context.Context, eventID string) (*EventInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/internal/v1/events/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", d.apiKey)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: fetch event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: catalog returned %d", resp.StatusCode)
	}
	var ev EventInfo
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("directory: decode event: %w", err)
	}
	return &ev, nil
}

// HTTPIdentity implements Identity against the identity service's
// internal API.
type HTTPIdentity struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPIdentity builds an identity client with the given base URL and
// service API key.
func NewHTTPIdentity(baseURL, apiKey string, timeout time.Duration) *HTTPIdentity {
	return &HTTPIdentity{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetBuyer implements Identity.
func (d *HTTPIdentity) GetBuyer(ctx context.Context, buyerID string) (*Buyer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/internal/v1/users/"+buyerID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", d.apiKey)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: fetch buyer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: identity returned %d", resp.StatusCode)
	}
	var b Buyer
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("directory: decode buyer: %w", err)
	}
	return &b, nil
}
