package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultEndpoint serves {"result":"success","base_code":"USD","rates":{...}}.
const DefaultEndpoint = "https://open.er-api.com/v6/latest/"

const maxBodyBytes = 1 << 20

// HTTPProvider fetches rate tables from an open.er-api.com compatible endpoint.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProvider builds a provider. Empty endpoint means DefaultEndpoint.
func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type ratesResponse struct {
	Result    string             `json:"result"`
	ErrorType string             `json:"error-type"`
	Rates     map[string]float64 `json:"rates"`
}

// Rates returns the full table for base.
func (p *HTTPProvider) Rates(ctx context.Context, base string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+url.PathEscape(base), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := trip.CheckHTTPStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	var body ratesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("rates provider returned %q (%s)", body.Result, body.ErrorType)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("rates provider returned an empty table")
	}
	return body.Rates, nil
}
