// Package managed implements the third-party rendering service strategy. The
// service runs the page in its own browser and returns the rendered markup.
package managed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	collyfetcher "github.com/JakeFAU/tripsync/internal/fetcher/colly"
	"github.com/JakeFAU/tripsync/internal/fetcher/render"
	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultEndpoint is the service's render API.
const DefaultEndpoint = "https://app.scrapingbee.com/api/v1/"

// initialStatusHeader carries the target site's own status code.
const initialStatusHeader = "Spb-Initial-Status-Code"

// Config controls the rendering service request.
type Config struct {
	Endpoint        string
	APIKey          string
	CountryCode     string
	SettleDelay     time.Duration
	ExpandLabels    []string
	MaxExpandClicks int
}

// Getter performs the plain GET against the service endpoint.
type Getter interface {
	Get(ctx context.Context, url string, headers http.Header) (collyfetcher.Response, error)
}

// Client is the managed rendering strategy.
type Client struct {
	cfg    Config
	getter Getter
	now    func() time.Time
}

// New returns trip.ErrStrategyUnavailable when no API key is configured; the
// caller drops the strategy rather than treating it as a failure.
func New(cfg Config, getter Getter) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("managed renderer: %w", trip.ErrStrategyUnavailable)
	}
	if getter == nil {
		return nil, fmt.Errorf("managed renderer: getter is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = render.DefaultSettleDelay
	}
	if len(cfg.ExpandLabels) == 0 {
		cfg.ExpandLabels = render.DefaultExpandLabels
	}
	if cfg.MaxExpandClicks <= 0 {
		cfg.MaxExpandClicks = render.DefaultMaxClicks
	}
	return &Client{
		cfg:    cfg,
		getter: getter,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Method identifies the strategy.
func (c *Client) Method() trip.FetchMethod {
	return trip.FetchManaged
}

// Fetch asks the service to render target and returns the markup.
func (c *Client) Fetch(ctx context.Context, target string) (trip.RawPage, error) {
	endpoint, err := c.requestURL(target)
	if err != nil {
		return trip.RawPage{}, err
	}
	resp, err := c.getter.Get(ctx, endpoint, nil)
	if err != nil {
		return trip.RawPage{}, fmt.Errorf("managed render %s: %w", target, c.redact(err))
	}
	if err := trip.CheckHTTPStatus(resp.StatusCode); err != nil {
		return trip.RawPage{}, fmt.Errorf("managed render: %w", err)
	}
	status := resp.StatusCode
	if initial, convErr := strconv.Atoi(resp.Headers.Get(initialStatusHeader)); convErr == nil && initial > 0 {
		status = initial
		if err := trip.CheckHTTPStatus(status); err != nil {
			return trip.RawPage{}, fmt.Errorf("managed render target: %w", err)
		}
	}
	metrics.ObserveFetchBytes(target, len(resp.Body))
	return trip.RawPage{
		URL:        target,
		Markup:     string(resp.Body),
		FetchedVia: trip.FetchManaged,
		FetchedAt:  c.now(),
		StatusCode: status,
	}, nil
}

// redactedError masks the service key in the wrapped error's message. Transport
// errors quote the request URL, which carries the key as a query parameter.
type redactedError struct {
	err     error
	secrets []string
}

func (e *redactedError) Error() string {
	msg := e.err.Error()
	for _, s := range e.secrets {
		msg = strings.ReplaceAll(msg, s, redactedValue)
	}
	return msg
}

func (e *redactedError) Unwrap() error { return e.err }

const redactedValue = "REDACTED"

func (c *Client) redact(err error) error {
	secrets := []string{c.cfg.APIKey}
	if escaped := url.QueryEscape(c.cfg.APIKey); escaped != c.cfg.APIKey {
		secrets = append(secrets, escaped)
	}
	return &redactedError{err: err, secrets: secrets}
}

type scenario struct {
	Strict       bool             `json:"strict"`
	Instructions []map[string]any `json:"instructions"`
}

// renderScenario is the same scroll, settle, expand, scroll, settle script the
// browser strategy runs, expressed as service instructions.
func (c *Client) renderScenario() (string, error) {
	settle := c.cfg.SettleDelay.Milliseconds()
	sc := scenario{
		Strict: false,
		Instructions: []map[string]any{
			{"evaluate": render.ScrollToBottomJS},
			{"wait": settle},
			{"evaluate": render.ExpandJS(c.cfg.ExpandLabels, c.cfg.MaxExpandClicks)},
			{"evaluate": render.ScrollToBottomJS},
			{"wait": settle},
		},
	}
	raw, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("encode render scenario: %w", err)
	}
	return string(raw), nil
}

func (c *Client) requestURL(target string) (string, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return "", fmt.Errorf("managed render: invalid url %q: %w", target, err)
	}
	base, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("managed render: invalid endpoint: %w", err)
	}
	js, err := c.renderScenario()
	if err != nil {
		return "", err
	}
	q := base.Query()
	q.Set("api_key", c.cfg.APIKey)
	q.Set("url", target)
	q.Set("render_js", "true")
	q.Set("js_scenario", js)
	if c.cfg.CountryCode != "" {
		q.Set("premium_proxy", "true")
		q.Set("country_code", c.cfg.CountryCode)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}
