// Package collyfetcher implements the direct HTTP fetch strategy using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/policy/ratelimit"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// ErrShellPage is returned when the fetched markup is an unrendered client-side
// shell. It is not transient: retrying the same strategy returns the same shell.
var ErrShellPage = errors.New("page requires script execution")

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       map[string]string
}

// ShellDetector reports whether markup is a shell without usable content.
type ShellDetector interface {
	IsShell(markup string) bool
}

// Response is the raw result of a single GET.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter applies a per-host politeness limiter before every request.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithShellDetector rejects pages the detector flags as shells.
func WithShellDetector(d ShellDetector) Option {
	return func(f *Fetcher) { f.detector = d }
}

// WithClock overrides the clock used to stamp pages.
func WithClock(c trip.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

// Fetcher is the direct fetch strategy. It also serves as the plain GET transport
// for the managed rendering service.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	detector      ShellDetector
	clock         trip.Clock
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	// Clones share the visited store, so revisits must be allowed for retries.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	f := &Fetcher{
		cfg:           cfg,
		transport:     newHTTPTransport(),
		baseCollector: c,
		clock:         systemClock{},
	}
	for _, opt := range opts {
		opt(f)
	}
	// Clones share the backend client, so transport and timeout are set once here.
	c.WithTransport(f.transport)
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c.SetRequestTimeout(timeout)
	return f
}

// Method identifies the strategy.
func (f *Fetcher) Method() trip.FetchMethod {
	return trip.FetchDirect
}

// Fetch performs a direct GET and returns the markup as a RawPage. 429 and 5xx
// responses are transient; other 4xx responses and shell pages are not.
func (f *Fetcher) Fetch(ctx context.Context, url string) (trip.RawPage, error) {
	resp, err := f.Get(ctx, url, nil)
	if err != nil {
		return trip.RawPage{}, err
	}
	if err := trip.CheckHTTPStatus(resp.StatusCode); err != nil {
		return trip.RawPage{}, err
	}
	markup := string(resp.Body)
	if f.detector != nil && f.detector.IsShell(markup) {
		return trip.RawPage{}, fmt.Errorf("direct fetch %s: %w", url, ErrShellPage)
	}
	metrics.ObserveFetchBytes(url, len(resp.Body))
	return trip.RawPage{
		URL:        resp.URL,
		Markup:     markup,
		FetchedVia: trip.FetchDirect,
		FetchedAt:  f.clock.Now(),
		StatusCode: resp.StatusCode,
	}, nil
}

// Get executes a single HTTP GET with Colly. Only transport failures are returned
// as errors; callers interpret the status code.
func (f *Fetcher) Get(ctx context.Context, url string, headers http.Header) (Response, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return Response{}, err
	}
	var (
		result   Response
		fetchErr error
	)
	collector := f.buildCollector(ctx, headers, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return Response{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	headers http.Header,
	result *Response,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}

	f.configureCollectorHooks(collector, headers, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	headers http.Header,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, value := range f.cfg.Headers {
			r.Headers.Set(key, value)
		}
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
