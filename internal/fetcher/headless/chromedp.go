// Package headless contains the browser rendering strategy backed by chromedp.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/tripsync/internal/fetcher/render"
	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	ExecPath          string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	ExpandLabels      []string
	MaxExpandClicks   int
}

// Fetcher renders pages in headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	clock       func() time.Time
}

var browserCandidates = []string{
	"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome",
}

// BrowserAvailable reports whether a local Chrome binary can be launched. When
// execPath is set only that path is checked.
func BrowserAvailable(execPath string) bool {
	if execPath != "" {
		_, err := exec.LookPath(execPath)
		return err == nil
	}
	for _, name := range browserCandidates {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 20 * time.Second
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
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		clock:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close cancels the allocator context and shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Method identifies the strategy.
func (f *Fetcher) Method() trip.FetchMethod {
	return trip.FetchBrowser
}

// Fetch navigates, runs the render script and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (trip.RawPage, error) {
	if err := f.acquire(ctx); err != nil {
		return trip.RawPage{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	// The tab lives under the allocator, so the caller's cancellation is bridged in.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := &responseMeta{}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	var html, finalURL string
	if err := chromedp.Run(taskCtx, f.renderScript(url, &html, &finalURL)...); err != nil {
		if ctx.Err() != nil {
			return trip.RawPage{}, fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return trip.RawPage{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if err := trip.CheckHTTPStatus(status); err != nil {
		return trip.RawPage{}, err
	}
	metrics.ObserveFetchBytes(url, len(html))
	return trip.RawPage{
		URL:        responseURL,
		Markup:     html,
		FetchedVia: trip.FetchBrowser,
		FetchedAt:  f.clock(),
		StatusCode: status,
	}, nil
}

// renderScript is the ordered list of timed steps: load, scroll, settle, expand,
// scroll, settle, capture. chromedp.Sleep observes context cancellation.
func (f *Fetcher) renderScript(url string, html, finalURL *string) []chromedp.Action {
	var (
		height  float64
		clicked int
	)
	return []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(render.ScrollToBottomJS, &height),
		chromedp.Sleep(f.cfg.SettleDelay),
		bestEffort(chromedp.Evaluate(render.ExpandJS(f.cfg.ExpandLabels, f.cfg.MaxExpandClicks), &clicked)),
		chromedp.Evaluate(render.ScrollToBottomJS, &height),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(finalURL),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	}
}

// bestEffort swallows a step's error unless the context itself is done.
func bestEffort(action chromedp.Action) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := action.Do(ctx); err != nil && ctx.Err() != nil {
			return fmt.Errorf("render step: %w", ctx.Err())
		}
		return nil
	})
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	// Only the first document response is the page itself; later ones are frames.
	if m.status == 0 {
		m.status = int(resp.Response.Status)
		m.url = resp.Response.URL
	}
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case finalURL != "":
		url = finalURL
	case url == "":
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
