// Package archive keeps a copy of every successfully fetched page in a blob store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/trip"
)

const (
	defaultPrefix  = "pages"
	defaultTimeout = 10 * time.Second
	contentType    = "text/html; charset=utf-8"
)

// Hasher produces a content digest.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Fetcher wraps a trip.PageFetcher and archives what it returns. Archive
// failures are logged and never fail the fetch.
type Fetcher struct {
	next    trip.PageFetcher
	blobs   trip.BlobStore
	hasher  Hasher
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// New builds an archiving Fetcher. Empty prefix means "pages".
func New(next trip.PageFetcher, blobs trip.BlobStore, hasher Hasher, prefix string, logger *zap.Logger) *Fetcher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		next:    next,
		blobs:   blobs,
		hasher:  hasher,
		prefix:  prefix,
		timeout: defaultTimeout,
		logger:  logger.Named("archive"),
	}
}

// FetchPage delegates to the wrapped fetcher and archives successful pages.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string, budget time.Duration) (trip.RawPage, error) {
	page, err := f.next.FetchPage(ctx, rawURL, budget)
	if err != nil {
		return page, err
	}
	uri, err := f.store(ctx, page)
	if err != nil {
		metrics.ObserveArchiveWrite("error")
		f.logger.Warn("archive page failed", zap.String("url", rawURL), zap.Error(err))
		return page, nil
	}
	metrics.ObserveArchiveWrite("ok")
	f.logger.Debug("archived page", zap.String("url", rawURL), zap.String("uri", uri))
	return page, nil
}

func (f *Fetcher) store(ctx context.Context, page trip.RawPage) (string, error) {
	data := []byte(page.Markup)
	digest, err := f.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash page: %w", err)
	}
	objectPath := ObjectPath(f.prefix, page.URL, digest)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	return f.blobs.PutObject(wctx, objectPath, contentType, bytes.NewReader(data))
}

// ObjectPath returns "<prefix>/<host>/<digest>.html".
func ObjectPath(prefix, rawURL, digest string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	return path.Join(prefix, host, digest+".html")
}
