// Package extract derives ConfirmationDocuments from page text and embedded
// payloads. Each source produces a tagged Result; Merge applies precedence.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/normalize"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultMaxSummaryRunes bounds the text handed to the summarizer.
const DefaultMaxSummaryRunes = 12_000

// Input is the pre-fetched form of a page.
type Input struct {
	Text      string
	URL       string
	Payload   string
	PageTitle string
}

// Analyzer runs extraction, optionally fetching pages first.
type Analyzer struct {
	fetcher         trip.PageFetcher
	summarizer      trip.Summarizer
	budget          time.Duration
	maxSummaryRunes int
	logger          *zap.Logger
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithSummarizer enables the AI fallback.
func WithSummarizer(s trip.Summarizer) Option {
	return func(a *Analyzer) { a.summarizer = s }
}

// WithFetchBudget sets the budget passed to the page fetcher.
func WithFetchBudget(d time.Duration) Option {
	return func(a *Analyzer) { a.budget = d }
}

// WithMaxSummaryRunes bounds the text handed to the summarizer.
func WithMaxSummaryRunes(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxSummaryRunes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAnalyzer builds an Analyzer. fetcher may be nil when only Analyze is used.
func NewAnalyzer(fetcher trip.PageFetcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		fetcher:         fetcher,
		maxSummaryRunes: DefaultMaxSummaryRunes,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("extract")
	return a
}

// FetchContent fetches and normalizes a page without analyzing it.
func (a *Analyzer) FetchContent(ctx context.Context, url string) (trip.RawPage, trip.NormalizedContent, error) {
	if a.fetcher == nil {
		return trip.RawPage{}, trip.NormalizedContent{}, fmt.Errorf("fetch %s: %w", url, trip.ErrFetchFailure)
	}
	page, err := a.fetcher.FetchPage(ctx, url, a.budget)
	if err != nil {
		metrics.ObserveExtraction("fetch_failure")
		return trip.RawPage{}, trip.NormalizedContent{}, fmt.Errorf("fetch page: %w", err)
	}
	return page, normalize.Normalize(page.Markup), nil
}

// AnalyzeURL fetches, normalizes and analyzes url.
func (a *Analyzer) AnalyzeURL(ctx context.Context, url string) (trip.ConfirmationDocument, error) {
	_, content, err := a.FetchContent(ctx, url)
	if err != nil {
		return trip.ConfirmationDocument{}, err
	}
	return a.Analyze(ctx, Input{
		Text:      content.PlainText,
		URL:       url,
		Payload:   content.EmbeddedPayload,
		PageTitle: content.PageTitle,
	})
}

// Analyze derives a document from pre-fetched content. It has no side effects:
// the returned document has no ID or timestamps until a store assigns them.
// It fails with trip.ErrExtractionEmpty when no title or destination is found.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (trip.ConfirmationDocument, error) {
	results := []Result{
		FromPayload(in.Payload),
		FromText(in.Text),
		FromPageTitle(in.PageTitle),
	}
	fields := Merge(results...)

	if a.needsAI(fields) && strings.TrimSpace(in.Text) != "" {
		aiFields, err := a.summarizer.SummarizeToFields(ctx, truncateRunes(in.Text, a.maxSummaryRunes))
		switch {
		case err == nil:
			results = append(results, Result{Source: SourceAI, Fields: aiFields})
			fields = Merge(results...)
		case !fields.HasTitle() && fields.Destination == "":
			// Nothing usable without the summarizer: report the outage, not emptiness.
			metrics.ObserveExtraction("upstream_unavailable")
			return trip.ConfirmationDocument{}, fmt.Errorf("summarize %s: %w", in.URL, errors.Join(trip.ErrUpstreamUnavailable, err))
		default:
			a.logger.Warn("summarizer failed; keeping deterministic fields",
				zap.String("url", in.URL),
				zap.Error(err),
			)
		}
	}

	if !fields.HasTitle() && fields.Destination == "" {
		metrics.ObserveExtraction("empty")
		return trip.ConfirmationDocument{}, fmt.Errorf("analyze %s: %w", in.URL, trip.ErrExtractionEmpty)
	}
	metrics.ObserveExtraction("ok")
	return toDocument(in.URL, fields), nil
}

func (a *Analyzer) needsAI(f trip.Fields) bool {
	return a.summarizer != nil && (!f.HasTitle() || !f.HasPrice())
}

// FromPageTitle turns the page's <title> into a low-precedence title hint.
func FromPageTitle(title string) Result {
	title = strings.TrimSpace(title)
	// Site suffixes such as "다낭 3박5일 | 하나투어".
	if i := strings.IndexByte(title, '|'); i > 0 {
		title = strings.TrimSpace(title[:i])
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = truncateRunes(title, maxTitleRunes)
	}
	return Result{
		Source: SourcePageTitle,
		Fields: trip.Fields{Title: title, Destination: findDestination(title)},
	}
}

func toDocument(url string, f trip.Fields) trip.ConfirmationDocument {
	title := f.Title
	if title == "" {
		title = f.ProductName
	}
	if title == "" {
		title = f.Destination
	}
	product := f.ProductName
	if product == "" {
		product = title
	}
	duration := f.Duration
	if duration == "" {
		duration = durationFromDates(f.DepartureDate, f.ReturnDate)
	}
	currency := f.PriceCurrency
	if f.PriceAmount > 0 && currency == "" {
		currency = CurrencyKRW
	}
	return trip.ConfirmationDocument{
		URL:         url,
		Title:       title,
		Destination: f.Destination,
		Customer: trip.Customer{
			Name:      f.CustomerName,
			Phone:     f.CustomerPhone,
			Travelers: append([]trip.Traveler(nil), f.Travelers...),
		},
		Trip: trip.Trip{
			ProductName:   product,
			DepartureDate: f.DepartureDate,
			ReturnDate:    f.ReturnDate,
			Duration:      duration,
			PriceAmount:   f.PriceAmount,
			PriceCurrency: currency,
			Hotel:         f.Hotel,
			Meals:         trip.UniqueStrings(f.Meals),
			Inclusions:    trip.UniqueStrings(f.Inclusions),
			Exclusions:    trip.UniqueStrings(f.Exclusions),
			Highlights:    trip.UniqueStrings(f.Highlights),
		},
	}
}
