// Package service is the produced interface of the pipeline: it ties the
// analyzer, the confirmation store, the synchronizer and the rate cache together.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/consult"
	"github.com/JakeFAU/tripsync/internal/extract"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// Analyzer is the extraction capability the service needs.
type Analyzer interface {
	FetchContent(ctx context.Context, url string) (trip.RawPage, trip.NormalizedContent, error)
	AnalyzeURL(ctx context.Context, url string) (trip.ConfirmationDocument, error)
	Analyze(ctx context.Context, in extract.Input) (trip.ConfirmationDocument, error)
}

// RateGetter answers currency conversion queries.
type RateGetter interface {
	GetRate(ctx context.Context, from, to string) (float64, error)
}

// FetchedContent is the result of the separate fetch round trip.
type FetchedContent struct {
	URL             string           `json:"url"`
	FetchedVia      trip.FetchMethod `json:"fetched_via"`
	FetchedAt       time.Time        `json:"fetched_at"`
	PlainText       string           `json:"text"`
	EmbeddedPayload string           `json:"payload,omitempty"`
	PageTitle       string           `json:"page_title,omitempty"`
}

// Service implements the pipeline's produced operations.
type Service struct {
	analyzer Analyzer
	docs     trip.DocumentStore
	sync     *consult.Synchronizer
	rates    RateGetter
	ids      trip.IDGenerator
	clock    trip.Clock
	logger   *zap.Logger
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Analyzer     Analyzer
	Documents    trip.DocumentStore
	Synchronizer *consult.Synchronizer
	Rates        RateGetter
	IDs          trip.IDGenerator
	Clock        trip.Clock
	Logger       *zap.Logger
}

// New builds a Service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		analyzer: d.Analyzer,
		docs:     d.Documents,
		sync:     d.Synchronizer,
		rates:    d.Rates,
		ids:      d.IDs,
		clock:    d.Clock,
		logger:   logger.Named("service"),
	}
}

// FetchAndAnalyze runs the whole pipeline for url and stores the result.
func (s *Service) FetchAndAnalyze(ctx context.Context, url string) (trip.ConfirmationDocument, error) {
	doc, err := s.analyzer.AnalyzeURL(ctx, url)
	if err != nil {
		return trip.ConfirmationDocument{}, err
	}
	return s.create(ctx, doc)
}

// AnalyzeProvided analyzes caller-supplied content and stores the result.
func (s *Service) AnalyzeProvided(ctx context.Context, in extract.Input) (trip.ConfirmationDocument, error) {
	doc, err := s.analyzer.Analyze(ctx, in)
	if err != nil {
		return trip.ConfirmationDocument{}, err
	}
	return s.create(ctx, doc)
}

// FetchContent fetches and normalizes url without analyzing it, so callers can
// split fetch and analysis into separate round trips.
func (s *Service) FetchContent(ctx context.Context, url string) (FetchedContent, error) {
	page, content, err := s.analyzer.FetchContent(ctx, url)
	if err != nil {
		return FetchedContent{}, err
	}
	return FetchedContent{
		URL:             page.URL,
		FetchedVia:      page.FetchedVia,
		FetchedAt:       page.FetchedAt,
		PlainText:       content.PlainText,
		EmbeddedPayload: content.EmbeddedPayload,
		PageTitle:       content.PageTitle,
	}, nil
}

// GetDocument returns a stored document.
func (s *Service) GetDocument(ctx context.Context, id string) (trip.ConfirmationDocument, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return trip.ConfirmationDocument{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// UpdateDocument merges patch into the stored document. It never creates one.
func (s *Service) UpdateDocument(ctx context.Context, id string, patch trip.DocumentPatch) (trip.ConfirmationDocument, error) {
	doc, err := s.docs.Update(ctx, id, patch)
	if err != nil {
		return trip.ConfirmationDocument{}, fmt.Errorf("update document: %w", err)
	}
	return doc, nil
}

// StageConsultation stores a conversation-extracted record for a later sync.
func (s *Service) StageConsultation(ctx context.Context, rec trip.ConsultationRecord) error {
	return s.sync.Stage(ctx, rec)
}

// SyncConsultation pushes the staged record for visitorID to the ledger.
func (s *Service) SyncConsultation(ctx context.Context, visitorID string) (trip.RowAddress, error) {
	return s.sync.Sync(ctx, visitorID)
}

// SetRowStatus updates the automation status at a ledger address.
func (s *Service) SetRowStatus(ctx context.Context, addr trip.RowAddress, status string) error {
	return s.sync.SetStatus(ctx, addr, status)
}

// ToggleBot sets the bot-enabled flag for visitorID.
func (s *Service) ToggleBot(ctx context.Context, visitorID string, enabled bool) error {
	return s.sync.SetBotEnabled(ctx, visitorID, enabled)
}

// CleanupStale removes ledger rows and staged records for visitorIDs.
func (s *Service) CleanupStale(ctx context.Context, visitorIDs []string) (consult.CleanupResult, error) {
	return s.sync.Cleanup(ctx, visitorIDs)
}

// GetRate returns the conversion rate from one currency to another.
func (s *Service) GetRate(ctx context.Context, from, to string) (float64, error) {
	return s.rates.GetRate(ctx, from, to)
}

func (s *Service) create(ctx context.Context, doc trip.ConfirmationDocument) (trip.ConfirmationDocument, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return trip.ConfirmationDocument{}, fmt.Errorf("assign document id: %w", err)
	}
	now := s.clock.Now()
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if err := s.docs.Set(ctx, id, doc); err != nil {
		return trip.ConfirmationDocument{}, fmt.Errorf("store document: %w", err)
	}
	s.logger.Info("stored confirmation",
		zap.String("id", id),
		zap.String("url", doc.URL),
		zap.String("title", doc.Title),
	)
	return doc, nil
}
