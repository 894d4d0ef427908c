package trip

import (
	"context"
	"io"
	"time"
)

// Strategy obtains raw markup for a URL one way.
type Strategy interface {
	Method() FetchMethod
	Fetch(ctx context.Context, url string) (RawPage, error)
}

// PageFetcher fetches a page within an overall budget.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string, budget time.Duration) (RawPage, error)
}

// Summarizer turns free text into partial fields using an external text-understanding service.
type Summarizer interface {
	SummarizeToFields(ctx context.Context, text string) (Fields, error)
}

// DocumentStore caches confirmation documents by id.
type DocumentStore interface {
	Get(ctx context.Context, id string) (ConfirmationDocument, error)
	Set(ctx context.Context, id string, doc ConfirmationDocument) error
	Update(ctx context.Context, id string, patch DocumentPatch) (ConfirmationDocument, error)
}

// Ledger is the row-addressed system of record for consultations.
type Ledger interface {
	ListRows(ctx context.Context) ([]ConsultationRecord, error)
	AppendRow(ctx context.Context, rec ConsultationRecord) (RowAddress, error)
	UpdateRow(ctx context.Context, addr RowAddress, rec ConsultationRecord) error
	UpdateRowStatus(ctx context.Context, addr RowAddress, status string) error
	DeleteRows(ctx context.Context, addrs []RowAddress) (int, error)
}

// ToggleStore upserts the bot-enabled flag keyed by visitor id.
type ToggleStore interface {
	SetBotEnabled(ctx context.Context, visitorID string, enabled bool) error
	BotEnabled(ctx context.Context, visitorID string) (bool, error)
}

// EventLog records synchronizer audit events.
type EventLog interface {
	RecordEvent(ctx context.Context, event SyncEvent) error
}

// SessionStore holds conversation-extracted consultation records by visitor id.
type SessionStore interface {
	PutConsultation(ctx context.Context, rec ConsultationRecord) error
	Consultation(ctx context.Context, visitorID string) (ConsultationRecord, error)
	DeleteConsultations(ctx context.Context, visitorIDs []string) (int, error)
}

// RateProvider returns the full rate table for a base currency.
type RateProvider interface {
	Rates(ctx context.Context, base string) (map[string]float64, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces document ids.
type IDGenerator interface {
	NewID() (string, error)
}
