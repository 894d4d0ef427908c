// Package trip defines the core types shared across the extraction and sync pipeline.
package trip

import (
	"time"
)

// FetchMethod identifies which strategy produced a RawPage.
type FetchMethod string

// Fetch methods, in no particular priority.
const (
	FetchDirect  FetchMethod = "direct"
	FetchBrowser FetchMethod = "browser"
	FetchManaged FetchMethod = "managed"
)

// RawPage is the markup obtained for a URL by one fetch strategy.
type RawPage struct {
	URL        string      `json:"url"`
	Markup     string      `json:"-"`
	FetchedVia FetchMethod `json:"fetched_via"`
	FetchedAt  time.Time   `json:"fetched_at"`
	StatusCode int         `json:"status_code"`
}

// NormalizedContent is the text view of a page plus any embedded client-state payload.
type NormalizedContent struct {
	PlainText       string `json:"plain_text"`
	EmbeddedPayload string `json:"embedded_payload,omitempty"`
	PageTitle       string `json:"page_title,omitempty"`
}

// HasPayload reports whether an embedded payload was found.
func (c NormalizedContent) HasPayload() bool {
	return c.EmbeddedPayload != ""
}

// Traveler categories.
const (
	TravelerAdult  = "adult"
	TravelerChild  = "child"
	TravelerInfant = "infant"
)

// Traveler is one person on the booking.
type Traveler struct {
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

// Customer is the booking party.
type Customer struct {
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Travelers []Traveler `json:"travelers"`
}

// Trip carries the package details extracted from a page.
type Trip struct {
	ProductName   string   `json:"product_name"`
	DepartureDate string   `json:"departure_date"`
	ReturnDate    string   `json:"return_date"`
	Duration      string   `json:"duration"`
	PriceAmount   int64    `json:"price_amount"`
	PriceCurrency string   `json:"price_currency"`
	Hotel         string   `json:"hotel"`
	Meals         []string `json:"meals"`
	Inclusions    []string `json:"inclusions"`
	Exclusions    []string `json:"exclusions"`
	Highlights    []string `json:"highlights,omitempty"`
}

// ConfirmationDocument is the canonical structured record of a travel package.
type ConfirmationDocument struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Destination string    `json:"destination"`
	Customer    Customer  `json:"customer"`
	Trip        Trip      `json:"trip"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Automation statuses written to the ledger.
const (
	AutomationPending   = "pending"
	AutomationActive    = "active"
	AutomationCompleted = "completed"
	AutomationStopped   = "stopped"
)

// RowAddress is the physical location of a ledger row. Row indexes are 1-based
// spreadsheet rows and may shift when the ledger is reorganized externally.
type RowAddress struct {
	SheetName string `json:"sheet_name"`
	RowIndex  int    `json:"row_index"`
}

// IsZero reports whether the address was never resolved.
func (a RowAddress) IsZero() bool {
	return a.RowIndex <= 0
}

// ConsultationRecord is one ledger row describing a visitor's consultation.
type ConsultationRecord struct {
	VisitorID        string    `json:"visitor_id"`
	Customer         Customer  `json:"customer"`
	Trip             Trip      `json:"trip"`
	AutomationStatus string    `json:"automation_status"`
	IsBotEnabled     bool      `json:"is_bot_enabled"`
	RowIndex         int       `json:"row_index,omitempty"`
	SheetName        string    `json:"sheet_name,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Address returns the record's ledger address.
func (r ConsultationRecord) Address() RowAddress {
	return RowAddress{SheetName: r.SheetName, RowIndex: r.RowIndex}
}

// SyncEvent is an audit entry for a synchronizer operation.
type SyncEvent struct {
	VisitorID string    `json:"visitor_id"`
	Operation string    `json:"operation"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
