package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/tripsync/internal/trip"
)

const summaryPrompt = `You extract travel package details from a Korean or English travel product page.
Return only a JSON object with these keys (omit unknown values, never invent data):
{"title": string, "destination": string, "product_name": string,
 "customer_name": string, "customer_phone": string,
 "departure_date": "YYYY-MM-DD", "return_date": "YYYY-MM-DD", "duration": "N박M일",
 "price_amount": integer, "price_currency": "KRW" | "USD" | ISO 4217 code,
 "hotel": string, "meals": [string], "inclusions": [string], "exclusions": [string], "highlights": [string]}

Page text:
`

type summary struct {
	Title         string          `json:"title"`
	Destination   string          `json:"destination"`
	ProductName   string          `json:"product_name"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	DepartureDate string          `json:"departure_date"`
	ReturnDate    string          `json:"return_date"`
	Duration      string          `json:"duration"`
	PriceAmount   json.Number     `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	Hotel         string          `json:"hotel"`
	Meals         []string        `json:"meals"`
	Inclusions    []string        `json:"inclusions"`
	Exclusions    []string        `json:"exclusions"`
	Highlights    []string        `json:"highlights"`
}

// Summarizer implements trip.Summarizer on top of a Generator.
type Summarizer struct {
	gen Generator
}

// NewSummarizer wraps gen.
func NewSummarizer(gen Generator) *Summarizer {
	return &Summarizer{gen: gen}
}

// SummarizeToFields asks the model for partial fields. Any generator or decoding
// failure is returned; the caller decides whether it matters.
func (s *Summarizer) SummarizeToFields(ctx context.Context, text string) (trip.Fields, error) {
	raw, err := s.gen.GenerateJSON(ctx, summaryPrompt+text)
	if err != nil {
		return trip.Fields{}, fmt.Errorf("summarize: %w", err)
	}
	var out summary
	dec := json.NewDecoder(strings.NewReader(CleanJSONBlock(raw)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return trip.Fields{}, fmt.Errorf("decode summary: %w", err)
	}
	return out.fields(), nil
}

func (s summary) fields() trip.Fields {
	f := trip.Fields{
		Title:         strings.TrimSpace(s.Title),
		Destination:   strings.TrimSpace(s.Destination),
		ProductName:   strings.TrimSpace(s.ProductName),
		CustomerName:  strings.TrimSpace(s.CustomerName),
		CustomerPhone: strings.TrimSpace(s.CustomerPhone),
		DepartureDate: strings.TrimSpace(s.DepartureDate),
		ReturnDate:    strings.TrimSpace(s.ReturnDate),
		Duration:      strings.TrimSpace(s.Duration),
		Hotel:         strings.TrimSpace(s.Hotel),
		Meals:         trip.UniqueStrings(s.Meals),
		Inclusions:    trip.UniqueStrings(s.Inclusions),
		Exclusions:    trip.UniqueStrings(s.Exclusions),
		Highlights:    trip.UniqueStrings(s.Highlights),
	}
	if s.PriceAmount != "" {
		if v, err := s.PriceAmount.Float64(); err == nil && v > 0 {
			f.PriceAmount = int64(v + 0.5)
			f.PriceCurrency = strings.ToUpper(strings.TrimSpace(s.PriceCurrency))
		}
	}
	return f
}
