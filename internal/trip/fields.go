package trip

import "strings"

// Fields is a partial view of a confirmation as produced by one extraction source.
// Zero values mean "not found".
type Fields struct {
	Title         string     `json:"title,omitempty"`
	Destination   string     `json:"destination,omitempty"`
	ProductName   string     `json:"product_name,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Travelers     []Traveler `json:"travelers,omitempty"`
	DepartureDate string     `json:"departure_date,omitempty"`
	ReturnDate    string     `json:"return_date,omitempty"`
	Duration      string     `json:"duration,omitempty"`
	PriceAmount   int64      `json:"price_amount,omitempty"`
	PriceCurrency string     `json:"price_currency,omitempty"`
	Hotel         string     `json:"hotel,omitempty"`
	Meals         []string   `json:"meals,omitempty"`
	Inclusions    []string   `json:"inclusions,omitempty"`
	Exclusions    []string   `json:"exclusions,omitempty"`
	Highlights    []string   `json:"highlights,omitempty"`
}

// HasTitle reports whether any title-like field is set.
func (f Fields) HasTitle() bool {
	return f.Title != "" || f.ProductName != ""
}

// HasPrice reports whether a positive price was found.
func (f Fields) HasPrice() bool {
	return f.PriceAmount > 0
}

// UniqueStrings trims, drops empties and de-duplicates while keeping first-seen order.
func UniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
