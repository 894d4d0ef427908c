package extract

import "github.com/JakeFAU/tripsync/internal/trip"

// Source tags where a Result came from.
type Source int

// Sources in precedence order: a lower value wins on conflict.
const (
	SourcePayload Source = iota
	SourcePattern
	SourcePageTitle
	SourceAI
)

func (s Source) String() string {
	switch s {
	case SourcePayload:
		return "payload"
	case SourcePattern:
		return "pattern"
	case SourcePageTitle:
		return "page_title"
	case SourceAI:
		return "ai"
	default:
		return "unknown"
	}
}

// Result is one extraction variant.
type Result struct {
	Source Source
	Fields trip.Fields
}

// Merge combines results field by field. For every field the value from the
// highest-precedence source that set it wins; input order does not matter.
func Merge(results ...Result) trip.Fields {
	ordered := make([]trip.Fields, int(SourceAI)+1)
	seen := make([]bool, len(ordered))
	for _, r := range results {
		if r.Source < 0 || int(r.Source) >= len(ordered) || seen[r.Source] {
			continue
		}
		ordered[r.Source] = r.Fields
		seen[r.Source] = true
	}

	var out trip.Fields
	for i, f := range ordered {
		if !seen[i] {
			continue
		}
		firstString(&out.Title, f.Title)
		firstString(&out.Destination, f.Destination)
		firstString(&out.ProductName, f.ProductName)
		firstString(&out.CustomerName, f.CustomerName)
		firstString(&out.CustomerPhone, f.CustomerPhone)
		firstString(&out.DepartureDate, f.DepartureDate)
		firstString(&out.ReturnDate, f.ReturnDate)
		firstString(&out.Duration, f.Duration)
		firstString(&out.Hotel, f.Hotel)
		if out.PriceAmount <= 0 && f.PriceAmount > 0 {
			out.PriceAmount = f.PriceAmount
			out.PriceCurrency = f.PriceCurrency
		}
		if len(out.Travelers) == 0 && len(f.Travelers) > 0 {
			out.Travelers = append([]trip.Traveler(nil), f.Travelers...)
		}
		firstSet(&out.Meals, f.Meals)
		firstSet(&out.Inclusions, f.Inclusions)
		firstSet(&out.Exclusions, f.Exclusions)
		firstSet(&out.Highlights, f.Highlights)
	}
	return out
}

func firstString(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func firstSet(dst *[]string, v []string) {
	if len(*dst) == 0 {
		*dst = trip.UniqueStrings(v)
	}
}
