package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// Column count and the letters bounding the layout.
const (
	ColumnCount    = 17
	FirstColumn    = "A"
	MutableColumn  = "B"
	LastColumn     = "Q"
	StatusColumn   = "P"
	HeaderRows     = 1
	listSeparator  = ", "
	travelerSep    = ":"
	timestampValue = time.RFC3339
)

// Header is the expected first row.
var Header = []string{
	"visitor_id", "timestamp", "customer_name", "customer_phone", "travelers",
	"product_name", "departure_date", "return_date", "duration", "price_amount",
	"price_currency", "hotel", "meals", "inclusions", "exclusions",
	"automation_status", "is_bot_enabled",
}

// EncodeRow renders rec as the full A..Q cell list.
func EncodeRow(rec trip.ConsultationRecord) []string {
	ts := ""
	if !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.UTC().Format(timestampValue)
	}
	price := ""
	if rec.Trip.PriceAmount > 0 {
		price = strconv.FormatInt(rec.Trip.PriceAmount, 10)
	}
	return []string{
		rec.VisitorID,
		ts,
		rec.Customer.Name,
		rec.Customer.Phone,
		encodeTravelers(rec.Customer.Travelers),
		rec.Trip.ProductName,
		rec.Trip.DepartureDate,
		rec.Trip.ReturnDate,
		rec.Trip.Duration,
		price,
		rec.Trip.PriceCurrency,
		rec.Trip.Hotel,
		strings.Join(rec.Trip.Meals, listSeparator),
		strings.Join(rec.Trip.Inclusions, listSeparator),
		strings.Join(rec.Trip.Exclusions, listSeparator),
		rec.AutomationStatus,
		strconv.FormatBool(rec.IsBotEnabled),
	}
}

// DecodeRow parses cells read from addr. Short rows are padded; malformed
// numbers and timestamps decode as zero values.
func DecodeRow(cells []string, addr trip.RowAddress) trip.ConsultationRecord {
	padded := make([]string, ColumnCount)
	copy(padded, cells)
	for i := range padded {
		padded[i] = strings.TrimSpace(padded[i])
	}
	rec := trip.ConsultationRecord{
		VisitorID: padded[0],
		Customer: trip.Customer{
			Name:      padded[2],
			Phone:     padded[3],
			Travelers: decodeTravelers(padded[4]),
		},
		Trip: trip.Trip{
			ProductName:   padded[5],
			DepartureDate: padded[6],
			ReturnDate:    padded[7],
			Duration:      padded[8],
			PriceCurrency: padded[10],
			Hotel:         padded[11],
			Meals:         splitList(padded[12]),
			Inclusions:    splitList(padded[13]),
			Exclusions:    splitList(padded[14]),
		},
		AutomationStatus: padded[15],
		RowIndex:         addr.RowIndex,
		SheetName:        addr.SheetName,
	}
	if ts, err := time.Parse(timestampValue, padded[1]); err == nil {
		rec.Timestamp = ts
	}
	if amount, err := strconv.ParseInt(strings.ReplaceAll(padded[9], ",", ""), 10, 64); err == nil {
		rec.Trip.PriceAmount = amount
	}
	rec.IsBotEnabled, _ = strconv.ParseBool(strings.ToLower(padded[16]))
	return rec
}

// ParseRowIndex extracts the first row number from an A1 range such as
// "Consultations!A5:Q5".
func ParseRowIndex(a1 string) (int, error) {
	ref := a1
	if idx := strings.LastIndex(ref, "!"); idx >= 0 {
		ref = ref[idx+1:]
	}
	if idx := strings.Index(ref, ":"); idx >= 0 {
		ref = ref[:idx]
	}
	digits := strings.TrimLeft(ref, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz$")
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("parse row from range %q", a1)
	}
	return n, nil
}

func encodeTravelers(travelers []trip.Traveler) string {
	parts := make([]string, 0, len(travelers))
	for _, t := range travelers {
		if t.Name == "" {
			parts = append(parts, t.Category)
			continue
		}
		parts = append(parts, t.Category+travelerSep+t.Name)
	}
	return strings.Join(parts, listSeparator)
}

func decodeTravelers(cell string) []trip.Traveler {
	if cell == "" {
		return nil
	}
	var out []trip.Traveler
	for _, part := range strings.Split(cell, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		category, name, _ := strings.Cut(part, travelerSep)
		out = append(out, trip.Traveler{Category: category, Name: name})
	}
	return out
}

func splitList(cell string) []string {
	if cell == "" {
		return nil
	}
	return trip.UniqueStrings(strings.Split(cell, ","))
}
