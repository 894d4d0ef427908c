package trip

import "time"

// DocumentPatch is a partial update. Nil fields are left untouched. ID and
// CreatedAt are accepted on the wire but always lose to the stored record.
type DocumentPatch struct {
	ID          *string        `json:"id,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	URL         *string        `json:"url,omitempty"`
	Title       *string        `json:"title,omitempty"`
	Destination *string        `json:"destination,omitempty"`
	Customer    *CustomerPatch `json:"customer,omitempty"`
	Trip        *TripPatch     `json:"trip,omitempty"`
}

// CustomerPatch is the partial form of Customer.
type CustomerPatch struct {
	Name      *string     `json:"name,omitempty"`
	Phone     *string     `json:"phone,omitempty"`
	Travelers *[]Traveler `json:"travelers,omitempty"`
}

// TripPatch is the partial form of Trip.
type TripPatch struct {
	ProductName   *string   `json:"product_name,omitempty"`
	DepartureDate *string   `json:"departure_date,omitempty"`
	ReturnDate    *string   `json:"return_date,omitempty"`
	Duration      *string   `json:"duration,omitempty"`
	PriceAmount   *int64    `json:"price_amount,omitempty"`
	PriceCurrency *string   `json:"price_currency,omitempty"`
	Hotel         *string   `json:"hotel,omitempty"`
	Meals         *[]string `json:"meals,omitempty"`
	Inclusions    *[]string `json:"inclusions,omitempty"`
	Exclusions    *[]string `json:"exclusions,omitempty"`
	Highlights    *[]string `json:"highlights,omitempty"`
}

// Apply merges p over d field by field and stamps UpdatedAt. ID and CreatedAt
// are always taken from d.
func (d ConfirmationDocument) Apply(p DocumentPatch, now time.Time) ConfirmationDocument {
	out := d.Clone()
	setString(&out.URL, p.URL)
	setString(&out.Title, p.Title)
	setString(&out.Destination, p.Destination)
	if c := p.Customer; c != nil {
		setString(&out.Customer.Name, c.Name)
		setString(&out.Customer.Phone, c.Phone)
		if c.Travelers != nil {
			out.Customer.Travelers = append([]Traveler(nil), (*c.Travelers)...)
		}
	}
	if t := p.Trip; t != nil {
		setString(&out.Trip.ProductName, t.ProductName)
		setString(&out.Trip.DepartureDate, t.DepartureDate)
		setString(&out.Trip.ReturnDate, t.ReturnDate)
		setString(&out.Trip.Duration, t.Duration)
		if t.PriceAmount != nil {
			out.Trip.PriceAmount = *t.PriceAmount
		}
		setString(&out.Trip.PriceCurrency, t.PriceCurrency)
		setString(&out.Trip.Hotel, t.Hotel)
		setSet(&out.Trip.Meals, t.Meals)
		setSet(&out.Trip.Inclusions, t.Inclusions)
		setSet(&out.Trip.Exclusions, t.Exclusions)
		setSet(&out.Trip.Highlights, t.Highlights)
	}
	out.ID = d.ID
	out.CreatedAt = d.CreatedAt
	out.UpdatedAt = now
	return out
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (d ConfirmationDocument) Clone() ConfirmationDocument {
	out := d
	out.Customer.Travelers = cloneSlice(d.Customer.Travelers)
	out.Trip.Meals = cloneSlice(d.Trip.Meals)
	out.Trip.Inclusions = cloneSlice(d.Trip.Inclusions)
	out.Trip.Exclusions = cloneSlice(d.Trip.Exclusions)
	out.Trip.Highlights = cloneSlice(d.Trip.Highlights)
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setSet(dst *[]string, src *[]string) {
	if src != nil {
		*dst = UniqueStrings(*src)
	}
}

func cloneSlice[T any](src []T) []T {
	if src == nil {
		return nil
	}
	dst := make([]T, len(src))
	copy(dst, src)
	return dst
}
