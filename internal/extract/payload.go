package extract

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/JakeFAU/tripsync/internal/trip"
)

const (
	maxPayloadNodes = 50_000
	maxPayloadDepth = 16
	maxTitleRunes   = 200
)

type node struct {
	key    string // normalized key this value sits under
	parent string // normalized key of the enclosing object
	value  any
	depth  int
}

// FromPayload walks an embedded client-state JSON document breadth-first, with
// object keys in sorted order, and fills fields from keys whose names match known
// variants. The first (shallowest) match for a field wins. Invalid JSON yields an
// empty result.
func FromPayload(payload string) Result {
	res := Result{Source: SourcePayload}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return res
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return res
	}

	var (
		f          trip.Fields
		nameTitle  string
		queue      = []node{{value: root}}
		visited    int
		currencies []string
	)
	for len(queue) > 0 && visited < maxPayloadNodes {
		n := queue[0]
		queue = queue[1:]
		visited++

		switch v := n.value.(type) {
		case map[string]any:
			if n.depth >= maxPayloadDepth {
				continue
			}
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				queue = append(queue, node{key: normalizeKey(k), parent: n.key, value: v[k], depth: n.depth + 1})
			}
			continue
		case []any:
			if n.depth >= maxPayloadDepth {
				continue
			}
			if assignList(&f, n.key, v) {
				continue
			}
			for _, item := range v {
				queue = append(queue, node{key: n.key, parent: n.parent, value: item, depth: n.depth + 1})
			}
			continue
		}
		assignScalar(&f, &nameTitle, &currencies, n)
	}

	if f.Title == "" {
		f.Title = nameTitle
	}
	if f.PriceAmount > 0 && len(currencies) > 0 {
		f.PriceCurrency = currencies[0]
	}
	if f.Destination == "" {
		f.Destination = findDestination(f.Title)
	}
	if f.Destination == "" {
		f.Destination = findDestination(f.ProductName)
	}
	res.Fields = f
	return res
}

// normalizeKey lowercases and drops separators so "sale_price" and "salePrice" compare equal.
func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

func has(key string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func assignScalar(f *trip.Fields, nameTitle *string, currencies *[]string, n node) {
	key, parent := n.key, n.parent
	if key == "" {
		return
	}
	str, isString := n.value.(string)
	str = strings.TrimSpace(str)

	switch {
	case has(key, "currency"):
		if isString && len(str) == 3 {
			*currencies = append(*currencies, strings.ToUpper(str))
		}
	case has(key, "price", "amount", "가격", "금액") && !has(key, "count", "discountrate", "percent"):
		if f.PriceAmount <= 0 {
			if amount, ok := numericValue(n.value); ok && amount > 0 {
				f.PriceAmount = amount
			}
		}
	case !isString || str == "":
		return
	case has(key, "phone", "mobile", "tel") && !has(key, "hotel"):
		setOnce(&f.CustomerPhone, findPhone(str))
	case has(key, "productname", "goodsname", "itemname", "packagename", "tourname", "prdname"):
		setOnce(&f.ProductName, limitTitle(str))
	case key == "title" || has(key, "headline", "subject") || strings.HasSuffix(key, "title"):
		if has(parent, "hotel", "accommodation") {
			setOnce(&f.Hotel, str)
		} else {
			setOnce(&f.Title, limitTitle(str))
		}
	case key == "name":
		switch {
		case has(parent, "hotel", "accommodation", "lodging"):
			setOnce(&f.Hotel, str)
		case has(parent, "customer", "booker", "reserver", "user", "member", "contact"):
			setOnce(&f.CustomerName, str)
		case has(parent, "destination", "city", "region"):
			setOnce(&f.Destination, str)
		case parent == "" || has(parent, "product", "goods", "item", "package", "tour", "props", "data", "pageprops"):
			setOnce(nameTitle, limitTitle(str))
		}
	case has(key, "destination", "city", "region", "arrivalcity"):
		setOnce(&f.Destination, str)
	case has(key, "hotel", "accommodation", "lodging"):
		setOnce(&f.Hotel, str)
	case has(key, "depart", "startdate", "begindate", "fromdate"):
		setOnce(&f.DepartureDate, NormalizeDate(str))
	case has(key, "return", "enddate", "arrivaldate", "todate", "comeback"):
		setOnce(&f.ReturnDate, NormalizeDate(str))
	case has(key, "duration", "period", "schedule") && findDuration(str) != "":
		setOnce(&f.Duration, findDuration(str))
	case has(key, "exclu", "notinclu", "불포함"):
		if len(f.Exclusions) == 0 {
			f.Exclusions = splitList(str)
		}
	case has(key, "inclu", "포함"):
		if len(f.Inclusions) == 0 {
			f.Inclusions = splitList(str)
		}
	case has(key, "meal", "식사"):
		if len(f.Meals) == 0 {
			f.Meals = splitList(str)
		}
	case isHighlightKey(key):
		if len(f.Highlights) == 0 {
			f.Highlights = splitList(str)
		}
	}
}

// assignList handles arrays of strings (or of {name|title|text} objects) under a
// set-valued key. It reports whether the array was consumed.
func assignList(f *trip.Fields, key string, values []any) bool {
	var dst *[]string
	switch {
	case key == "":
		return false
	case has(key, "exclu", "notinclu", "불포함"):
		dst = &f.Exclusions
	case has(key, "inclu", "포함"):
		dst = &f.Inclusions
	case has(key, "meal", "식사"):
		dst = &f.Meals
	case isHighlightKey(key):
		dst = &f.Highlights
	default:
		return false
	}
	if len(*dst) > 0 {
		return true
	}
	items := make([]string, 0, len(values))
	for _, v := range values {
		switch item := v.(type) {
		case string:
			items = append(items, item)
		case map[string]any:
			for _, k := range []string{"name", "title", "text", "description", "value"} {
				if s, ok := item[k].(string); ok && strings.TrimSpace(s) != "" {
					items = append(items, s)
					break
				}
			}
		}
	}
	*dst = trip.UniqueStrings(items)
	return len(items) > 0
}

func isHighlightKey(key string) bool {
	return key == "point" || key == "points" || has(key, "highlight", "sellingpoint", "keypoint", "productpoint")
}

func numericValue(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if fl, err := n.Float64(); err == nil {
			return roundAmount(fl)
		}
	case string:
		s := strings.TrimSpace(n)
		if amount, _ := findPrice(s); amount > 0 {
			return amount, true
		}
		if i, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func limitTitle(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return ""
	}
	return truncateRunes(s, maxTitleRunes)
}
