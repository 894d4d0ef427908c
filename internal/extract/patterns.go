package extract

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// Currency codes used in extracted prices.
const (
	CurrencyKRW = "KRW"
	CurrencyUSD = "USD"
)

type priceRule struct {
	re       *regexp.Regexp
	currency string
	scale    float64
}

var priceRules = []priceRule{
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*만\s*원`), CurrencyKRW, 10000},
	{regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d{4,})\s*원`), CurrencyKRW, 1},
	{regexp.MustCompile(`₩\s*(\d{1,3}(?:,\d{3})+|\d{4,})`), CurrencyKRW, 1},
	{regexp.MustCompile(`(?:USD|US\$)\s*(\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?)`), CurrencyUSD, 1},
	{regexp.MustCompile(`\$\s*(\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?)`), CurrencyUSD, 1},
	{regexp.MustCompile(`(\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?)\s*(?:USD|달러)`), CurrencyUSD, 1},
}

// priceKeywordRe marks the amount a page means as the package price.
var priceKeywordRe = regexp.MustCompile(`판매가|상품가|상품가격|여행경비|총\s?금액|결제\s?금액|총\s?액|1인\s?요금|요금|가격|Price|price`)

// priceKeywordWindow is how far after a keyword an amount still belongs to it, in bytes.
const priceKeywordWindow = 60

var (
	phoneRe     = regexp.MustCompile(`(01[016789])[\s.\-]?(\d{3,4})[\s.\-]?(\d{4})`)
	bookerRe    = regexp.MustCompile(`(?:예약자|예약자명|대표자|고객명)\s*(?:명)?\s*:?\s*([가-힣]{2,5}|[A-Za-z]+(?:\s[A-Za-z]+)?)`)
	adultRe     = regexp.MustCompile(`성인\s*(\d{1,2})\s*(?:명|인)`)
	childRe     = regexp.MustCompile(`(?:아동|소아)\s*(\d{1,2})\s*(?:명|인)`)
	infantRe    = regexp.MustCompile(`유아\s*(\d{1,2})\s*(?:명|인)`)
	listSplitRe = regexp.MustCompile(`\s*(?:,|/|·|•|\||ㆍ|▶|■|□|◆|-\s|\d+\.\s)\s*`)
)

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionProduct
	sectionInclusions
	sectionExclusions
	sectionHighlights
	sectionMeals
	sectionHotel
)

type anchorRule struct {
	re   *regexp.Regexp
	kind sectionKind
}

// Every anchor ends the section before it; sectionNone anchors only terminate.
var anchorRules = []anchorRule{
	{regexp.MustCompile(`(불|미)?포함\s?(?:사항|내역)\s*:?`), sectionInclusions},
	{regexp.MustCompile(`상품\s?(?:POINT|Point|point|포인트)\s*:?`), sectionHighlights},
	{regexp.MustCompile(`상품명\s*:?`), sectionProduct},
	{regexp.MustCompile(`식사(?:\s?정보)?\s*:`), sectionMeals},
	{regexp.MustCompile(`(?:예정\s?)?(?:호텔|숙소|숙박시설)(?:\s?정보)?\s*:`), sectionHotel},
	{regexp.MustCompile(`출발일(?:자|시)?|귀국일|도착일|여행\s?기간|여행\s?일정|일정표|예약자|예약\s?정보|판매가|상품가격|상품가|가격|여행경비|유의\s?사항|취소\s?(?:규정|수수료)|약관|문의|고객센터|여행자\s?정보|인원`), sectionNone},
}

const (
	maxSectionRunes = 300
	maxItemRunes    = 60
	maxItems        = 20
	maxTravelers    = 30
)

type anchorHit struct {
	start, end int
	kind       sectionKind
}

// FromText runs the locale-specific keyword anchors over flattened page text.
func FromText(text string) Result {
	var f trip.Fields
	if strings.TrimSpace(text) == "" {
		return Result{Source: SourcePattern}
	}

	hits := findAnchors(text)
	sections := make(map[sectionKind]string)
	for i, h := range hits {
		if h.kind == sectionNone {
			continue
		}
		if _, done := sections[h.kind]; done {
			continue
		}
		end := len(text)
		if i+1 < len(hits) {
			end = hits[i+1].start
		}
		sections[h.kind] = truncateRunes(strings.TrimSpace(text[h.end:end]), maxSectionRunes)
	}

	f.ProductName = cleanValue(sections[sectionProduct])
	f.Title = f.ProductName
	f.Hotel = cleanValue(sections[sectionHotel])
	f.Inclusions = splitList(sections[sectionInclusions])
	f.Exclusions = splitList(sections[sectionExclusions])
	f.Highlights = splitList(sections[sectionHighlights])
	f.Meals = splitList(sections[sectionMeals])

	f.PriceAmount, f.PriceCurrency = findPrice(text)
	f.DepartureDate, f.ReturnDate = tripDates(text)
	f.Duration = findDuration(text)
	f.CustomerPhone = findPhone(text)
	if m := bookerRe.FindStringSubmatch(text); m != nil {
		f.CustomerName = m[1]
	}
	f.Travelers = findTravelers(text)

	f.Destination = findDestination(f.ProductName)
	if f.Destination == "" {
		f.Destination = findDestination(text)
	}
	return Result{Source: SourcePattern, Fields: f}
}

func findAnchors(text string) []anchorHit {
	var hits []anchorHit
	for _, rule := range anchorRules {
		for _, m := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			kind := rule.kind
			if kind == sectionInclusions && len(m) >= 4 && m[2] >= 0 {
				kind = sectionExclusions
			}
			hits = append(hits, anchorHit{start: m[0], end: m[1], kind: kind})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	// Drop anchors nested inside an earlier anchor's own text.
	out := hits[:0]
	lastEnd := -1
	for _, h := range hits {
		if h.start < lastEnd {
			continue
		}
		out = append(out, h)
		lastEnd = h.end
	}
	return out
}

func splitList(section string) []string {
	if section == "" {
		return nil
	}
	parts := listSplitRe.Split(section, -1)
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = cleanValue(p)
		if p == "" || utf8.RuneCountInString(p) > maxItemRunes {
			continue
		}
		items = append(items, p)
		if len(items) == maxItems {
			break
		}
	}
	return trip.UniqueStrings(items)
}

func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ":：-–·•|[]()")
	return strings.TrimSpace(s)
}

type priceHit struct {
	at       int
	amount   int64
	currency string
}

func findPrice(text string) (int64, string) {
	var hits []priceHit
	for _, rule := range priceRules {
		for _, m := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			amount, ok := parseAmount(text[m[2]:m[3]], rule.scale)
			if !ok {
				continue
			}
			hits = append(hits, priceHit{at: m[0], amount: amount, currency: rule.currency})
		}
	}
	if len(hits) == 0 {
		return 0, ""
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	for _, kw := range priceKeywordRe.FindAllStringIndex(text, -1) {
		for _, h := range hits {
			if h.at >= kw[1] && h.at-kw[1] <= priceKeywordWindow {
				return h.amount, h.currency
			}
		}
	}
	return hits[0].amount, hits[0].currency
}

func parseAmount(raw string, scale float64) (int64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return roundAmount(v * scale)
}

// roundAmount rounds v to a whole amount, rejecting values an int64 can't hold.
func roundAmount(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	r := math.Round(v)
	if r >= float64(math.MaxInt64) || r < float64(math.MinInt64) {
		return 0, false
	}
	return int64(r), true
}

func findPhone(text string) string {
	m := phoneRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + "-" + m[2] + "-" + m[3]
}

func findTravelers(text string) []trip.Traveler {
	var out []trip.Traveler
	for _, c := range []struct {
		re       *regexp.Regexp
		category string
	}{
		{adultRe, trip.TravelerAdult},
		{childRe, trip.TravelerChild},
		{infantRe, trip.TravelerInfant},
	} {
		m := c.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		for i := 0; i < n && len(out) < maxTravelers; i++ {
			out = append(out, trip.Traveler{Category: c.category})
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
