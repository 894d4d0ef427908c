package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	dottedDateRe = regexp.MustCompile(`(20\d{2})\s*[./\-]\s*(\d{1,2})\s*[./\-]\s*(\d{1,2})`)
	koreanDateRe = regexp.MustCompile(`(20\d{2})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	// A range tail such as "~ 05.05" after a full date inherits its year.
	rangeTailRe = regexp.MustCompile(`^\s*\([^)]{1,3}\)\s*[~\-–]\s*(\d{1,2})\s*[./\-]\s*(\d{1,2})|^\s*[~\-–]\s*(\d{1,2})\s*[./\-]\s*(\d{1,2})`)
	nightsDaysRe = regexp.MustCompile(`(\d{1,2})\s*박\s*(\d{1,2})\s*일`)
)

type datedMatch struct {
	at   int
	end  int
	date time.Time
}

// findDates returns every valid calendar date in text in order of appearance.
func findDates(text string) []datedMatch {
	var out []datedMatch
	for _, re := range []*regexp.Regexp{dottedDateRe, koreanDateRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			d, ok := makeDate(text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]])
			if !ok {
				continue
			}
			out = append(out, datedMatch{at: m[0], end: m[1], date: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out
}

func makeDate(y, m, d string) (time.Time, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March; reject those.
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// rangeEnd parses a "~ MM.DD" tail directly after a full date.
func rangeEnd(text string, start time.Time) (time.Time, bool) {
	m := rangeTailRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	month, day := m[1], m[2]
	if month == "" {
		month, day = m[3], m[4]
	}
	end, ok := makeDate(strconv.Itoa(start.Year()), month, day)
	if !ok {
		return time.Time{}, false
	}
	if end.Before(start) {
		end = end.AddDate(1, 0, 0)
	}
	return end, true
}

// tripDates picks the departure and return dates from text. A date range tail
// wins; otherwise the first date is departure and the next later date is return.
func tripDates(text string) (string, string) {
	ms := findDates(text)
	if len(ms) == 0 {
		return "", ""
	}
	dep := ms[0]
	if end, ok := rangeEnd(text[dep.end:], dep.date); ok {
		return dep.date.Format(dateLayout), end.Format(dateLayout)
	}
	for _, m := range ms[1:] {
		if m.date.After(dep.date) {
			return dep.date.Format(dateLayout), m.date.Format(dateLayout)
		}
	}
	return dep.date.Format(dateLayout), ""
}

// NormalizeDate converts the supported date spellings, including RFC 3339
// timestamps, to YYYY-MM-DD. Unrecognized input yields "".
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(dateLayout)
	}
	if len(s) == 8 && isDigits(s) {
		if d, ok := makeDate(s[:4], s[4:6], s[6:]); ok {
			return d.Format(dateLayout)
		}
	}
	if ms := findDates(s); len(ms) > 0 {
		return ms[0].date.Format(dateLayout)
	}
	return ""
}

// durationFromDates renders "N박M일" from ISO dates.
func durationFromDates(dep, ret string) string {
	d, err1 := time.Parse(dateLayout, dep)
	r, err2 := time.Parse(dateLayout, ret)
	if err1 != nil || err2 != nil || !r.After(d) {
		return ""
	}
	nights := int(r.Sub(d).Hours() / 24)
	return fmt.Sprintf("%d박%d일", nights, nights+1)
}

func findDuration(text string) string {
	m := nightsDaysRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + "박" + m[2] + "일"
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
