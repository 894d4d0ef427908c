package normalize

import (
	"regexp"
	"strings"
)

var (
	nextDataRe = regexp.MustCompile(`(?is)<script[^>]*\bid\s*=\s*["']__NEXT_DATA__["'][^>]*>(.*?)</script\s*>`)
	jsonLDRe   = regexp.MustCompile(`(?is)<script[^>]*\btype\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script\s*>`)
)

// Global state assignments some client-rendered pages use to hydrate.
var stateMarkers = []string{
	"window.__INITIAL_STATE__",
	"window.__APOLLO_STATE__",
	"window.__NUXT__",
	"window.__PRELOADED_STATE__",
}

// ExtractPayload returns the raw client-state JSON text embedded in markup, or ""
// when none is present. The text is not parsed or validated.
func ExtractPayload(markup string) string {
	if m := nextDataRe.FindStringSubmatch(markup); m != nil {
		if p := strings.TrimSpace(m[1]); p != "" {
			return p
		}
	}
	for _, marker := range stateMarkers {
		idx := strings.Index(markup, marker)
		if idx < 0 {
			continue
		}
		rest := markup[idx+len(marker):]
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			continue
		}
		if p := balancedJSON(rest[eq+1:]); p != "" {
			return p
		}
	}
	if m := jsonLDRe.FindStringSubmatch(markup); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// HasPayload reports whether markup carries an embedded client-state payload.
func HasPayload(markup string) bool {
	return ExtractPayload(markup) != ""
}

// balancedJSON returns the first balanced {...} or [...] value at the start of s,
// ignoring brackets inside string literals. Unbalanced input yields "".
func balancedJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 || strings.TrimSpace(s[:start]) != "" {
		return ""
	}
	depth := 0
	inString := false
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
