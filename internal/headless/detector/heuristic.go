// Package detector decides when directly fetched markup is an unrendered
// client-side shell that needs a rendering strategy instead.
package detector

import (
	"strings"

	"github.com/JakeFAU/tripsync/internal/normalize"
)

// Heuristic implements a handful of rule-based shell checks.
type Heuristic struct {
	// MinTextRunes is the visible text length below which a page with SPA
	// markers or dense scripts counts as a shell.
	MinTextRunes int
}

// NewHeuristic creates a new detector.
func NewHeuristic(minTextRunes int) *Heuristic {
	if minTextRunes == 0 {
		minTextRunes = 200
	}
	return &Heuristic{MinTextRunes: minTextRunes}
}

var spaMarkers = []string{
	`id="__next"`,
	`id="root"`,
	`id="app"`,
	`data-reactroot`,
	`ng-version`,
}

// IsShell reports whether markup carries too little content to extract from.
// Pages with an embedded client-state payload are never shells: the payload is
// usable on its own.
func (h *Heuristic) IsShell(markup string) bool {
	if strings.TrimSpace(markup) == "" {
		return true
	}
	if normalize.HasPayload(markup) {
		return false
	}
	text := normalize.Normalize(markup).PlainText
	if len([]rune(text)) >= h.MinTextRunes {
		return false
	}
	if scriptDensityHigh(markup) {
		return true
	}
	lower := strings.ToLower(markup)
	for _, marker := range spaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return text == ""
}

func scriptDensityHigh(body string) bool {
	lower := strings.ToLower(body)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed tag; count the rest of the document.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		nextSearch := total
		if relativeEnd != -1 {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
