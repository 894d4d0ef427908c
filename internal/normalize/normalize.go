// Package normalize turns raw page markup into flat text plus any embedded
// client-state payload.
package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"

	"github.com/JakeFAU/tripsync/internal/trip"
)

const noiseSelector = "script, style, noscript, template, svg, iframe, head"

var (
	noiseBlockRe = regexp.MustCompile(`(?is)<(script|style|noscript|template|svg|iframe)\b[^>]*>.*?</(script|style|noscript|template|svg|iframe)\s*>`)
	commentRe    = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
)

// Normalize strips non-content markup and collapses whitespace. It never fails;
// unparseable input degrades to regex tag stripping and worst case yields empty text.
func Normalize(markup string) trip.NormalizedContent {
	out := trip.NormalizedContent{
		EmbeddedPayload: ExtractPayload(markup),
	}
	if strings.TrimSpace(markup) == "" {
		return out
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		out.PlainText = stripTags(markup)
		return out
	}
	out.PageTitle = pageTitle(doc)
	doc.Find(noiseSelector).Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		collectText(n, &b)
	}
	out.PlainText = CollapseSpace(b.String())
	return out
}

// CollapseSpace replaces every run of whitespace with a single space and trims.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collectText(n *xhtml.Node, b *strings.Builder) {
	switch n.Type {
	case xhtml.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case xhtml.CommentNode, xhtml.DoctypeNode:
		return
	case xhtml.ElementNode:
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "template", "svg", "iframe":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if og = CollapseSpace(og); og != "" {
			return og
		}
	}
	return CollapseSpace(doc.Find("title").First().Text())
}

func stripTags(markup string) string {
	s := noiseBlockRe.ReplaceAllString(markup, " ")
	s = commentRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	// Leftover angle brackets from truncated tags.
	if i := strings.LastIndexByte(s, '<'); i >= 0 && !strings.Contains(s[i:], ">") {
		s = s[:i]
	}
	return CollapseSpace(html.UnescapeString(s))
}
