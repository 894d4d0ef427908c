// Package render holds the page-side render script shared by the rendering
// strategies: scroll, settle, expand, scroll, settle.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultSettleDelay is the pause after each scroll so lazy content can load.
const DefaultSettleDelay = 1500 * time.Millisecond

// DefaultMaxClicks bounds how many expand controls are clicked per page.
const DefaultMaxClicks = 10

// DefaultExpandLabels is the visible-label vocabulary of controls that reveal
// lazily rendered itinerary detail.
var DefaultExpandLabels = []string{
	"더보기", "상세보기", "펼치기", "전체보기", "자세히",
	"more", "expand", "show more", "details",
}

// ScrollToBottomJS scrolls to the end of the document and returns its height.
const ScrollToBottomJS = `(() => {
  const h = document.body ? document.body.scrollHeight : 0;
  window.scrollTo(0, h);
  return h;
})()`

// ExpandJS clicks up to maxClicks short controls whose visible label contains
// one of labels. It returns the number of clicks.
func ExpandJS(labels []string, maxClicks int) string {
	lowered := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			lowered = append(lowered, l)
		}
	}
	encoded, _ := json.Marshal(lowered)
	return fmt.Sprintf(`(() => {
  const labels = %s;
  const nodes = document.querySelectorAll('button, a, summary, [role="button"], [onclick]');
  let clicked = 0;
  for (const el of nodes) {
    if (clicked >= %d) break;
    const text = (el.innerText || el.textContent || '').trim().toLowerCase();
    if (!text || text.length > 24) continue;
    if (!labels.some((l) => text.includes(l))) continue;
    try { el.click(); clicked++; } catch (e) {}
  }
  return clicked;
})()`, encoded, maxClicks)
}
