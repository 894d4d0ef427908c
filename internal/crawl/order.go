package crawl

import (
	"time"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// Default per-strategy timeouts.
const (
	DefaultRenderTimeout = 20 * time.Second
	DefaultDirectTimeout = 10 * time.Second
)

// OrderStrategies picks the strategy order once at startup. In a constrained
// environment (no local browser) the managed service leads and the browser is
// left out; otherwise the browser leads. Direct fetch is always last. Steps with
// a nil Strategy are unavailable and skipped.
func OrderStrategies(constrained bool, steps ...Step) []Step {
	rank := map[trip.FetchMethod]int{
		trip.FetchBrowser: 0,
		trip.FetchManaged: 1,
		trip.FetchDirect:  2,
	}
	if constrained {
		rank = map[trip.FetchMethod]int{
			trip.FetchManaged: 0,
			trip.FetchDirect:  1,
		}
	}
	ordered := make([]Step, len(rank))
	present := make([]bool, len(rank))
	for _, s := range steps {
		if s.Strategy == nil {
			continue
		}
		i, ok := rank[s.Strategy.Method()]
		if !ok || present[i] {
			continue
		}
		ordered[i] = s
		present[i] = true
	}
	out := make([]Step, 0, len(ordered))
	for i, s := range ordered {
		if present[i] {
			out = append(out, s)
		}
	}
	return out
}
