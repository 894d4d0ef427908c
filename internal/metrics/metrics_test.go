package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Tour.Example.com/path", "tour.example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := fetchAttemptsTotal
	Init()

	if fetchAttemptsTotal == nil || fetchAttemptsTotal != first {
		t.Fatal("Init() did not keep a single set of collectors")
	}
}

func TestObserveFetchAttempt(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("browser", "timeout"))
	ObserveFetchAttempt("browser", "timeout", 20*time.Second)
	after := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("browser", "timeout"))
	if after-before != 1 {
		t.Errorf("expected fetch attempt counter to increase by 1, got %f", after-before)
	}
}

func TestObserveSyncAndRates(t *testing.T) {
	Init()
	ObserveSync("push", "appended")
	ObserveRateLookup("hit")
	if val := testutil.ToFloat64(syncOperationsTotal.WithLabelValues("push", "appended")); val < 1 {
		t.Errorf("expected sync counter to be observed, got %f", val)
	}
	if val := testutil.ToFloat64(rateLookupsTotal.WithLabelValues("hit")); val < 1 {
		t.Errorf("expected rate lookup counter to be observed, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://tour.example.co.kr", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
