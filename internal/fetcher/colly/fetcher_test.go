package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tripsync/internal/trip"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubDetector struct{ shell bool }

func (d stubDetector) IsShell(string) bool { return d.shell }

func TestFetchReturnsRawPage(t *testing.T) {
	t.Parallel()

	var gotUA, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotHeader = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("<html><body>포함사항: 숙박</body></html>"))
	}))
	defer srv.Close()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := New(Config{UserAgent: "tripsync-test", Headers: map[string]string{"Accept-Language": "ko-KR"}}, WithClock(fixedClock{now}))

	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, trip.FetchDirect, page.FetchedVia)
	require.Equal(t, now, page.FetchedAt)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, page.Markup, "포함사항")
	require.Equal(t, "tripsync-test", gotUA)
	require.Equal(t, "ko-KR", gotHeader)
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer srv.Close()

	f := New(Config{})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, hits.Load())
}

func TestFetchStatusClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"service unavailable", http.StatusServiceUnavailable, true},
		{"too many requests", http.StatusTooManyRequests, true},
		{"not found", http.StatusNotFound, false},
		{"forbidden", http.StatusForbidden, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := New(Config{}).Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			require.Equal(t, tc.transient, trip.IsTransient(err))
		})
	}
}

func TestFetchRejectsShell(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div id="__next"></div>`))
	}))
	defer srv.Close()

	_, err := New(Config{}, WithShellDetector(stubDetector{shell: true})).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrShellPage)
	require.False(t, trip.IsTransient(err))
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, srv.URL)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.False(t, trip.IsTransient(err))
	require.Less(t, time.Since(start), time.Second)
}

func TestGetPassesHeadersAndStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo", r.Header.Get("X-Api-Key"))
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("quota"))
	}))
	defer srv.Close()

	resp, err := New(Config{}).Get(context.Background(), srv.URL, http.Header{"X-Api-Key": {"k"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	require.Equal(t, "k", resp.Headers.Get("X-Echo"))
	require.Equal(t, "quota", string(resp.Body))
}
