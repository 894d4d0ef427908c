package trip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, false},
		{"wrapped deadline", fmt.Errorf("visit: %w", context.DeadlineExceeded), false},
		{"canceled", context.Canceled, false},
		{"marked", Transient(errors.New("503")), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"net timeout", timeoutErr{timeout: true}, false},
		{"net non-timeout", timeoutErr{timeout: false}, true},
		{"plain", errors.New("404"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestFetchErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("analyze: %w", &FetchError{
		URL:      "https://example.com",
		Attempts: []AttemptError{{Method: FetchDirect, Attempt: 1, Err: errors.New("boom")}},
		Cause:    context.DeadlineExceeded,
	})

	require.ErrorIs(t, err, ErrFetchFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "direct#1: boom")
}

func TestCheckHTTPStatus(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckHTTPStatus(200))
	require.NoError(t, CheckHTTPStatus(302))
	require.True(t, IsTransient(CheckHTTPStatus(502)))
	require.True(t, IsTransient(CheckHTTPStatus(429)))
	require.Error(t, CheckHTTPStatus(410))
	require.False(t, IsTransient(CheckHTTPStatus(410)))
}
