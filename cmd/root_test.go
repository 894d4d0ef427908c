package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeRequiresURL(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetArgs([]string{"analyze"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "accepts 1 arg")
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetArgs([]string{"--config", "/nonexistent/tripsync.yaml", "serve"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "load config")
}

func TestResolveAppWithoutApp(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
