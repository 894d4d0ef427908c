package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "pages/example.com/abc.html", "text/html", bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	require.Equal(t, "memory://pages/example.com/abc.html", uri)

	got, ok := store.Object("pages/example.com/abc.html")
	require.True(t, ok)
	got[0] = 'C'

	again, _ := store.Object("pages/example.com/abc.html")
	require.Equal(t, "content", string(again))
	require.Equal(t, 1, store.Len())

	_, ok = store.Object("missing")
	require.False(t, ok)
}
