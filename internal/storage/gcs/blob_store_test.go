package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "pages-bucket"})
	require.NoError(t, err)
	return store
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var gotName, gotBody string
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotName = r.URL.Query().Get("name")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = fmt.Fprintln(w, `{"name":"`+gotName+`","bucket":"pages-bucket"}`)
	}))

	uri, err := store.PutObject(context.Background(), "pages/example.com/abc.html", "text/html", strings.NewReader("<html>다낭</html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://pages-bucket/pages/example.com/abc.html", uri)
	require.Equal(t, "pages/example.com/abc.html", gotName)
	require.Contains(t, gotBody, "<html>다낭</html>")
	require.Contains(t, gotBody, "text/html")
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := store.PutObject(context.Background(), "pages/x.html", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestNewClientChecksBucket(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprintln(w, `{"error":{"code":404,"message":"bucket not found"}}`)
	}))
	defer server.Close()

	_, err := NewClient(context.Background(), "missing", option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.Error(t, err)
}
