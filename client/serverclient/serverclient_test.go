package serverclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obnam-mirror/obnam2/persist"
	"github.com/obnam-mirror/obnam2/server"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := server.OpenChunkStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log, err := persist.NewLogger(io.Discard, 0)
	require.NoError(t, err)

	api := server.NewAPI(store, log)
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	return ts
}

func TestUploadThenGetRoundTrips(t *testing.T) {
	ts := testServer(t)
	client := New(ts.URL, true)

	id, err := client.Upload(context.Background(), "sha256:abc", []byte("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	body, label, err := client.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), body)
	require.Equal(t, "sha256:abc", label)
}

func TestSearchByLabelFindsUploadedChunk(t *testing.T) {
	ts := testServer(t)
	client := New(ts.URL, true)

	id, err := client.Upload(context.Background(), "sha256:shared", []byte("x"))
	require.NoError(t, err)

	ids, err := client.SearchByLabel(context.Background(), "sha256:shared")
	require.NoError(t, err)
	require.Contains(t, ids, id)
}

func TestGetUnknownChunkReturnsError(t *testing.T) {
	ts := testServer(t)
	client := New(ts.URL, true)

	_, _, err := client.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestUploadRejectionSurfacesStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("malformed chunk meta"))
	}))
	t.Cleanup(ts.Close)

	client := New(ts.URL, true)
	_, err := client.Upload(context.Background(), "sha256:bad", []byte("x"))
	require.Error(t, err)

	statusErr, ok := err.(*StatusError)
	require.True(t, ok, "Upload should surface a *StatusError on server rejection")
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestDeleteThenGetFails(t *testing.T) {
	ts := testServer(t)
	client := New(ts.URL, true)

	id, err := client.Upload(context.Background(), "sha256:gone", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, client.Delete(context.Background(), id))

	_, _, err = client.Get(context.Background(), id)
	require.Error(t, err)
}
