package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obnam-mirror/obnam2/persist"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chunks")
	store, err := OpenChunkStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log, err := persist.NewLogger(io.Discard, 0)
	require.NoError(t, err)
	return NewAPI(store, log)
}

func postChunk(t *testing.T, api *API, label string, body []byte) (*httptest.ResponseRecorder, createdResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chunks", bytes.NewReader(body))
	meta, err := json.Marshal(ChunkMeta{Label: label})
	require.NoError(t, err)
	req.Header.Set("Chunk-Meta", string(meta))

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	var resp createdResponse
	if rec.Code == http.StatusCreated {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestCreateChunkHandlerRequiresMetaHeader(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/chunks", bytes.NewReader([]byte("x")))
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateThenGetChunkByID(t *testing.T) {
	api := newTestAPI(t)
	rec, created := postChunk(t, api, "sha256:abc", []byte("body bytes"))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, created.ChunkID)

	req := httptest.NewRequest(http.MethodGet, "/v1/chunks/"+created.ChunkID, nil)
	getRec := httptest.NewRecorder()
	api.ServeHTTP(getRec, req)

	require.Equal(t, http.StatusOK, getRec.Code)
	require.Equal(t, "body bytes", getRec.Body.String())

	var meta ChunkMeta
	require.NoError(t, json.Unmarshal([]byte(getRec.Header().Get("Chunk-Meta")), &meta))
	require.Equal(t, "sha256:abc", meta.Label)
}

func TestGetUnknownChunkReturns404(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/chunks/nope", nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchByLabelReturnsMap(t *testing.T) {
	api := newTestAPI(t)
	_, created := postChunk(t, api, "sha256:findme", []byte("x"))

	req := httptest.NewRequest(http.MethodGet, "/v1/chunks?label=sha256:findme", nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]ChunkMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	meta, ok := result[created.ChunkID]
	require.True(t, ok)
	require.Equal(t, "sha256:findme", meta.Label)
}

func TestDeleteThenGetAndSearchSeeNothing(t *testing.T) {
	api := newTestAPI(t)
	_, created := postChunk(t, api, "sha256:deleteme", []byte("x"))

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/chunks/"+created.ChunkID, nil)
	delRec := httptest.NewRecorder()
	api.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusOK, delRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/chunks/"+created.ChunkID, nil)
	getRec := httptest.NewRecorder()
	api.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusNotFound, getRec.Code)

	searchReq := httptest.NewRequest(http.MethodGet, "/v1/chunks?label=sha256:deleteme", nil)
	searchRec := httptest.NewRecorder()
	api.ServeHTTP(searchRec, searchReq)
	var result map[string]ChunkMeta
	require.NoError(t, json.Unmarshal(searchRec.Body.Bytes(), &result))
	require.Empty(t, result)
}

func TestDeleteUnknownChunkReturns404(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodDelete, "/v1/chunks/nope", nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
