package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// ChunkMeta is the compact JSON object carried in the Chunk-Meta header on
// POST and echoed back on GET. Clients must tolerate additional unknown
// fields for forward compatibility; the current schema only defines Label.
type ChunkMeta struct {
	Label string                 `json:"label"`
	Extra map[string]interface{} `json:"-"`
}

// UnmarshalJSON decodes known fields into struct members while preserving
// any unrecognised ones in Extra, so future metadata fields round-trip.
func (m *ChunkMeta) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if label, ok := raw["label"].(string); ok {
		m.Label = label
	}
	delete(raw, "label")
	m.Extra = raw
	return nil
}

// MarshalJSON re-assembles the label together with any preserved unknown
// fields.
func (m ChunkMeta) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	for k, v := range m.Extra {
		out[k] = v
	}
	out["label"] = m.Label
	return json.Marshal(out)
}

// createdResponse is returned by POST /v1/chunks on success.
type createdResponse struct {
	ChunkID string `json:"chunk_id"`
}

func (api *API) createChunkHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	header := r.Header.Get("Chunk-Meta")
	if header == "" {
		WriteError(w, Error{"Chunk-Meta header is required"}, http.StatusBadRequest)
		return
	}
	var meta ChunkMeta
	if err := json.Unmarshal([]byte(header), &meta); err != nil {
		WriteError(w, Error{"Chunk-Meta header is not valid JSON: " + err.Error()}, http.StatusBadRequest)
		return
	}
	if meta.Label == "" {
		WriteError(w, Error{"Chunk-Meta.label must not be empty"}, http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, Error{"could not read request body: " + err.Error()}, http.StatusBadRequest)
		return
	}

	id, err := api.store.Put(meta.Label, body)
	if err != nil {
		api.log.Error("could not store chunk:", err)
		WriteError(w, Error{"could not store chunk: " + err.Error()}, http.StatusInternalServerError)
		return
	}
	api.log.Info("created chunk", id)
	WriteJSONStatus(w, createdResponse{ChunkID: id}, http.StatusCreated)
}

func (api *API) getChunkHandler(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	body, label, err := api.store.Get(id)
	if err != nil {
		WriteError(w, Error{"chunk not found: " + id}, http.StatusNotFound)
		return
	}
	metaJSON, _ := json.Marshal(ChunkMeta{Label: label})
	w.Header().Set("Chunk-Meta", string(metaJSON))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (api *API) searchChunksHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	label := r.URL.Query().Get("label")
	if label == "" {
		WriteError(w, Error{"label query parameter is required"}, http.StatusBadRequest)
		return
	}
	ids, err := api.store.GetByLabel(label)
	if err != nil {
		WriteError(w, Error{"could not search by label: " + err.Error()}, http.StatusInternalServerError)
		return
	}
	result := make(map[string]ChunkMeta, len(ids))
	for _, id := range ids {
		result[id] = ChunkMeta{Label: label}
	}
	WriteJSON(w, result)
}

func (api *API) deleteChunkHandler(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := api.store.Delete(id); err != nil {
		if err == ErrNotFound {
			WriteError(w, Error{"chunk not found: " + id}, http.StatusNotFound)
			return
		}
		WriteError(w, Error{"could not delete chunk: " + err.Error()}, http.StatusInternalServerError)
		return
	}
	WriteSuccess(w)
}
