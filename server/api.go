package server

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/obnam-mirror/obnam2/persist"
)

// Error is the JSON shape of every non-2xx response the chunk server
// returns.
type Error struct {
	Message string `json:"message"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Message
}

// WriteJSON writes obj to w as a 200 OK JSON response.
func WriteJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(obj)
}

// WriteJSONStatus writes obj to w as a JSON response with the given status.
func WriteJSONStatus(w http.ResponseWriter, obj interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(obj)
}

// WriteSuccess writes the generic {"message":"success"} 200 response.
func WriteSuccess(w http.ResponseWriter) {
	WriteJSON(w, Error{"success"})
}

// WriteError writes err to w as a JSON error response with the given status.
func WriteError(w http.ResponseWriter, err Error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

// API wires the chunk store into the /v1/chunks HTTP resource.
type API struct {
	store  *ChunkStore
	log    *persist.Logger
	router *httprouter.Router
}

// NewAPI builds the HTTP handler tree for the chunk server.
func NewAPI(store *ChunkStore, log *persist.Logger) *API {
	api := &API{
		store:  store,
		log:    log,
		router: httprouter.New(),
	}
	api.router.POST("/v1/chunks", api.createChunkHandler)
	api.router.GET("/v1/chunks", api.searchChunksHandler)
	api.router.GET("/v1/chunks/:id", api.getChunkHandler)
	api.router.DELETE("/v1/chunks/:id", api.deleteChunkHandler)
	return api
}

// ServeHTTP implements http.Handler by delegating to the router.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}
