package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/marketrow/stallgate/pkg/httputil"
	"github.com/marketrow/stallgate/pkg/middleware"
	"github.com/marketrow/stallgate/pkg/policy"
	"github.com/marketrow/stallgate/pkg/store"
)

// DocumentHandlers serves collection documents through the guarded store
type DocumentHandlers struct {
	guarded *store.GuardedStore
}

// NewDocumentHandlers creates document handlers
func NewDocumentHandlers(guarded *store.GuardedStore) *DocumentHandlers {
	return &DocumentHandlers{guarded: guarded}
}

// RegisterRoutes registers the collection routes
func (h *DocumentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/{collection}", h.list).Methods("GET")
	router.HandleFunc("/{collection}", h.create).Methods("POST")
	router.HandleFunc("/{collection}/{id}", h.get).Methods("GET")
	router.HandleFunc("/{collection}/{id}", h.update).Methods("PUT")
	router.HandleFunc("/{collection}/{id}", h.delete).Methods("DELETE")
}

// collectionFromPath validates the collection path segment
func collectionFromPath(w http.ResponseWriter, r *http.Request) (policy.Collection, bool) {
	name := mux.Vars(r)["collection"]
	for _, collection := range policy.Collections() {
		if string(collection) == name {
			return collection, true
		}
	}
	httputil.WriteNotFoundError(w, "unknown collection: "+name)
	return "", false
}

// writeStoreError maps guarded store errors onto HTTP statuses
func writeStoreError(w http.ResponseWriter, err error) {
	if reason, ok := store.DeniedReason(err); ok {
		if reason == policy.ReasonUnauthenticated {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		httputil.WriteDenied(w, string(reason))
		return
	}
	if errors.Is(err, policy.ErrNotFound) {
		httputil.WriteNotFoundError(w, "document not found")
		return
	}
	if errors.Is(err, store.ErrAlreadyExists) {
		httputil.WriteConflict(w, "document already exists")
		return
	}
	httputil.WriteInternalError(w, err)
}

func (h *DocumentHandlers) list(w http.ResponseWriter, r *http.Request) {
	collection, ok := collectionFromPath(w, r)
	if !ok {
		return
	}

	docs, err := h.guarded.List(r.Context(), middleware.GetPrincipal(r), collection)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if docs == nil {
		docs = []policy.Document{}
	}
	httputil.WriteSuccess(w, docs)
}

func (h *DocumentHandlers) get(w http.ResponseWriter, r *http.Request) {
	collection, ok := collectionFromPath(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	doc, err := h.guarded.Get(r.Context(), middleware.GetPrincipal(r), collection, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (h *DocumentHandlers) create(w http.ResponseWriter, r *http.Request) {
	collection, ok := collectionFromPath(w, r)
	if !ok {
		return
	}

	var doc policy.Document
	if !httputil.ParseJSONOrError(w, r, &doc) {
		return
	}

	created, err := h.guarded.Create(r.Context(), middleware.GetPrincipal(r), collection, doc)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (h *DocumentHandlers) update(w http.ResponseWriter, r *http.Request) {
	collection, ok := collectionFromPath(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	var doc policy.Document
	if !httputil.ParseJSONOrError(w, r, &doc) {
		return
	}

	updated, err := h.guarded.Update(r.Context(), middleware.GetPrincipal(r), collection, id, doc)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *DocumentHandlers) delete(w http.ResponseWriter, r *http.Request) {
	collection, ok := collectionFromPath(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	if err := h.guarded.Delete(r.Context(), middleware.GetPrincipal(r), collection, id); err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
