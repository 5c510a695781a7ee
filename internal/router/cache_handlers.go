package router

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/localdev/hostd/internal/emuerr"
)

// cacheStatusHeader carries the intended response status code for a cache
// PUT, since the request's own status line has no meaning for an inbound
// request (spec §4.5: per-product headers carry metadata alongside the
// shared request body — here the cached response's status rather than a
// metadata-length split, since the cached payload already *is* an HTTP
// response with its own header set).
const cacheStatusHeader = "X-Hostd-Cache-Status"

func (h *handlers) cachePut(w http.ResponseWriter, r *http.Request) {
	store := h.gw.cachePartition(r.URL.Query().Get("cache"))
	if store == nil {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such cache partition"))
		return
	}

	status := http.StatusOK
	if v := r.Header.Get(cacheStatusHeader); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			status = n
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	stored, err := store.Put(r.Context(), chi.URLParam(r, "cacheKey"), status, r.Header.Clone(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	if !stored {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) cacheMatch(w http.ResponseWriter, r *http.Request) {
	store := h.gw.cachePartition(r.URL.Query().Get("cache"))
	if store == nil {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such cache partition"))
		return
	}
	result, err := store.Match(r.Context(), chi.URLParam(r, "cacheKey"))
	if err != nil {
		writeError(w, err)
		return
	}
	for k, vs := range result.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

func (h *handlers) cacheDelete(w http.ResponseWriter, r *http.Request) {
	store := h.gw.cachePartition(r.URL.Query().Get("cache"))
	if store == nil {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such cache partition"))
		return
	}
	existed, err := store.Delete(r.Context(), chi.URLParam(r, "cacheKey"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !existed {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
