package router

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/storage/kv"
)

type handlers struct {
	gw *Gateway
}

// kvPutMeta is the JSON metadata segment preceding the raw value in a KV
// PUT body (spec §4.5: "variable-length metadata + binary value share one
// request body, prefixed by a metadata length also sent in a header").
type kvPutMeta struct {
	ExpirationTTL int64             `json:"expirationTtl,omitempty"`
	Expiration    int64             `json:"expiration,omitempty"` // unix seconds
	Metadata      map[string]string `json:"metadata,omitempty"`
	CacheTTL      int64             `json:"cacheTtl,omitempty"`
}

type kvGetMeta struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (h *handlers) namespace(r *http.Request) (*kv.Namespace, bool) {
	ns, ok := h.gw.KVNamespaces[chi.URLParam(r, "namespace")]
	return ns, ok
}

func splitMetadataBody(r *http.Request) (meta []byte, value []byte, err error) {
	n, err := strconv.Atoi(r.Header.Get(metadataLengthHeader))
	if err != nil {
		return nil, nil, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "missing or invalid "+metadataLengthHeader)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, err
	}
	if n < 0 || n > len(body) {
		return nil, nil, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, metadataLengthHeader+" exceeds body size")
	}
	return body[:n], body[n:], nil
}

func (h *handlers) kvPut(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such namespace"))
		return
	}

	rawMeta, value, err := splitMetadataBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var meta kvPutMeta
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			writeError(w, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "malformed metadata segment"))
			return
		}
	}

	opts := kv.PutOptions{ExpirationTTLSeconds: meta.ExpirationTTL, Metadata: meta.Metadata, CacheTTLSeconds: meta.CacheTTL}
	if meta.Expiration > 0 {
		t := time.Unix(meta.Expiration, 0)
		opts.ExpirationAt = &t
	}

	if err := ns.Put(r.Context(), chi.URLParam(r, "key"), value, opts); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) kvGet(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such namespace"))
		return
	}
	val, err := ns.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}

	metaJSON, err := json.Marshal(kvGetMeta{Metadata: val.Metadata})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(metadataLengthHeader, strconv.Itoa(len(metaJSON)))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(metaJSON)
	w.Write(val.Bytes)
}

func (h *handlers) kvDelete(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such namespace"))
		return
	}
	if err := ns.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) kvList(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such namespace"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := ns.List(r.Context(), r.URL.Query().Get("prefix"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
