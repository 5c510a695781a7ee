package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/storage/relational"
)

func (h *handlers) database(r *http.Request) (*relational.Database, bool) {
	db, ok := h.gw.Relational[chi.URLParam(r, "database")]
	return db, ok
}

func (h *handlers) relationalQuery(w http.ResponseWriter, r *http.Request) {
	db, ok := h.database(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such database"))
		return
	}
	var wire struct {
		SQL string `json:"sql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "malformed query body"))
		return
	}
	rows, err := db.Query(wire.SQL)
	if err != nil {
		writeError(w, emuerr.Wrap(emuerr.KindStorage, emuerr.CodeSchemaInvalid, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": rows})
}

func (h *handlers) relationalBatch(w http.ResponseWriter, r *http.Request) {
	db, ok := h.database(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such database"))
		return
	}
	var wire struct {
		Statements []string `json:"statements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "malformed batch body"))
		return
	}
	if err := db.Batch(wire.Statements); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
