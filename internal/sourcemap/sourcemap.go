// Package sourcemap implements the source-map registry (spec §4.7):
// Register stores a source map's path under a random id, and the handler
// serves that map over loopback with its sourceRoot rewritten to the map's
// absolute directory and permissive CORS, so stack traces from the child
// runtime resolve back to original sources without exposing arbitrary
// filesystem paths. The package does not edit scripts: it does not rewrite
// a script's trailing source-map URL; Register only returns the id.
package sourcemap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/localdev/hostd/internal/emuerr"
)

// Registry maps a random id to the absolute path of a source map on disk.
type Registry struct {
	mu    sync.RWMutex
	paths map[string]string

	loadGroup singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{paths: make(map[string]string)}
}

// Register records mapPath under a fresh random id and returns the id, for
// the caller to splice into the script's trailing `//# sourceMappingURL=`
// comment as a loopback URL.
func (r *Registry) Register(mapPath string) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.paths[id] = mapPath
	r.mu.Unlock()
	return id
}

// Unregister drops a previously registered id, e.g. when the owning
// worker is reloaded and its source maps superseded.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.paths, id)
	r.mu.Unlock()
}

// loadedMap is a parsed source map with its sourceRoot rewritten to the
// map file's absolute directory (spec §4.7).
type loadedMap struct {
	raw []byte
}

// Load reads and rewrites the source map registered under id. Concurrent
// loads of the same id collapse into a single disk read and rewrite via
// singleflight, since a busy stack-trace burst can request the same map
// many times before the first read completes.
func (r *Registry) Load(ctx context.Context, id string) ([]byte, error) {
	r.mu.RLock()
	path, ok := r.paths[id]
	r.mu.RUnlock()
	if !ok {
		return nil, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such source map id")
	}

	v, err, _ := r.loadGroup.Do(id, func() (interface{}, error) {
		return loadAndRewrite(path)
	})
	if err != nil {
		return nil, err
	}
	return v.(*loadedMap).raw, nil
}

func loadAndRewrite(path string) (*loadedMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sourcemap: reading %s: %w", path, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("sourcemap: parsing %s: %w", path, err)
	}
	doc["sourceRoot"] = filepath.ToSlash(filepath.Dir(path))

	rewritten, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("sourcemap: re-encoding %s: %w", path, err)
	}
	return &loadedMap{raw: rewritten}, nil
}

// Handler serves the registry over HTTP with permissive CORS, mounted at a
// loopback-only path by the caller (spec §4.7: "serves it with permissive
// CORS").
func Handler(registry *Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))
	r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
		raw, err := registry.Load(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write(raw)
	})
	return r
}
