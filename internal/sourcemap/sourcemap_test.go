package sourcemap

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMapFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	doc := map[string]interface{}{"version": 3, "sourceRoot": "", "sources": []string{"worker.js"}}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestLoadRewritesSourceRootToMapDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeMapFile(t, dir, "worker.js.map")

	reg := NewRegistry()
	id := reg.Register(path)

	raw, err := reg.Load(context.Background(), id)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, filepath.ToSlash(dir), doc["sourceRoot"])
}

func TestLoadUnknownIDFails(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Load(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestUnregisterRemovesID(t *testing.T) {
	dir := t.TempDir()
	path := writeMapFile(t, dir, "worker.js.map")

	reg := NewRegistry()
	id := reg.Register(path)
	reg.Unregister(id)

	_, err := reg.Load(context.Background(), id)
	require.Error(t, err)
}

func TestHandlerServesRegisteredMap(t *testing.T) {
	dir := t.TempDir()
	path := writeMapFile(t, dir, "worker.js.map")

	reg := NewRegistry()
	id := reg.Register(path)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
