package sites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildManifestIncludesAllFilesByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "<html></html>")
	writeFile(t, root, "assets/app.js", "console.log(1)")

	m, err := BuildManifest(root, nil, nil)
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Contains(t, m, "index.html")
	assert.Contains(t, m, "assets/app.js")
}

func TestBuildManifestAppliesExcludeGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "a")
	writeFile(t, root, "node_modules/pkg/index.js", "b")

	m, err := BuildManifest(root, nil, []string{"node_modules/**"})
	require.NoError(t, err)
	assert.Contains(t, m, "index.html")
	assert.NotContains(t, m, "node_modules/pkg/index.js")
}

func TestBuildManifestAppliesIncludeGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "a")
	writeFile(t, root, "style.css", "b")

	m, err := BuildManifest(root, []string{"**/*.html"}, nil)
	require.NoError(t, err)
	assert.Contains(t, m, "index.html")
	assert.NotContains(t, m, "style.css")
}

func TestBuildManifestHashIsStableForIdenticalContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "same")
	writeFile(t, root, "b.txt", "same")

	m, err := BuildManifest(root, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, m["a.txt"].Hash, m["b.txt"].Hash)
}

func TestRootJoinsSiteRootAndAssetPath(t *testing.T) {
	got := Root("/srv/site", "assets/app.js")
	assert.Equal(t, filepath.Join("/srv/site", "assets", "app.js"), got)
}
