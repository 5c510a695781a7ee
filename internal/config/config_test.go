package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeScalarOverridePrecedence(t *testing.T) {
	defaults := Options{Host: "127.0.0.1", Port: 1}
	file := Options{Host: "0.0.0.0"}
	programmatic := Options{Port: 9999}

	merged := Merge(defaults, file, programmatic)

	assert.Equal(t, "0.0.0.0", merged.Host) // file overrides defaults
	assert.Equal(t, 9999, merged.Port)      // programmatic overrides file/defaults
}

func TestMergeArraysConcatenateAcrossLayers(t *testing.T) {
	defaults := Options{KVNamespaces: []string{"A"}}
	file := Options{KVNamespaces: []string{"B"}}
	programmatic := Options{KVNamespaces: []string{"C"}}

	merged := Merge(defaults, file, programmatic)

	assert.Equal(t, []string{"A", "B", "C"}, merged.KVNamespaces)
}

func TestMergeArraysOmittedLayerContributesNothing(t *testing.T) {
	defaults := Options{KVNamespaces: []string{"A"}}
	merged := Merge(defaults, Options{}, Options{})
	assert.Equal(t, []string{"A"}, merged.KVNamespaces)
}

func TestValidateCompatibilityDateFutureFails(t *testing.T) {
	Now = func() time.Time { return time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC) }
	defer func() { Now = time.Now }()

	_, _, err := ValidateCompatibilityDate("2030-01-01", "2026-06-01")
	require.Error(t, err)
}

func TestValidateCompatibilityDateDowngradesBeyondSupported(t *testing.T) {
	Now = func() time.Time { return time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC) }
	defer func() { Now = time.Now }()

	eff, downgraded, err := ValidateCompatibilityDate("2026-07-01", "2026-06-01")
	require.NoError(t, err)
	assert.True(t, downgraded)
	assert.Equal(t, "2026-06-01", eff)
}

func TestValidateCompatibilityDateNumericAwareOrdering(t *testing.T) {
	Now = func() time.Time { return time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC) }
	defer func() { Now = time.Now }()

	eff, downgraded, err := ValidateCompatibilityDate("2024-01-02", "2024-01-10")
	require.NoError(t, err)
	assert.False(t, downgraded)
	assert.Equal(t, "2024-01-02", eff)
}

func TestParsePersistVariants(t *testing.T) {
	p, err := ParsePersist("", "/default/root")
	require.NoError(t, err)
	assert.Equal(t, PersistMemory, p.Kind)

	p, err = ParsePersist("false", "/default/root")
	require.NoError(t, err)
	assert.Equal(t, PersistMemory, p.Kind)

	p, err = ParsePersist("true", "/default/root")
	require.NoError(t, err)
	assert.Equal(t, PersistDefaultRoot, p.Kind)
	assert.Equal(t, "/default/root", p.Path)

	p, err = ParsePersist("/tmp/custom", "/default/root")
	require.NoError(t, err)
	assert.Equal(t, PersistPath, p.Kind)
	assert.Equal(t, "/tmp/custom", p.Path)

	p, err = ParsePersist("file:///tmp/custom2", "/default/root")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom2", p.Path)

	_, err = ParsePersist("s3://bucket/path", "/default/root")
	require.Error(t, err)
}

func TestLoadFileLayerMissingFileIsNotError(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Options{})
	require.NoError(t, err)
	assert.NotNil(t, opts)
}

func TestLoadMergesFileLayer(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("kv_namespaces:\n  - NS\n"), 0o644))

	opts, err := Load(p, Options{KVNamespaces: []string{"PROG"}})
	require.NoError(t, err)
	assert.Contains(t, opts.KVNamespaces, "NS")
	assert.Contains(t, opts.KVNamespaces, "PROG")
}
