package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localdev/hostd/internal/config"
)

func TestBuildGatewayWiresConfiguredBindings(t *testing.T) {
	dir := t.TempDir()
	opts := config.Options{
		KVNamespaces: []string{"default"},
		R2Buckets:    []string{"assets"},
		D1Databases:  []string{"main"},
	}

	res, err := buildGateway(opts, dir)
	require.NoError(t, err)
	defer res.Close()

	assert.Contains(t, res.gw.KVNamespaces, "default")
	assert.Contains(t, res.gw.R2Buckets, "assets")
	assert.Contains(t, res.gw.Relational, "main")
	assert.NotNil(t, res.gw.CachePartitions["default"])
	assert.Nil(t, res.gw.Queues)
}

func TestResolveStoreRootUsesConfiguredPathForPersistPath(t *testing.T) {
	dir := t.TempDir()
	root, err := resolveStoreRoot(dir, "kv", "default", config.Persist{Kind: config.PersistPath, Path: dir + "/explicit"})
	require.NoError(t, err)
	assert.Equal(t, dir+"/explicit", root)
}

func TestResolveStoreRootCreatesEphemeralDirForMemory(t *testing.T) {
	dir := t.TempDir()
	root, err := resolveStoreRoot(dir, "kv", "default", config.Persist{Kind: config.PersistMemory})
	require.NoError(t, err)
	assert.NotEmpty(t, root)
	assert.NotEqual(t, dir, root)
}
