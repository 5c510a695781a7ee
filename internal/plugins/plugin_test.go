package plugins

import (
	"path/filepath"
	"testing"

	"github.com/localdev/hostd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOrderedFollowsCompositionOrder(t *testing.T) {
	r := NewRegistry(BindingsPlugin{}, KVPlugin{}, CorePlugin{}, SitesPlugin{})
	ordered := r.Ordered()
	require.Len(t, ordered, 4)
	assert.Equal(t, "core", ordered[0].Name())
	assert.Equal(t, "kv", ordered[1].Name())
	assert.Equal(t, "sites", ordered[2].Name())
	assert.Equal(t, "bindings", ordered[3].Name())
}

func TestKVPluginProvisionsDiskRoot(t *testing.T) {
	dir := t.TempDir()
	ctx := &Context{
		PersistRoot: dir,
		Options:     config.Options{KVNamespaces: []string{"NS"}},
	}
	svcs, err := KVPlugin{}.GetServices(ctx)
	require.NoError(t, err)
	require.Len(t, svcs, 1)
	assert.DirExists(t, filepath.Join(dir, "kv"))
}

func TestKVPluginNoopWithoutNamespaces(t *testing.T) {
	ctx := &Context{PersistRoot: t.TempDir()}
	svcs, err := KVPlugin{}.GetServices(ctx)
	require.NoError(t, err)
	assert.Empty(t, svcs)
}

func TestRunNodeBindingsAggregatesAcrossPlugins(t *testing.T) {
	r := NewRegistry(CorePlugin{}, KVPlugin{}, R2Plugin{}, QueuePlugin{})
	opts := config.Options{
		KVNamespaces: []string{"NS"},
		R2Buckets:    []string{"B"},
		Queues:       []config.QueueOptions{{Name: "Q"}},
	}
	bindings, err := r.RunNodeBindings(opts)
	require.NoError(t, err)
	assert.Len(t, bindings, 3)
}
