package plugins

import (
	"path/filepath"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/graph"
)

// KVPlugin exposes each configured KV namespace as a node binding and, when
// any namespace is configured, registers one writable disk service rooted
// at <persist>/kv. Marking the simulator enabled (which makes the loopback
// external mandatory) is done by the orchestrator, not by this plugin.
type KVPlugin struct{}

func (KVPlugin) Name() string { return "kv" }
func (KVPlugin) GetBindings(config.WorkerOptions) ([]WorkerBinding, error)   { return nil, nil }
func (KVPlugin) GetNodeBindings(opts config.Options) ([]NodeBinding, error) {
	var out []NodeBinding
	for _, ns := range opts.KVNamespaces {
		out = append(out, NodeBinding{Name: ns, Kind: config.BindingKVNamespace, Ref: ns})
	}
	return out, nil
}
func (KVPlugin) GetServices(ctx *Context) ([]graph.Service, error) {
	if len(ctx.Options.KVNamespaces) == 0 {
		return nil, nil
	}
	root, err := ctx.PluginRoot("kv")
	if err != nil {
		return nil, err
	}
	return []graph.Service{{
		Name: "kv-root", Kind: graph.KindDisk,
		Disk: &graph.DiskService{Path: root, Writable: true},
	}}, nil
}

// R2Plugin mirrors KVPlugin for R2 buckets.
type R2Plugin struct{}

func (R2Plugin) Name() string { return "r2" }
func (R2Plugin) GetBindings(config.WorkerOptions) ([]WorkerBinding, error) { return nil, nil }
func (R2Plugin) GetNodeBindings(opts config.Options) ([]NodeBinding, error) {
	var out []NodeBinding
	for _, b := range opts.R2Buckets {
		out = append(out, NodeBinding{Name: b, Kind: config.BindingR2Bucket, Ref: b})
	}
	return out, nil
}
func (R2Plugin) GetServices(ctx *Context) ([]graph.Service, error) {
	if len(ctx.Options.R2Buckets) == 0 {
		return nil, nil
	}
	root, err := ctx.PluginRoot("r2")
	if err != nil {
		return nil, err
	}
	return []graph.Service{{
		Name: "r2-root", Kind: graph.KindDisk,
		Disk: &graph.DiskService{Path: root, Writable: true},
	}}, nil
}

// CachePlugin provisions the cache simulator's on-disk root when any cache
// persistence is configured.
type CachePlugin struct{}

func (CachePlugin) Name() string { return "cache" }
func (CachePlugin) GetBindings(config.WorkerOptions) ([]WorkerBinding, error) { return nil, nil }
func (CachePlugin) GetNodeBindings(config.Options) ([]NodeBinding, error)     { return nil, nil }
func (CachePlugin) GetServices(ctx *Context) ([]graph.Service, error) {
	if ctx.Options.CachePersist == "" {
		return nil, nil
	}
	root, err := ctx.PluginRoot("cache")
	if err != nil {
		return nil, err
	}
	return []graph.Service{{
		Name: "cache-root", Kind: graph.KindDisk,
		Disk: &graph.DiskService{Path: root, Writable: true},
	}}, nil
}

// QueuePlugin exposes each configured queue as a node binding and, when any
// queue is configured, registers one writable disk service rooted at
// <persist>/queue. It does not check the single-consumer or dead-letter
// cycle rules.
type QueuePlugin struct{}

func (QueuePlugin) Name() string { return "queue" }
func (QueuePlugin) GetBindings(config.WorkerOptions) ([]WorkerBinding, error) { return nil, nil }
func (QueuePlugin) GetNodeBindings(opts config.Options) ([]NodeBinding, error) {
	var out []NodeBinding
	for _, q := range opts.Queues {
		out = append(out, NodeBinding{Name: q.Name, Kind: config.BindingQueue, Ref: q.Name})
	}
	return out, nil
}
func (QueuePlugin) GetServices(ctx *Context) ([]graph.Service, error) {
	if len(ctx.Options.Queues) == 0 {
		return nil, nil
	}
	root, err := ctx.PluginRoot("queue")
	if err != nil {
		return nil, err
	}
	return []graph.Service{{
		Name: "queue-root", Kind: graph.KindDisk,
		Disk: &graph.DiskService{Path: root, Writable: true},
	}}, nil
}

// SitesPlugin provisions the static-asset root as a read-only disk service.
type SitesPlugin struct{}

func (SitesPlugin) Name() string { return "sites" }
func (SitesPlugin) GetBindings(config.WorkerOptions) ([]WorkerBinding, error) { return nil, nil }
func (SitesPlugin) GetNodeBindings(config.Options) ([]NodeBinding, error)     { return nil, nil }
func (SitesPlugin) GetServices(ctx *Context) ([]graph.Service, error) {
	if ctx.Options.SitesPath == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(ctx.Options.SitesPath)
	if err != nil {
		return nil, err
	}
	return []graph.Service{{
		Name: "sites-root", Kind: graph.KindDisk,
		Disk: &graph.DiskService{Path: abs, Writable: false},
	}}, nil
}

// BindingsPlugin is composed last; it exists purely so GetBindings'
// ordering contract ("bindings last") has a concrete final stage to attach
// any cross-cutting binding synthesis to (e.g. env var/secret text
// bindings that don't belong to a storage product).
type BindingsPlugin struct{}

func (BindingsPlugin) Name() string { return "bindings" }
func (BindingsPlugin) GetBindings(worker config.WorkerOptions) ([]WorkerBinding, error) {
	var out []WorkerBinding
	for _, b := range worker.Bindings {
		if b.Kind == config.BindingJSON || b.Kind == config.BindingText || b.Kind == config.BindingData {
			out = append(out, WorkerBinding{Name: b.Name, Kind: b.Kind})
		}
	}
	return out, nil
}
func (BindingsPlugin) GetNodeBindings(config.Options) ([]NodeBinding, error) { return nil, nil }
func (BindingsPlugin) GetServices(*Context) ([]graph.Service, error)        { return nil, nil }
