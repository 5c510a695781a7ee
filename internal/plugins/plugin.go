// Package plugins implements the plugin scaffold (spec §4.2): each plugin
// declares an option schema, a shared-option schema, getBindings,
// getNodeBindings, and getServices, composed in a fixed order — core first,
// storage middle, bindings last.
package plugins

import (
	"os"
	"path/filepath"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/graph"
)

// Context carries the shared state every plugin needs to do its disk
// preparation and service registration.
type Context struct {
	PersistRoot   string // base directory under which each plugin gets <persist>/<plugin>/
	LoopbackAddr  string
	Options       config.Options
}

// PluginRoot returns <persist>/<name>, creating it if necessary. It does
// not migrate legacy on-disk layouts.
func (c *Context) PluginRoot(name string) (string, error) {
	root := filepath.Join(c.PersistRoot, name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	return root, nil
}

// WorkerBinding is a binding exposed to user code's `env` (spec GLOSSARY
// "Binding").
type WorkerBinding struct {
	Name string
	Kind config.BindingKind
	// Ref is the service or namespace name this binding resolves to, for
	// kinds that need one.
	Ref string
}

// NodeBinding is a host-side placeholder that the bridge swaps for a proxy
// once the runtime is up (spec §4.2 getNodeBindings).
type NodeBinding struct {
	Name string
	Kind config.BindingKind
	Ref  string
}

// Plugin is the composition unit described in spec §4.2.
type Plugin interface {
	Name() string
	GetBindings(worker config.WorkerOptions) ([]WorkerBinding, error)
	GetNodeBindings(opts config.Options) ([]NodeBinding, error)
	GetServices(ctx *Context) ([]graph.Service, error)
}

// Order is the fixed composition order: core first, storage middle,
// bindings last.
func Order() []string {
	return []string{"core", "kv", "r2", "cache", "queue", "sites", "bindings"}
}

// Registry composes a fixed set of plugins and runs them in Order.
type Registry struct {
	byName map[string]Plugin
}

func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{byName: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		r.byName[p.Name()] = p
	}
	return r
}

// Ordered returns the registered plugins in composition order, skipping any
// name in Order() that wasn't registered.
func (r *Registry) Ordered() []Plugin {
	var out []Plugin
	for _, name := range Order() {
		if p, ok := r.byName[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// RunServices invokes GetServices on every registered plugin in order and
// concatenates the results, matching §4.2's "getServices(ctx) producing
// service definitions and performing any disk preparation".
func (r *Registry) RunServices(ctx *Context) ([]graph.Service, error) {
	var all []graph.Service
	for _, p := range r.Ordered() {
		svcs, err := p.GetServices(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, svcs...)
	}
	return all, nil
}

// RunBindings invokes GetBindings for a single worker across every plugin.
func (r *Registry) RunBindings(worker config.WorkerOptions) ([]WorkerBinding, error) {
	var all []WorkerBinding
	for _, p := range r.Ordered() {
		bs, err := p.GetBindings(worker)
		if err != nil {
			return nil, err
		}
		all = append(all, bs...)
	}
	return all, nil
}

// RunNodeBindings invokes GetNodeBindings across every plugin for the
// top-level options (host-side placeholders, spec §4.2).
func (r *Registry) RunNodeBindings(opts config.Options) ([]NodeBinding, error) {
	var all []NodeBinding
	for _, p := range r.Ordered() {
		bs, err := p.GetNodeBindings(opts)
		if err != nil {
			return nil, err
		}
		all = append(all, bs...)
	}
	return all, nil
}
