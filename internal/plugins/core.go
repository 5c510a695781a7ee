package plugins

import (
	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/graph"
)

// CorePlugin contributes the worker services themselves — every other
// plugin only contributes bindings/services *around* the workers. Composed
// first per Order().
type CorePlugin struct{}

func (CorePlugin) Name() string { return "core" }

func (CorePlugin) GetBindings(worker config.WorkerOptions) ([]WorkerBinding, error) {
	var out []WorkerBinding
	for _, b := range worker.Bindings {
		out = append(out, WorkerBinding{Name: b.Name, Kind: b.Kind, Ref: refFor(b)})
	}
	return out, nil
}

func refFor(b config.Binding) string {
	switch b.Kind {
	case config.BindingService:
		return b.ServiceName
	case config.BindingKVNamespace, config.BindingR2Bucket, config.BindingD1Database, config.BindingQueue:
		return b.NamespaceRef
	case config.BindingDurableObject:
		return b.ClassName
	default:
		return ""
	}
}

func (CorePlugin) GetNodeBindings(opts config.Options) ([]NodeBinding, error) {
	return nil, nil
}

func (CorePlugin) GetServices(ctx *Context) ([]graph.Service, error) {
	var out []graph.Service
	for _, w := range ctx.Options.Workers {
		out = append(out, graph.Service{
			Name: w.Name,
			Kind: graph.KindWorker,
			Worker: &graph.WorkerService{
				CompatibilityDate:    w.CompatibilityDate,
				CompatibilityFlags:   w.CompatibilityFlags,
				ModulesRoot:          w.ModulesRoot,
				Bindings:             w.Bindings,
				DurableObjectClasses: w.DurableObjectClasses,
				UniqueKey:            w.UniqueKey,
			},
		})
	}
	return out, nil
}
