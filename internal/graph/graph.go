// Package graph assembles the declarative service graph described in spec
// §3/§4.1: an ordered collection of named services, each exactly one of
// worker, external, network, or disk, guaranteeing unique names, a present
// entry socket, resolvable references, and a loopback external whenever any
// storage simulator is enabled.
package graph

import (
	"fmt"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/emuerr"
)

// Kind enumerates the four service variants (spec §3).
type Kind string

const (
	KindWorker   Kind = "worker"
	KindExternal Kind = "external"
	KindNetwork  Kind = "network"
	KindDisk     Kind = "disk"
)

// EntryServiceName and LoopbackServiceName are the two services the graph
// guarantees are always present.
const (
	EntryServiceName    = "entry"
	LoopbackServiceName = "loopback"
)

// Service is one node of the graph.
type Service struct {
	Name string
	Kind Kind

	// Worker fields.
	Worker *WorkerService
	// External fields.
	External *ExternalService
	// Network fields.
	Network *NetworkService
	// Disk fields.
	Disk *DiskService
}

// WorkerService is code + compatibility date/flags + modules + bindings +
// durable-object classes + storage kind.
type WorkerService struct {
	CompatibilityDate  string
	CompatibilityFlags []string
	ModulesRoot        string
	Bindings           []config.Binding
	DurableObjectClasses []string
	UniqueKey          string
}

// ExternalService is an address + transport options.
type ExternalService struct {
	Address string
	TLS     bool
}

// NetworkService is allow/deny CIDR lists + TLS trust.
type NetworkService struct {
	AllowCIDR []string
	DenyCIDR  []string
	TrustTLS  bool
}

// DiskService is an absolute path + writable flag.
type DiskService struct {
	Path     string
	Writable bool
}

// Graph is the assembled, validated service graph.
type Graph struct {
	// Order preserves insertion order for deterministic serialization.
	Order    []string
	Services map[string]Service
}

// Get returns the named service and whether it exists.
func (g *Graph) Get(name string) (Service, bool) {
	s, ok := g.Services[name]
	return s, ok
}

// Builder assembles a Graph from merged Options plus whatever storage
// simulators are active (determined by the plugin scaffold, spec §4.2).
type Builder struct {
	services []Service
	anySimulatorEnabled bool
}

func NewBuilder() *Builder {
	return &Builder{}
}

// AddEntry registers the entry socket service (always present by contract).
func (b *Builder) AddEntry(address string) *Builder {
	b.services = append(b.services, Service{
		Name: EntryServiceName,
		Kind: KindExternal,
		External: &ExternalService{Address: address},
	})
	return b
}

// AddWorker registers one worker service.
func (b *Builder) AddWorker(name string, w WorkerService) *Builder {
	b.services = append(b.services, Service{Name: name, Kind: KindWorker, Worker: &w})
	return b
}

// AddExternal registers an external service (e.g. a simulator's HTTP
// surface, or a service binding target).
func (b *Builder) AddExternal(name, address string, tls bool) *Builder {
	b.services = append(b.services, Service{
		Name: name, Kind: KindExternal,
		External: &ExternalService{Address: address, TLS: tls},
	})
	return b
}

// AddNetwork registers a network service.
func (b *Builder) AddNetwork(name string, n NetworkService) *Builder {
	b.services = append(b.services, Service{Name: name, Kind: KindNetwork, Network: &n})
	return b
}

// AddDisk registers a disk service (e.g. a site-assets root).
func (b *Builder) AddDisk(name string, d DiskService) *Builder {
	b.services = append(b.services, Service{Name: name, Kind: KindDisk, Disk: &d})
	return b
}

// MarkSimulatorEnabled records that at least one storage simulator is
// active, which makes the loopback external mandatory.
func (b *Builder) MarkSimulatorEnabled() *Builder {
	b.anySimulatorEnabled = true
	return b
}

// AddLoopback registers the loopback external service pointing at the
// host's own HTTP listener (spec GLOSSARY "Loopback service").
func (b *Builder) AddLoopback(address string) *Builder {
	b.services = append(b.services, Service{
		Name: LoopbackServiceName,
		Kind: KindExternal,
		External: &ExternalService{Address: address},
	})
	return b
}

// Build validates the invariants from spec §3 and returns the assembled
// Graph, or an *emuerr.Error describing the first violation found.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{Services: make(map[string]Service, len(b.services))}

	seen := make(map[string]bool, len(b.services))
	for _, s := range b.services {
		if seen[s.Name] {
			return nil, emuerr.New(emuerr.KindConfig, emuerr.CodeConflictingService,
				fmt.Sprintf("duplicate service name %q", s.Name))
		}
		seen[s.Name] = true
		g.Order = append(g.Order, s.Name)
		g.Services[s.Name] = s
	}

	if _, ok := g.Services[EntryServiceName]; !ok {
		return nil, emuerr.New(emuerr.KindConfig, emuerr.CodeConflictingService, "entry socket service is missing")
	}

	if b.anySimulatorEnabled {
		if _, ok := g.Services[LoopbackServiceName]; !ok {
			return nil, emuerr.New(emuerr.KindConfig, emuerr.CodeConflictingService,
				"loopback external service must be present when any simulator is enabled")
		}
	}

	if err := validateReferences(g); err != nil {
		return nil, err
	}

	return g, nil
}

// validateReferences ensures every worker's service-reference binding names
// a service that exists in the graph. Queue dead-letter targets are not
// checked here.
func validateReferences(g *Graph) error {
	for _, name := range g.Order {
		svc := g.Services[name]
		if svc.Kind != KindWorker || svc.Worker == nil {
			continue
		}
		for _, binding := range svc.Worker.Bindings {
			if binding.Kind == config.BindingService {
				if _, ok := g.Services[binding.ServiceName]; !ok {
					return emuerr.New(emuerr.KindConfig, emuerr.CodeConflictingService,
						fmt.Sprintf("worker %q binding %q references unknown service %q", name, binding.Name, binding.ServiceName))
				}
			}
		}
	}
	return nil
}
