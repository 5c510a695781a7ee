// Package orchestrator implements the Orchestrator & Runtime Supervisor
// (spec §4.1): validates and merges configuration, assembles a service
// graph, supervises the child runtime process over a control pipe, and
// atomically swaps configurations on reload.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/thejerf/suture/v4"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/graph"
	"github.com/localdev/hostd/internal/logging"
	"github.com/localdev/hostd/internal/metrics"
	"github.com/localdev/hostd/internal/plugins"
)

// defaultMaxSupportedCompatibilityDate stands in for the embedded runtime's
// own maximum when Params.MaxCompatibilityDate is empty; callers and tests
// override it through that field.
const defaultMaxSupportedCompatibilityDate = "2099-12-31"

// GraphBuilderFunc lets callers override how services/bindings/graph.Graph
// get produced from Options (defaults to the plugin-registry-driven path);
// exposed mainly for tests.
type GraphBuilderFunc func(opts config.Options, ctx *plugins.Context, reg *plugins.Registry) (*graph.Graph, error)

// RuntimeBinary configures how the child runtime process is launched.
type RuntimeBinary struct {
	Path string
	Args []string
}

// SocketPorts maps socket name to bound port, the return value of
// start/setOptions (spec §4.1).
type SocketPorts map[string]int

// Orchestrator is the top-level supervisor described in spec §4.1.
type Orchestrator struct {
	mu sync.Mutex

	tree       *SupervisorTree
	rootCtx    context.Context
	rootCancel context.CancelFunc

	binary          RuntimeBinary
	persistRoot     string
	maxCompatDate   string
	loopbackAddr    string
	loopbackHandler http.Handler

	registry *plugins.Registry

	current      *RuntimeProcess
	currentToken suture.ServiceToken
	loopbackTok  suture.ServiceToken
	started      bool

	epoch atomic.Int64

	breaker *gobreaker.CircuitBreaker[[]byte]
}

// Params bundles New's dependencies.
type Params struct {
	Binary               RuntimeBinary
	PersistRoot          string
	MaxCompatibilityDate string
	LoopbackAddr         string
	LoopbackHandler      http.Handler
	Registry             *plugins.Registry
	TreeConfig           TreeConfig
}

func New(p Params) *Orchestrator {
	if p.MaxCompatibilityDate == "" {
		p.MaxCompatibilityDate = defaultMaxSupportedCompatibilityDate
	}
	if p.Registry == nil {
		p.Registry = plugins.NewRegistry(
			plugins.CorePlugin{}, plugins.KVPlugin{}, plugins.R2Plugin{},
			plugins.CachePlugin{}, plugins.QueuePlugin{}, plugins.SitesPlugin{},
			plugins.BindingsPlugin{},
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		tree:            NewSupervisorTree(p.TreeConfig),
		rootCtx:         ctx,
		rootCancel:      cancel,
		binary:          p.Binary,
		persistRoot:     p.PersistRoot,
		maxCompatDate:   p.MaxCompatibilityDate,
		loopbackAddr:    p.LoopbackAddr,
		loopbackHandler: p.LoopbackHandler,
		registry:        p.Registry,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "runtime-proxy",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
	return o
}

// Breaker exposes the circuit breaker wrapping calls into the runtime's
// proxy server, so internal/proxy can fail fast on a wedged child (spec §7
// "Child-process crashes during a request").
func (o *Orchestrator) Breaker() *gobreaker.CircuitBreaker[[]byte] { return o.breaker }

// Epoch returns the current reload epoch (spec §3 "Reload epoch").
func (o *Orchestrator) Epoch() int64 { return o.epoch.Load() }

// Start implements spec §4.1's start(config) contract.
func (o *Orchestrator) Start(ctx context.Context, opts config.Options) (SocketPorts, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return nil, emuerr.New(emuerr.KindConfig, emuerr.CodeConflictingService, "orchestrator already started; use SetOptions")
	}

	rp, g, err := o.spawnForOptions(ctx, opts)
	if err != nil {
		return nil, err
	}

	watcher := &processWatcher{rp: rp}
	o.currentToken = o.tree.AddRuntimeService(watcher)

	lsvc := newLoopbackService(o.loopbackAddr, o.loopbackHandler)
	o.loopbackTok = o.tree.AddSurfaceService(lsvc)

	o.tree.ServeBackground(o.rootCtx)

	o.current = rp
	o.started = true
	_ = g

	metrics.ReloadEpoch.Set(float64(o.epoch.Load()))
	return rp.Ports(), nil
}

// SetOptions implements spec §4.1's setOptions contract: atomic from the
// caller's view — on failure the previous runtime keeps running and no
// proxy is poisoned; on success the old process is force-killed and
// proxies are poisoned (by bumping the epoch) before the new graph is
// considered live.
func (o *Orchestrator) SetOptions(ctx context.Context, opts config.Options) (SocketPorts, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	if !o.started {
		metrics.Reloads.WithLabelValues("error").Inc()
		return nil, emuerr.New(emuerr.KindConfig, emuerr.CodeConflictingService, "orchestrator not started")
	}

	newRP, _, err := o.spawnForOptions(ctx, opts)
	if err != nil {
		metrics.Reloads.WithLabelValues("error").Inc()
		return nil, err // previous runtime continues; no proxies poisoned
	}

	// Success: poison existing proxies first (bump epoch), then kill the
	// previous process, matching §2's "poisons existing proxies, kills the
	// previous runtime ... and reissues configuration" ordering.
	o.epoch.Add(1)
	metrics.ReloadEpoch.Set(float64(o.epoch.Load()))

	oldToken := o.currentToken
	if err := o.tree.RemoveAndWait(oldToken, 10*time.Second); err != nil {
		logging.Warn().Err(err).Msg("previous runtime did not stop within shutdown timeout")
	}

	o.currentToken = o.tree.AddRuntimeService(&processWatcher{rp: newRP})
	o.current = newRP

	metrics.Reloads.WithLabelValues("success").Inc()
	metrics.ReloadDuration.Observe(time.Since(start).Seconds())
	return newRP.Ports(), nil
}

// spawnForOptions validates compatibility dates, builds the service graph
// via the plugin registry, serializes it, and spawns a runtime process
// without touching any existing orchestrator state — so a failure here
// never affects whatever is currently running.
func (o *Orchestrator) spawnForOptions(ctx context.Context, opts config.Options) (*RuntimeProcess, *graph.Graph, error) {
	for i, w := range opts.Workers {
		effective, downgraded, err := config.ValidateCompatibilityDate(w.CompatibilityDate, o.maxCompatDate)
		if err != nil {
			return nil, nil, err
		}
		if downgraded {
			logging.Warn().Str("worker", w.Name).Str("requested", w.CompatibilityDate).
				Str("effective", effective).Msg("compatibility date exceeds runtime support; downgrading")
		}
		opts.Workers[i].CompatibilityDate = effective
	}

	pctx := &plugins.Context{
		PersistRoot:  o.persistRoot,
		LoopbackAddr: o.loopbackAddr,
		Options:      opts,
	}

	b := graph.NewBuilder().AddEntry("127.0.0.1:0")
	anySimulator := len(opts.KVNamespaces) > 0 || len(opts.R2Buckets) > 0 ||
		opts.CachePersist != "" || len(opts.Queues) > 0
	if anySimulator {
		b.AddLoopback(o.loopbackAddr).MarkSimulatorEnabled()
	}

	svcs, err := o.registry.RunServices(pctx)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range svcs {
		switch s.Kind {
		case graph.KindWorker:
			b.AddWorker(s.Name, *s.Worker)
		case graph.KindExternal:
			b.AddExternal(s.Name, s.External.Address, s.External.TLS)
		case graph.KindNetwork:
			b.AddNetwork(s.Name, *s.Network)
		case graph.KindDisk:
			b.AddDisk(s.Name, *s.Disk)
		}
	}

	g, err := b.Build()
	if err != nil {
		return nil, nil, err
	}

	wire, err := json.Marshal(g)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: serializing service graph: %w", err)
	}

	required := requiredSockets(g)
	rp, err := Spawn(ctx, RuntimeSpawnOptions{
		BinaryPath:      o.binary.Path,
		Args:            o.binary.Args,
		ConfigBytes:     wire,
		RequiredSockets: required,
	})
	if err != nil {
		return nil, nil, emuerr.Wrap(emuerr.KindProxy, emuerr.CodeRuntimeNotReady, err)
	}

	return rp, g, nil
}

func requiredSockets(g *graph.Graph) []string {
	var out []string
	for _, name := range g.Order {
		s := g.Services[name]
		if s.Kind == graph.KindExternal && s.External != nil && (name == graph.EntryServiceName) {
			out = append(out, name)
		}
	}
	return out
}

// Dispose force-kills the child runtime, waits for exit, and tears down the
// loopback server and supervisor tree (spec §4.1 dispose()).
func (o *Orchestrator) Dispose() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return nil
	}

	o.rootCancel()
	if o.current != nil {
		_ = o.current.Kill()
		_ = o.current.Wait()
	}
	o.started = false
	return nil
}
