package orchestrator

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/localdev/hostd/internal/logging"
)

// TreeConfig holds supervisor tree configuration, mirroring the teacher's
// suture.Spec defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// SupervisorTree manages the host-side supervision hierarchy: a runtime
// layer (the single child-runtime-process service) and a surface layer
// (the loopback HTTP server). Two layers instead of the teacher's three
// because distributed coordination across more service kinds is a non-goal
// here (spec §1).
type SupervisorTree struct {
	root    *suture.Supervisor
	runtime *suture.Supervisor
	surface *suture.Supervisor
	config  TreeConfig
}

func NewSupervisorTree(config TreeConfig) *SupervisorTree {
	if config.FailureThreshold == 0 {
		config = DefaultTreeConfig()
	}

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("hostd", rootSpec)
	runtimeSup := suture.New("runtime-layer", childSpec)
	surfaceSup := suture.New("surface-layer", childSpec)
	root.Add(runtimeSup)
	root.Add(surfaceSup)

	return &SupervisorTree{root: root, runtime: runtimeSup, surface: surfaceSup, config: config}
}

func (t *SupervisorTree) AddRuntimeService(svc suture.Service) suture.ServiceToken {
	return t.runtime.Add(svc)
}

func (t *SupervisorTree) AddSurfaceService(svc suture.Service) suture.ServiceToken {
	return t.surface.Add(svc)
}

func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

func (t *SupervisorTree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	return t.root.RemoveAndWait(token, timeout)
}

func (t *SupervisorTree) Remove(token suture.ServiceToken) error {
	return t.root.Remove(token)
}
