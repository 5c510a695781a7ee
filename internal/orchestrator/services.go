package orchestrator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/thejerf/suture/v4"
)

// processWatcher is a thin suture.Service that ties a RuntimeProcess's
// lifecycle to the supervisor tree: on context cancellation it issues the
// immediate-terminate kill; on an unexpected process exit it surfaces the
// error so the tree's event hook logs it (spec §4.1's "Crashes of the child
// after start surface as errors").
type processWatcher struct {
	rp *RuntimeProcess
}

func (w *processWatcher) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- w.rp.Wait() }()

	select {
	case <-ctx.Done():
		_ = w.rp.Kill()
		<-done
		return nil
	case err := <-done:
		if err != nil {
			return fmt.Errorf("orchestrator: runtime process exited unexpectedly: %w", err)
		}
		// A clean exit (code 0) without the orchestrator having canceled
		// the context means the child quit on its own; do not let suture
		// spin-restart a watcher with no way to respawn (respawning with
		// fresh config bytes happens via Orchestrator.SetOptions, not
		// suture's own restart loop).
		return suture.ErrDoNotRestart
	}
}

// loopbackService runs the host's loopback HTTP server (spec GLOSSARY
// "Loopback service") under supervision so it restarts automatically if it
// ever panics/exits, mirroring the teacher's api-layer supervisor.
type loopbackService struct {
	srv *http.Server
}

func newLoopbackService(addr string, handler http.Handler) *loopbackService {
	return &loopbackService{srv: &http.Server{Addr: addr, Handler: handler}}
}

func (s *loopbackService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		_ = s.srv.Shutdown(context.Background())
		return nil
	case err := <-errCh:
		return err
	}
}
