package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/localdev/hostd/internal/logging"
	"github.com/localdev/hostd/internal/metrics"
)

// RuntimeSpawnOptions configures one child-runtime process launch.
type RuntimeSpawnOptions struct {
	// BinaryPath is the embedded runtime binary. Out of scope per spec §1;
	// treated as an opaque external collaborator.
	BinaryPath string
	Args       []string
	// Env, if non-nil, is appended to the spawned process's environment
	// (inherited from the host process by default).
	Env []string

	// ConfigBytes is the binary-serialised service graph delivered on
	// stdin. Its encoding is produced by an external serializer and is
	// opaque to this package (spec §6).
	ConfigBytes []byte

	// RequiredSockets lists the socket names start/setOptions must see a
	// `listen` event for before returning (spec §4.1).
	RequiredSockets []string

	// WantInspector, if true, also waits for a listen-inspector event.
	WantInspector bool
}

// RuntimeProcess supervises one spawned child runtime: its stdin pipe, the
// dedicated control-pipe file descriptor, and line-by-line stdout/stderr
// forwarding to the host logger (spec §4.1).
type RuntimeProcess struct {
	cmd        *exec.Cmd
	controlR   *os.File
	controlW   *os.File // child's end, closed in the parent after spawn
	exited     chan error
	mu         sync.Mutex
	ports      map[string]int
	inspector  int
}

// Spawn starts the child runtime process and blocks until every required
// socket (and the inspector, if requested) has reported a listen event, or
// ctx is canceled/timed out.
func Spawn(ctx context.Context, opts RuntimeSpawnOptions) (*RuntimeProcess, error) {
	controlR, controlW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: creating control pipe: %w", err)
	}

	secret, err := newHandshakeSecret()
	if err != nil {
		return nil, err
	}
	token, err := signHandshakeToken(secret)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: signing handshake token: %w", err)
	}

	cmd := exec.CommandContext(ctx, opts.BinaryPath, opts.Args...)
	cmd.ExtraFiles = []*os.File{controlW} // fd 3 in the child
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Env = append(cmd.Env, controlTokenEnv+"="+token)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("orchestrator: starting runtime: %w", err)
	}
	// The parent doesn't read from its own copy of the write end; only the
	// child does.
	_ = controlW.Close()

	if _, err := stdin.Write(opts.ConfigBytes); err != nil {
		return nil, fmt.Errorf("orchestrator: writing config to stdin: %w", err)
	}
	_ = stdin.Close()

	rp := &RuntimeProcess{
		cmd:      cmd,
		controlR: controlR,
		exited:   make(chan error, 1),
		ports:    make(map[string]int),
	}

	go rp.pipeLines("stdout", stdout)
	go rp.pipeLines("stderr", stderr)
	go rp.waitForExit()

	if err := rp.awaitListen(ctx, opts.RequiredSockets, opts.WantInspector, secret); err != nil {
		_ = rp.Kill()
		return nil, err
	}

	return rp, nil
}

func (rp *RuntimeProcess) pipeLines(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		logging.ChildLine(stream, scanner.Text())
	}
}

func (rp *RuntimeProcess) waitForExit() {
	err := rp.cmd.Wait()
	rp.exited <- err
	close(rp.exited)
}

// awaitListen reads newline-framed JSON control messages until every
// required socket (and optionally the inspector) has reported its port.
// The very first accepted message must be a handshake event bearing a
// token signed with secret; any other event arriving first, or a handshake
// that fails verification, aborts the spawn (spec §4.1, §6).
func (rp *RuntimeProcess) awaitListen(ctx context.Context, required []string, wantInspector bool, secret []byte) error {
	start := time.Now()
	need := make(map[string]bool, len(required))
	for _, s := range required {
		need[s] = true
	}

	lineCh := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(rp.controlR)
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		}
		close(lineCh)
	}()

	handshaken := false
	for !handshaken || len(need) > 0 || (wantInspector && rp.inspector == 0) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return fmt.Errorf("orchestrator: reading control pipe: %w", err)
		case line, ok := <-lineCh:
			if !ok {
				return fmt.Errorf("orchestrator: control pipe closed before all listen events arrived")
			}
			var ev ControlEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				continue // malformed control line; not fatal, keep waiting
			}

			if !handshaken {
				if ev.Event != EventHandshake {
					return fmt.Errorf("orchestrator: expected handshake as first control message, got %q", ev.Event)
				}
				if err := verifyHandshakeToken(ev.Token, secret); err != nil {
					return fmt.Errorf("orchestrator: control pipe handshake failed: %w", err)
				}
				handshaken = true
				continue
			}

			switch ev.Event {
			case EventListen:
				rp.mu.Lock()
				rp.ports[ev.Socket] = ev.Port
				rp.mu.Unlock()
				delete(need, ev.Socket)
			case EventListenInspector:
				rp.inspector = ev.Port
			}
		}
	}

	metrics.ControlPipeRoundTrip.WithLabelValues(EventListen).Observe(time.Since(start).Seconds())
	return nil
}

// Ports returns the bound port for each reported socket.
func (rp *RuntimeProcess) Ports() map[string]int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	out := make(map[string]int, len(rp.ports))
	for k, v := range rp.ports {
		out[k] = v
	}
	return out
}

// InspectorPort returns the inspector port, or 0 if none was requested/reported.
func (rp *RuntimeProcess) InspectorPort() int { return rp.inspector }

// Kill sends the immediate-terminate signal rather than the gentle one,
// because the gentle signal would wait for open connections to drain
// (spec §4.1).
func (rp *RuntimeProcess) Kill() error {
	if rp.cmd.Process == nil {
		return nil
	}
	return rp.cmd.Process.Kill()
}

// Wait blocks until the process has exited and returns its exit error, if
// any.
func (rp *RuntimeProcess) Wait() error {
	return <-rp.exited
}

// Exited reports whether the process has already exited, non-blocking.
func (rp *RuntimeProcess) Exited() bool {
	select {
	case <-rp.exited:
		return true
	default:
		return false
	}
}
