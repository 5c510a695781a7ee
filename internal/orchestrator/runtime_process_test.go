package orchestrator

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test; it's executed as a subprocess by
// Spawn-exercising tests below, following the standard library's
// self-exec-test pattern (see os/exec's own tests). It echoes its
// handshake token back over the control pipe before reporting its listen
// event, the same protocol a real child runtime must follow.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("HOSTD_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	control := os.NewFile(3, "control")
	if control == nil {
		os.Exit(1)
	}
	buf := make([]byte, 4096)
	_, _ = os.Stdin.Read(buf) // drain the config bytes

	fmt.Fprintln(os.Stdout, "runtime starting")
	fmt.Fprintf(control, "{\"event\":\"handshake\",\"token\":%q}\n", os.Getenv(controlTokenEnv))
	fmt.Fprintln(control, `{"event":"listen","socket":"entry","port":12345}`)
}

// TestHelperProcessNoHandshake is the same harness but skips the handshake
// entirely, for exercising Spawn's rejection of a process that goes
// straight to reporting a listen event.
func TestHelperProcessNoHandshake(t *testing.T) {
	if os.Getenv("HOSTD_WANT_HELPER_PROCESS_NO_HANDSHAKE") != "1" {
		return
	}
	defer os.Exit(0)

	control := os.NewFile(3, "control")
	if control == nil {
		os.Exit(1)
	}
	buf := make([]byte, 4096)
	_, _ = os.Stdin.Read(buf)

	fmt.Fprintln(control, `{"event":"listen","socket":"entry","port":12345}`)
}

func helperCommandArgs() (string, []string) {
	return os.Args[0], []string{"-test.run=^TestHelperProcess$"}
}

func helperCommandArgsNoHandshake() (string, []string) {
	return os.Args[0], []string{"-test.run=^TestHelperProcessNoHandshake$"}
}

func TestSpawnAwaitsRequiredListenEvent(t *testing.T) {
	if os.Getenv("HOSTD_RUN_EXEC_TESTS") != "1" {
		t.Skip("set HOSTD_RUN_EXEC_TESTS=1 to run subprocess-based orchestrator tests")
	}

	path, args := helperCommandArgs()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rp, err := Spawn(ctx, RuntimeSpawnOptions{
		BinaryPath:      path,
		Args:            args,
		Env:             []string{"HOSTD_WANT_HELPER_PROCESS=1"},
		ConfigBytes:     []byte(`{}`),
		RequiredSockets: []string{"entry"},
	})
	require.NoError(t, err)
	defer func() { _ = rp.Kill() }()

	ports := rp.Ports()
	assert.Equal(t, 12345, ports["entry"])
}

func TestSpawnRejectsProcessThatSkipsHandshake(t *testing.T) {
	if os.Getenv("HOSTD_RUN_EXEC_TESTS") != "1" {
		t.Skip("set HOSTD_RUN_EXEC_TESTS=1 to run subprocess-based orchestrator tests")
	}

	path, args := helperCommandArgsNoHandshake()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Spawn(ctx, RuntimeSpawnOptions{
		BinaryPath:      path,
		Args:            args,
		Env:             []string{"HOSTD_WANT_HELPER_PROCESS_NO_HANDSHAKE=1"},
		ConfigBytes:     []byte(`{}`),
		RequiredSockets: []string{"entry"},
	})
	require.Error(t, err)
}
