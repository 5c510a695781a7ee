package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/metrics"
)

// EpochSource reports the orchestrator's current reload epoch. Stubs minted
// before a reload are poisoned once the source's epoch advances past the
// epoch they were minted under (spec §3 "Reload epoch").
type EpochSource interface {
	Epoch() int64
}

// Bridge is the host-side half of the Proxy Bridge (spec §4.6). It mints
// Stubs, routes GET/CALL operations over the sync or async transport, and
// reclaims stub addresses via Go finalizers standing in for the runtime's
// own FinalizationRegistry.
type Bridge struct {
	epochSource EpochSource
	loopbackURL string // base URL of the runtime's loopback proxy endpoint
	sync        *syncTransport
	async       *asyncTransport
	breaker     *gobreaker.CircuitBreaker[[]byte]

	nextLocalID atomic.Int64

	mu        sync.Mutex
	freeQueue map[int64][]int64 // epoch -> pending addresses to FREE
}

// NewBridge constructs a Bridge. breaker may be nil, in which case sync
// calls are issued without circuit-breaking (tests, or a caller that wraps
// the bridge's own retry policy instead).
func NewBridge(epochSource EpochSource, loopbackURL string, client *http.Client, breaker *gobreaker.CircuitBreaker[[]byte]) *Bridge {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Bridge{
		epochSource: epochSource,
		loopbackURL: loopbackURL,
		sync:        newSyncTransport(client),
		async:       newAsyncTransport(client),
		breaker:     breaker,
		freeQueue:   make(map[int64][]int64),
	}
}

// Close stops the dedicated sync-transport goroutine.
func (b *Bridge) Close() { b.sync.close() }

// NewStub mints a stub bound to the bridge's current epoch and registers a
// finalizer that issues FREE when the stub becomes unreachable (spec §4.6
// "FREE": "sent when the handle's finalizer runs, i.e. when the proxy
// object is garbage collected host-side").
func (b *Bridge) NewStub(addr int64, name string) *Stub {
	epoch := b.epochSource.Epoch()
	s := &Stub{
		addr:   addr,
		name:   name,
		epoch:  epoch,
		bridge: b,
		known:  make(map[string]bool),
	}
	runtime.SetFinalizer(s, func(s *Stub) {
		s.bridge.free(s.addr, s.epoch)
	})
	return s
}

// poisoned reports whether a stub minted under epoch e is no longer valid
// because the orchestrator has since reloaded (spec §3).
func (b *Bridge) poisoned(mintEpoch int64) bool {
	return mintEpoch < b.epochSource.Epoch()
}

// free enqueues a FREE for addr if its epoch is still current; FREEs for a
// prior epoch are dropped outright since the runtime's heap backing them no
// longer exists (spec §3 "pending FREEs for the prior epoch are cancelled").
func (b *Bridge) free(addr, mintEpoch int64) {
	if b.poisoned(mintEpoch) {
		return
	}
	req := OpRequest{Op: OpFree, Addr: addr, Epoch: mintEpoch, Sync: false}
	_, _ = b.roundTrip(context.Background(), req, false)
}

// Get performs a synchronous property access (spec §4.6 "property access
// algorithm"): symbols and thenable-probe keys are rejected by the caller
// before reaching here; this issues the GET and parses the result type.
func (s *Stub) Get(ctx context.Context, key string) (Value, error) {
	if s.bridge.poisoned(s.epoch) {
		return Value{}, emuerr.New(emuerr.KindProxy, emuerr.CodeStubPoisoned, "stub poisoned by reload")
	}
	if known, ok := s.cachedAbsent(key); ok && known {
		return Value{}, nil // known-absent property short-circuits the round trip
	}

	req := OpRequest{Op: OpGet, Addr: s.addr, Name: s.name, Epoch: s.epoch, Key: key, Sync: true}
	resp, err := s.bridge.roundTrip(ctx, req, true)
	if err != nil {
		return Value{}, err
	}
	s.cacheProperty(key, resp.Value.Kind != "" || resp.ResultType != "")
	return s.parseResult(ctx, resp)
}

// Call performs a method invocation (spec §4.6 "method-call algorithm").
// fetch and writeHttpMetadata are special-cased by callers that need
// streaming bodies; this handles the general JSON-args case.
func (s *Stub) Call(ctx context.Context, method string, args []Value, forceAsync bool) (Value, error) {
	if s.bridge.poisoned(s.epoch) {
		return Value{}, emuerr.New(emuerr.KindProxy, emuerr.CodeStubPoisoned, "stub poisoned by reload")
	}

	sync := !forceAsync
	req := OpRequest{Op: OpCall, Addr: s.addr, Name: s.name, Epoch: s.epoch, Method: method, Args: args, Sync: sync}
	resp, err := s.bridge.roundTrip(ctx, req, sync)
	if err != nil {
		return Value{}, err
	}
	return s.parseResult(ctx, resp)
}

// parseResult implements the branch on result type from spec §4.6 step 5:
// a Promise is resolved with one additional async GET; a ReadableStream
// marker is left for the caller to pull via the stream registry; a Function
// is turned into a synthesized Method value so later calls on it route back
// through this same stub.
func (s *Stub) parseResult(ctx context.Context, resp *OpResponse) (Value, error) {
	switch resp.ResultType {
	case ResultFunction:
		return Method(s.addr, resp.Value.MethodName), nil
	case ResultPromise:
		followUp := OpRequest{Op: OpGet, Addr: s.addr, Name: s.name, Epoch: s.epoch, Key: "__resolve__", Sync: false}
		resolved, err := s.bridge.roundTrip(ctx, followUp, false)
		if err != nil {
			return Value{}, err
		}
		return resolved.Value, nil
	default:
		if resp.ErrorStack != "" {
			return Value{}, emuerr.New(emuerr.KindProxy, emuerr.CodeUserThrown, resp.ErrorStack)
		}
		return resp.Value, nil
	}
}

func (b *Bridge) roundTrip(ctx context.Context, req OpRequest, sync bool) (*OpResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("proxy: encoding op request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.loopbackURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("proxy: building op request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	doFn := func() (*http.Response, error) {
		if sync {
			return b.sync.Do(httpReq)
		}
		return b.async.Do(httpReq)
	}

	transport := "async"
	if sync {
		transport = "sync"
	}

	var httpResp *http.Response
	if b.breaker != nil && sync {
		var bodyBytes []byte
		bodyBytes, err = b.breaker.Execute(func() ([]byte, error) {
			resp, doErr := doFn()
			if doErr != nil {
				return nil, doErr
			}
			defer resp.Body.Close()
			return io.ReadAll(resp.Body)
		})
		metrics.ProxyOpDuration.WithLabelValues(string(req.Op), transport).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ProxyOpErrors.WithLabelValues(string(req.Op), "transport").Inc()
			return nil, emuerr.Wrap(emuerr.KindProxy, emuerr.CodeRuntimeNotReady, err)
		}
		var out OpResponse
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			return nil, fmt.Errorf("proxy: decoding op response: %w", err)
		}
		return &out, nil
	}

	httpResp, err = doFn()
	metrics.ProxyOpDuration.WithLabelValues(string(req.Op), transport).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProxyOpErrors.WithLabelValues(string(req.Op), "transport").Inc()
		return nil, emuerr.Wrap(emuerr.KindProxy, emuerr.CodeRuntimeNotReady, err)
	}
	defer httpResp.Body.Close()

	var out OpResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("proxy: decoding op response: %w", err)
	}
	return &out, nil
}
