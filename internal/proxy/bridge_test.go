package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEpoch struct{ v atomic.Int64 }

func (f *fakeEpoch) Epoch() int64 { return f.v.Load() }
func (f *fakeEpoch) bump()        { f.v.Add(1) }

func newTestServer(t *testing.T, handle func(OpRequest) OpResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := handle(req)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStubGetReturnsPlainValue(t *testing.T) {
	srv := newTestServer(t, func(req OpRequest) OpResponse {
		assert.Equal(t, OpGet, req.Op)
		assert.Equal(t, "size", req.Key)
		return OpResponse{ResultType: ResultPlain, Value: Prim(float64(42))}
	})

	epoch := &fakeEpoch{}
	b := NewBridge(epoch, srv.URL, srv.Client(), nil)
	defer b.Close()

	stub := b.NewStub(1, "MyObject")
	v, err := stub.Get(context.Background(), "size")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v.Primitive)
}

func TestStubGetOnPoisonedEpochFails(t *testing.T) {
	srv := newTestServer(t, func(req OpRequest) OpResponse {
		t.Fatal("should not reach the runtime for a poisoned stub")
		return OpResponse{}
	})

	epoch := &fakeEpoch{}
	b := NewBridge(epoch, srv.URL, srv.Client(), nil)
	defer b.Close()

	stub := b.NewStub(1, "MyObject")
	epoch.bump() // reload happens after the stub was minted

	_, err := stub.Get(context.Background(), "size")
	require.Error(t, err)
}

func TestStubCallResolvesPromise(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(req OpRequest) OpResponse {
		calls++
		if req.Op == OpCall {
			return OpResponse{ResultType: ResultPromise}
		}
		return OpResponse{ResultType: ResultPlain, Value: Prim("resolved")}
	})

	epoch := &fakeEpoch{}
	b := NewBridge(epoch, srv.URL, srv.Client(), nil)
	defer b.Close()

	stub := b.NewStub(2, "Fetcher")
	v, err := stub.Call(context.Background(), "text", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "resolved", v.Primitive)
	assert.Equal(t, 2, calls) // one CALL + one follow-up GET
}

func TestStubCallSurfacesUserThrownError(t *testing.T) {
	srv := newTestServer(t, func(req OpRequest) OpResponse {
		return OpResponse{ResultType: ResultPlain, ErrorStack: "TypeError: boom"}
	})

	epoch := &fakeEpoch{}
	b := NewBridge(epoch, srv.URL, srv.Client(), nil)
	defer b.Close()

	stub := b.NewStub(3, "Widget")
	_, err := stub.Call(context.Background(), "explode", nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestIsLocallyRejectedSkipsThenProbe(t *testing.T) {
	assert.True(t, IsLocallyRejected("then"))
	assert.False(t, IsLocallyRejected("size"))
}

func TestStubGetCachesKnownAbsentProperty(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(req OpRequest) OpResponse {
		calls++
		return OpResponse{ResultType: ""} // empty result type => treated as absent
	})

	epoch := &fakeEpoch{}
	b := NewBridge(epoch, srv.URL, srv.Client(), nil)
	defer b.Close()

	stub := b.NewStub(4, "Widget")
	_, err := stub.Get(context.Background(), "missing")
	require.NoError(t, err)
	_, err = stub.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, calls) // second call short-circuits via the known-properties cache
}
