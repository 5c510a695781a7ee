package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/storage/blobstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	blobs, err := blobstore.Open(blobstore.Config{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })
	return New(blobs, "")
}

func TestPutMatchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hdr := http.Header{"Content-Type": {"text/plain"}}
	stored, err := s.Put(ctx, "https://example.com/a", 200, hdr, []byte("hi"))
	require.NoError(t, err)
	assert.True(t, stored)

	m, err := s.Match(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, 200, m.StatusCode)
	assert.Equal(t, "hi", string(m.Body))
}

func TestPutNoStoreSkipsStorage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hdr := http.Header{"Cache-Control": {"no-store"}}
	stored, err := s.Put(ctx, "k", 200, hdr, []byte("hi"))
	require.NoError(t, err)
	assert.False(t, stored)

	_, err = s.Match(ctx, "k")
	require.Error(t, err)
}

func TestPutStripsChunkedTransferEncoding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hdr := http.Header{"Transfer-Encoding": {"chunked"}}
	_, err := s.Put(ctx, "k", 200, hdr, []byte("hi"))
	require.NoError(t, err)

	m, err := s.Match(ctx, "k")
	require.NoError(t, err)
	_, hasTE := m.Header["Transfer-Encoding"]
	assert.False(t, hasTE)
}

func TestPutEnforcesMinimumTTL(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	hdr := http.Header{"Cache-Control": {"max-age=1"}}
	_, err := s.Put(ctx, "k", 200, hdr, []byte("hi"))
	require.NoError(t, err)

	s.now = func() time.Time { return fixed.Add(30 * time.Second) }
	_, err = s.Match(ctx, "k")
	require.NoError(t, err) // 30s < enforced 60s minimum, still live

	s.now = func() time.Time { return fixed.Add(90 * time.Second) }
	_, err = s.Match(ctx, "k")
	require.Error(t, err)
}

func TestPutEnforcesMaximumTTL(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	hdr := http.Header{"Cache-Control": {"max-age=999999999"}}
	_, err := s.Put(ctx, "k", 200, hdr, []byte("hi"))
	require.NoError(t, err)

	s.now = func() time.Time { return fixed.Add(time.Duration(config.MaxCacheTTLSeconds-1) * time.Second) }
	_, err = s.Match(ctx, "k")
	require.NoError(t, err) // still within the enforced maximum

	s.now = func() time.Time { return fixed.Add(time.Duration(config.MaxCacheTTLSeconds+1) * time.Second) }
	_, err = s.Match(ctx, "k")
	require.Error(t, err) // clamped down to the maximum, so this is expired
}

func TestDeleteIsExact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Put(ctx, "k", 200, http.Header{}, []byte("hi"))
	require.NoError(t, err)

	existed, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = s.Match(ctx, "k")
	require.Error(t, err)
}

func TestPartitionsAreIsolated(t *testing.T) {
	blobs, err := blobstore.Open(blobstore.Config{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	a := New(blobs, "a")
	b := New(blobs, "b")
	ctx := context.Background()

	_, err = a.Put(ctx, "k", 200, http.Header{}, []byte("in-a"))
	require.NoError(t, err)

	_, err = b.Match(ctx, "k")
	require.Error(t, err)
}
