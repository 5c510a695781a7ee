package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/storage/blobstore"
)

func newTestNamespace(t *testing.T) *Namespace {
	t.Helper()
	store, err := blobstore.Open(blobstore.Config{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestPutGetRoundTrip(t *testing.T) {
	ns := newTestNamespace(t)
	ctx := context.Background()

	require.NoError(t, ns.Put(ctx, "greeting", []byte("hello"), PutOptions{Metadata: map[string]string{"lang": "en"}}))

	v, err := ns.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(v.Bytes))
	assert.Equal(t, "en", v.Metadata["lang"])
}

func TestGetMissingKeyReturnsNoSuchKey(t *testing.T) {
	ns := newTestNamespace(t)
	_, err := ns.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestPutRejectsOversizedValue(t *testing.T) {
	ns := newTestNamespace(t)
	big := make([]byte, 25*1024*1024+1)
	err := ns.Put(context.Background(), "k", big, PutOptions{})
	require.Error(t, err)
}

func TestPutRejectsTTLBelowMinimum(t *testing.T) {
	ns := newTestNamespace(t)
	err := ns.Put(context.Background(), "k", []byte("v"), PutOptions{ExpirationTTLSeconds: 10})
	require.Error(t, err)
}

func TestExpiredKeyInvisibleToGet(t *testing.T) {
	ns := newTestNamespace(t)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ns.now = func() time.Time { return fixed }

	require.NoError(t, ns.Put(context.Background(), "k", []byte("v"), PutOptions{ExpirationTTLSeconds: 60}))

	ns.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	_, err := ns.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestDeleteRemovesKey(t *testing.T) {
	ns := newTestNamespace(t)
	ctx := context.Background()
	require.NoError(t, ns.Put(ctx, "k", []byte("v"), PutOptions{}))
	require.NoError(t, ns.Delete(ctx, "k"))
	_, err := ns.Get(ctx, "k")
	require.Error(t, err)
}

func TestListPaginatesLexicographically(t *testing.T) {
	ns := newTestNamespace(t)
	ctx := context.Background()
	for _, k := range []string{"b", "a", "c", "d"} {
		require.NoError(t, ns.Put(ctx, k, []byte("v"), PutOptions{}))
	}

	page1, err := ns.List(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, page1.Keys, 2)
	assert.Equal(t, "a", page1.Keys[0].Name)
	assert.Equal(t, "b", page1.Keys[1].Name)
	assert.False(t, page1.ListComplete)
	require.NotEmpty(t, page1.Cursor)

	page2, err := ns.List(ctx, "", page1.Cursor, 2)
	require.NoError(t, err)
	assert.Equal(t, "c", page2.Keys[0].Name)
	assert.Equal(t, "d", page2.Keys[1].Name)
	assert.True(t, page2.ListComplete)
}

func TestListInvalidCursorReturnsEmpty(t *testing.T) {
	ns := newTestNamespace(t)
	require.NoError(t, ns.Put(context.Background(), "a", []byte("v"), PutOptions{}))

	result, err := ns.List(context.Background(), "", "not-valid-base64!!", 10)
	require.NoError(t, err)
	assert.True(t, result.ListComplete)
	assert.Empty(t, result.Keys)
}

func TestListRejectsLimitAboveMaximum(t *testing.T) {
	ns := newTestNamespace(t)

	_, err := ns.List(context.Background(), "", "", 1001)
	require.Error(t, err)

	storageErr, ok := err.(*emuerr.StorageError)
	require.True(t, ok)
	assert.Equal(t, emuerr.CodeInvalidMaxKeys, storageErr.Code)
}

func TestPutRejectsReservedKeyPrefix(t *testing.T) {
	ns := newTestNamespace(t)
	err := ns.Put(context.Background(), "__internal", []byte("v"), PutOptions{})
	require.Error(t, err)
}
