package r2

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/storage/blobstore"
)

func newTestBucket(t *testing.T) *Bucket {
	t.Helper()
	store, err := blobstore.Open(blobstore.Config{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestPutGetRoundTrip(t *testing.T) {
	b := newTestBucket(t)
	ctx := context.Background()

	_, err := b.Put(ctx, "obj", []byte("payload"), PutOptions{})
	require.NoError(t, err)

	got, err := b.Get(ctx, "obj", OnlyIf{}, "")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got.Bytes))
}

func TestPutRejectsMultipleChecksums(t *testing.T) {
	b := newTestBucket(t)
	_, err := b.Put(context.Background(), "obj", []byte("v"), PutOptions{Checksums: Checksums{MD5: "x", SHA1: "y"}})
	require.Error(t, err)
}

func TestPutRejectsChecksumMismatch(t *testing.T) {
	b := newTestBucket(t)
	_, err := b.Put(context.Background(), "obj", []byte("v"), PutOptions{Checksums: Checksums{MD5: "deadbeef"}})
	require.Error(t, err)
}

func TestPutAcceptsCorrectChecksum(t *testing.T) {
	b := newTestBucket(t)
	sum := md5.Sum([]byte("v"))
	_, err := b.Put(context.Background(), "obj", []byte("v"), PutOptions{Checksums: Checksums{MD5: hex.EncodeToString(sum[:])}})
	require.NoError(t, err)
}

func TestOnlyIfEtagDominatesTimePredicate(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	rec := record{ETag: "abc", UploadedAt: time.Now()}

	cond := OnlyIf{EtagMatches: "abc", UploadedBefore: &past} // time predicate would fail alone
	assert.True(t, cond.evaluate(rec))

	cond2 := OnlyIf{EtagMatches: "xyz", UploadedBefore: &future} // etag fails, should dominate to false
	assert.False(t, cond2.evaluate(rec))
}

func TestPutOnlyIfPreconditionFailedReturnsExistingMetadata(t *testing.T) {
	b := newTestBucket(t)
	ctx := context.Background()
	rec, err := b.Put(ctx, "obj", []byte("v1"), PutOptions{})
	require.NoError(t, err)

	_, err = b.Put(ctx, "obj", []byte("v2"), PutOptions{OnlyIf: OnlyIf{EtagMatches: "not-" + rec.ETag}})
	require.Error(t, err)

	storageErr, ok := err.(*emuerr.StorageError)
	require.True(t, ok)
	assert.Equal(t, emuerr.CodePreconditionFailed, storageErr.Code)
	require.NotNil(t, storageErr.Envelope)
	assert.Equal(t, rec.ETag, storageErr.Envelope.ExistingETag)
}

func TestGetMissingKeyReturnsError(t *testing.T) {
	b := newTestBucket(t)
	_, err := b.Get(context.Background(), "missing", OnlyIf{}, "")
	require.Error(t, err)
}

func TestDeleteRemovesObject(t *testing.T) {
	b := newTestBucket(t)
	ctx := context.Background()
	_, err := b.Put(ctx, "obj", []byte("v"), PutOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, "obj"))
	_, err = b.Get(ctx, "obj", OnlyIf{}, "")
	require.Error(t, err)
}

func TestMultipartUploadStitchesPartsInOrder(t *testing.T) {
	b := newTestBucket(t)
	ctx := context.Background()

	uploadID, err := b.CreateMultipartUpload(ctx, "big")
	require.NoError(t, err)

	part1 := make([]byte, MinMultipartPartBytes)
	for i := range part1 {
		part1[i] = 'a'
	}
	part2 := []byte("tail")

	etag1, err := b.UploadPart(ctx, "big", uploadID, 1, part1)
	require.NoError(t, err)
	etag2, err := b.UploadPart(ctx, "big", uploadID, 2, part2)
	require.NoError(t, err)

	rec, err := b.CompleteMultipartUpload(ctx, "big", uploadID, []CompletedPart{
		{PartNumber: 2, ETag: etag2},
		{PartNumber: 1, ETag: etag1},
	})
	require.NoError(t, err)
	assert.EqualValues(t, len(part1)+len(part2), rec.Size)

	got, err := b.Get(ctx, "big", OnlyIf{}, "")
	require.NoError(t, err)
	assert.Equal(t, len(part1)+len(part2), len(got.Bytes))
}

func TestMultipartRejectsUndersizedIntermediatePart(t *testing.T) {
	b := newTestBucket(t)
	ctx := context.Background()

	uploadID, err := b.CreateMultipartUpload(ctx, "big")
	require.NoError(t, err)

	etag1, err := b.UploadPart(ctx, "big", uploadID, 1, []byte("too small"))
	require.NoError(t, err)
	etag2, err := b.UploadPart(ctx, "big", uploadID, 2, []byte("also small"))
	require.NoError(t, err)

	_, err = b.CompleteMultipartUpload(ctx, "big", uploadID, []CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	require.Error(t, err)
}

func TestListWithDelimiterCollapsesCommonPrefixes(t *testing.T) {
	b := newTestBucket(t)
	ctx := context.Background()
	for _, k := range []string{"a/1", "a/2", "b/1", "top"} {
		_, err := b.Put(ctx, k, []byte("v"), PutOptions{})
		require.NoError(t, err)
	}

	result, err := b.List(ctx, ListOptions{Delimiter: "/"})
	require.NoError(t, err)

	var keys []string
	for _, o := range result.Objects {
		keys = append(keys, o.Key)
	}
	assert.Contains(t, keys, "a/")
	assert.Contains(t, keys, "b/")
	assert.Contains(t, keys, "top")
	assert.Len(t, keys, 3)
}

func TestParseRangesSingleRange(t *testing.T) {
	ranges, err := ParseRanges("bytes=0-9", 100)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(0), ranges[0].Start)
	assert.Equal(t, int64(10), ranges[0].Length)
}

func TestParseRangesMultipleRangesCollapseToFull(t *testing.T) {
	ranges, err := ParseRanges("bytes=0-9,20-29", 100)
	require.NoError(t, err)
	assert.Nil(t, ranges)
}

func TestParseRangesSuffixRange(t *testing.T) {
	ranges, err := ParseRanges("bytes=-10", 100)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(90), ranges[0].Start)
	assert.Equal(t, int64(10), ranges[0].Length)
}

func TestListRejectsLimitAboveMaximum(t *testing.T) {
	b := newTestBucket(t)

	_, err := b.List(context.Background(), ListOptions{Limit: 1001})
	require.Error(t, err)

	storageErr, ok := err.(*emuerr.StorageError)
	require.True(t, ok)
	assert.Equal(t, emuerr.CodeInvalidMaxKeys, storageErr.Code)
}
