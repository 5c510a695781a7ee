package r2

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/metrics"
)

// MinMultipartPartBytes is the minimum size every non-final part must meet
// (spec §4.4: "requires each intermediate part to be ≥ min-part-size").
const MinMultipartPartBytes = 5 * 1024 * 1024

func multipartKey(key, uploadID string) string { return "mp:" + key + ":" + uploadID }

// CreateMultipartUpload starts a new upload and returns its id.
func (b *Bucket) CreateMultipartUpload(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	state := multipartState{UploadID: uploadID}
	if err := b.store.PutRecord(ctx, multipartKey(key, uploadID), state); err != nil {
		return "", fmt.Errorf("r2: creating multipart upload: %w", err)
	}
	return uploadID, nil
}

// UploadPart stores one part's bytes and records its etag + ordinal.
func (b *Bucket) UploadPart(ctx context.Context, key, uploadID string, partNumber int, value []byte) (etag string, err error) {
	var state multipartState
	if err := b.store.GetRecord(ctx, multipartKey(key, uploadID), &state); err != nil {
		return "", emuerr.NewStorage(emuerr.CodeNoSuchUpload, "no such multipart upload")
	}
	if state.Complete {
		return "", emuerr.NewStorage(emuerr.CodeNoSuchUpload, "multipart upload already completed")
	}

	blobID, size, err := b.store.PutBlob(ctx, bytes.NewReader(value))
	if err != nil {
		return "", fmt.Errorf("r2: storing part blob: %w", err)
	}
	sum := md5.Sum(value)
	partEtag := hex.EncodeToString(sum[:])

	state.Parts = append(state.Parts, partEntry{PartNumber: partNumber, BlobID: blobID, Size: size, ETag: partEtag})
	if err := b.store.PutRecord(ctx, multipartKey(key, uploadID), state); err != nil {
		_ = b.store.DeleteBlob(blobID)
		return "", fmt.Errorf("r2: recording part: %w", err)
	}
	return partEtag, nil
}

// CompletedPart identifies one part in the completion request, matched
// against the recorded parts by (partNumber, etag).
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// CompleteMultipartUpload stitches parts in ascending part-number order
// into a single new value, verifies every intermediate part meets the
// minimum size, and atomically swaps the object's manifest (spec §4.4).
func (b *Bucket) CompleteMultipartUpload(ctx context.Context, key, uploadID string, completed []CompletedPart) (*record, error) {
	var state multipartState
	if err := b.store.GetRecord(ctx, multipartKey(key, uploadID), &state); err != nil {
		return nil, emuerr.NewStorage(emuerr.CodeNoSuchUpload, "no such multipart upload")
	}

	byNumber := make(map[int]partEntry, len(state.Parts))
	for _, p := range state.Parts {
		byNumber[p.PartNumber] = p
	}

	ordered := make([]partEntry, 0, len(completed))
	for _, c := range completed {
		p, ok := byNumber[c.PartNumber]
		if !ok || p.ETag != c.ETag {
			return nil, emuerr.NewStorage(emuerr.CodeInvalidPart, "completed part does not match an uploaded part")
		}
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PartNumber < ordered[j].PartNumber })

	for i, p := range ordered {
		if i < len(ordered)-1 && p.Size < MinMultipartPartBytes {
			return nil, emuerr.NewStorage(emuerr.CodeBadUpload, "intermediate part below minimum size")
		}
	}

	combined := new(bytes.Buffer)
	for _, p := range ordered {
		rc, err := b.store.OpenBlob(p.BlobID)
		if err != nil {
			return nil, fmt.Errorf("r2: reading part for completion: %w", err)
		}
		if _, err := combined.ReadFrom(rc); err != nil {
			rc.Close()
			return nil, fmt.Errorf("r2: assembling completed object: %w", err)
		}
		rc.Close()
	}

	rec, err := b.Put(ctx, key, combined.Bytes(), PutOptions{})
	if err != nil {
		return nil, err
	}

	for _, p := range ordered {
		_ = b.store.DeleteBlob(p.BlobID)
	}
	state.Complete = true
	_ = b.store.DeleteRecord(ctx, multipartKey(key, uploadID))

	metrics.StorageOps.WithLabelValues("r2", "complete_multipart", "success").Inc()
	return rec, nil
}

// AbortMultipartUpload discards an in-progress upload and its parts.
func (b *Bucket) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	var state multipartState
	if err := b.store.GetRecord(ctx, multipartKey(key, uploadID), &state); err != nil {
		return nil // already gone
	}
	for _, p := range state.Parts {
		_ = b.store.DeleteBlob(p.BlobID)
	}
	return b.store.DeleteRecord(ctx, multipartKey(key, uploadID))
}
