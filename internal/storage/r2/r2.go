// Package r2 implements the R2 object-storage simulator (spec §4.4 "R2"):
// conditionals, byte ranges, multipart upload, checksum validation, and
// delimiter-aware listing, backed by the shared blob+metadata plane.
package r2

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/metrics"
	"github.com/localdev/hostd/internal/storage/blobstore"
)

// HTTPMetadata mirrors the subset of HTTP headers R2 stores alongside an
// object (content-type, content-disposition, etc.), opaque string map here.
type HTTPMetadata map[string]string

// Checksums holds the multi-hash ledger; at most one is ever supplied on
// put (spec §4.4: "at most one digest may be supplied").
type Checksums struct {
	MD5    string `json:"md5,omitempty"`
	SHA1   string `json:"sha1,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
	SHA384 string `json:"sha384,omitempty"`
	SHA512 string `json:"sha512,omitempty"`
}

type multipartState struct {
	UploadID string      `json:"uploadId"`
	Parts    []partEntry `json:"parts"`
	Complete bool        `json:"complete"`
}

type partEntry struct {
	PartNumber int    `json:"partNumber"`
	BlobID     string `json:"blobId"`
	Size       int64  `json:"size"`
	ETag       string `json:"etag"`
}

type record struct {
	BlobID       string       `json:"blobId"`
	Size         int64        `json:"size"`
	ETag         string       `json:"etag"`
	Checksums    Checksums    `json:"checksums"`
	HTTPMeta     HTTPMetadata `json:"httpMeta,omitempty"`
	CustomMeta   map[string]string `json:"customMeta,omitempty"`
	UploadedAt   time.Time    `json:"uploadedAt"`
	Version      string       `json:"version"`
	Multipart    *multipartState `json:"multipart,omitempty"`
}

// Bucket is one configured R2 bucket.
type Bucket struct {
	store *blobstore.Store
	now   func() time.Time
}

func New(store *blobstore.Store) *Bucket {
	return &Bucket{store: store, now: time.Now}
}

// OnlyIf are the conditional-put/get predicates (spec §4.4: "etag
// predicates dominate" when both time and etag predicates are supplied).
type OnlyIf struct {
	EtagMatches       string
	EtagDoesNotMatch  string
	UploadedBefore    *time.Time
	UploadedAfter     *time.Time
}

func (c OnlyIf) empty() bool {
	return c.EtagMatches == "" && c.EtagDoesNotMatch == "" && c.UploadedBefore == nil && c.UploadedAfter == nil
}

// evaluate reports whether rec satisfies c (spec §4.4 conditional rules).
func (c OnlyIf) evaluate(rec record) bool {
	if c.empty() {
		return true
	}
	if c.EtagMatches != "" {
		return rec.ETag == c.EtagMatches
	}
	if c.EtagDoesNotMatch != "" {
		return rec.ETag != c.EtagDoesNotMatch
	}
	// no etag predicate given; fall through to time predicates
	if c.UploadedBefore != nil && !rec.UploadedAt.Before(*c.UploadedBefore) {
		return false
	}
	if c.UploadedAfter != nil && !rec.UploadedAt.After(*c.UploadedAfter) {
		return false
	}
	return true
}

// PutOptions carries HTTP/custom metadata, checksum, and conditional
// predicates for a Put call.
type PutOptions struct {
	HTTPMeta    HTTPMetadata
	CustomMeta  map[string]string
	Checksums   Checksums
	OnlyIf      OnlyIf
}

// Put validates the supplied checksum (if any) against the actual content,
// evaluates OnlyIf against any existing object, and stores the value
// atomically (the old blob is only deleted after the new record commits).
func (b *Bucket) Put(ctx context.Context, key string, value []byte, opts PutOptions) (*record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateOneChecksum(opts.Checksums); err != nil {
		return nil, err
	}
	if err := verifyChecksum(value, opts.Checksums); err != nil {
		metrics.StorageOps.WithLabelValues("r2", "put", "checksum_mismatch").Inc()
		return nil, err
	}

	var existing record
	hasExisting := b.store.GetRecord(ctx, recordKey(key), &existing) == nil
	if hasExisting && !opts.OnlyIf.empty() && !opts.OnlyIf.evaluate(existing) {
		metrics.StorageOps.WithLabelValues("r2", "put", "precondition_failed").Inc()
		return nil, emuerr.NewStorage(emuerr.CodePreconditionFailed, "onlyIf condition not satisfied").
			WithEnvelope(&emuerr.PreconditionEnvelope{
				ExistingETag:       existing.ETag,
				ExistingUploadedAt: existing.UploadedAt.Format(time.RFC3339),
				ExistingCustomMeta: existing.CustomMeta,
			})
	}

	sum := md5.Sum(value)
	etag := hex.EncodeToString(sum[:])

	blobID, size, err := b.store.PutBlob(ctx, bytes.NewReader(value))
	if err != nil {
		return nil, fmt.Errorf("r2: storing value blob: %w", err)
	}

	rec := record{
		BlobID: blobID, Size: size, ETag: etag, Checksums: opts.Checksums,
		HTTPMeta: opts.HTTPMeta, CustomMeta: opts.CustomMeta,
		UploadedAt: b.now(), Version: blobID,
	}
	if err := b.store.PutRecord(ctx, recordKey(key), rec); err != nil {
		_ = b.store.DeleteBlob(blobID)
		return nil, fmt.Errorf("r2: storing record: %w", err)
	}
	if hasExisting {
		_ = b.store.DeleteBlob(existing.BlobID)
	}
	metrics.StorageOps.WithLabelValues("r2", "put", "success").Inc()
	return &rec, nil
}

// GetResult is a resolved R2 read, possibly range-restricted.
type GetResult struct {
	Bytes      []byte
	Range      *ByteRange // nil for a full-body response
	Record     record
}

// Get honors OnlyIf (returning PreconditionFailed) and a single Range
// header; multiple ranges in one request collapse to the full body (spec
// §4.4: "mirrors the real product").
func (b *Bucket) Get(ctx context.Context, key string, onlyIf OnlyIf, rangeHeader string) (*GetResult, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var rec record
	if err := b.store.GetRecord(ctx, recordKey(key), &rec); err != nil {
		metrics.StorageOps.WithLabelValues("r2", "get", "miss").Inc()
		return nil, err
	}
	if !onlyIf.empty() && !onlyIf.evaluate(rec) {
		metrics.StorageOps.WithLabelValues("r2", "get", "precondition_failed").Inc()
		return nil, emuerr.NewStorage(emuerr.CodePreconditionFailed, "onlyIf condition not satisfied").
			WithEnvelope(&emuerr.PreconditionEnvelope{ExistingETag: rec.ETag, ExistingUploadedAt: rec.UploadedAt.Format(time.RFC3339)})
	}

	rc, err := b.store.OpenBlob(rec.BlobID)
	if err != nil {
		return nil, fmt.Errorf("r2: opening value blob: %w", err)
	}
	defer rc.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("r2: reading value blob: %w", err)
	}
	full := buf.Bytes()

	ranges, err := ParseRanges(rangeHeader, int64(len(full)))
	if err != nil {
		metrics.StorageOps.WithLabelValues("r2", "get", "invalid_range").Inc()
		return nil, err
	}

	metrics.StorageOps.WithLabelValues("r2", "get", "success").Inc()
	if len(ranges) != 1 {
		return &GetResult{Bytes: full, Record: rec}, nil
	}
	rng := ranges[0]
	return &GetResult{Bytes: full[rng.Start : rng.Start+rng.Length], Range: &rng, Record: rec}, nil
}

// Delete removes key's record and blob. Absence is not an error. In-progress
// multipart uploads for key are not affected.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	var rec record
	if err := b.store.GetRecord(ctx, recordKey(key), &rec); err == nil {
		_ = b.store.DeleteBlob(rec.BlobID)
	}
	if err := b.store.DeleteRecord(ctx, recordKey(key)); err != nil {
		return fmt.Errorf("r2: deleting record: %w", err)
	}
	metrics.StorageOps.WithLabelValues("r2", "delete", "success").Inc()
	return nil
}

func validateOneChecksum(c Checksums) error {
	count := 0
	for _, v := range []string{c.MD5, c.SHA1, c.SHA256, c.SHA384, c.SHA512} {
		if v != "" {
			count++
		}
	}
	if count > 1 {
		return emuerr.NewStorage(emuerr.CodeBadDigest, "at most one checksum digest may be supplied")
	}
	return nil
}

func verifyChecksum(value []byte, c Checksums) error {
	check := func(want string, sum []byte) error {
		if want == "" {
			return nil
		}
		got := hex.EncodeToString(sum)
		if !strings.EqualFold(got, want) {
			return emuerr.NewStorage(emuerr.CodeBadDigest, "checksum mismatch")
		}
		return nil
	}
	if err := func() error { s := md5.Sum(value); return check(c.MD5, s[:]) }(); err != nil {
		return err
	}
	if err := func() error { s := sha1.Sum(value); return check(c.SHA1, s[:]) }(); err != nil {
		return err
	}
	if err := func() error { s := sha256.Sum256(value); return check(c.SHA256, s[:]) }(); err != nil {
		return err
	}
	if err := func() error { s := sha512.Sum384(value); return check(c.SHA384, s[:]) }(); err != nil {
		return err
	}
	if err := func() error { s := sha512.Sum512(value); return check(c.SHA512, s[:]) }(); err != nil {
		return err
	}
	return nil
}

func recordKey(key string) string { return "o:" + key }

func validateKey(key string) error {
	if len(key) == 0 || len(key) > config.MaxR2KeyBytes {
		return emuerr.NewStorage(emuerr.CodeInvalidObjectName, "key length out of bounds")
	}
	return nil
}

func unmarshalRecord(raw []byte, rec *record) error {
	return json.Unmarshal(raw, rec)
}
