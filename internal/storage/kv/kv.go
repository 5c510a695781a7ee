// Package kv implements the KV storage simulator (spec §4.4 "KV"): a
// logical key maps to a value blob, optional metadata, and an optional
// expiration, backed by the shared blob+metadata plane.
package kv

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/metrics"
	"github.com/localdev/hostd/internal/storage/blobstore"
)

// record is the per-key metadata envelope stored in the record plane.
type record struct {
	BlobID     string            `json:"blobId"`
	Size       int64             `json:"size"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  *time.Time        `json:"expiresAt,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CacheTTL   int64             `json:"cacheTtl,omitempty"`
}

// Namespace is one configured KV namespace.
type Namespace struct {
	store *blobstore.Store
	now   func() time.Time
}

// New constructs a Namespace backed by store.
func New(store *blobstore.Store) *Namespace {
	return &Namespace{store: store, now: time.Now}
}

// PutOptions carries the optional TTL/expiration/metadata accompanying a put.
type PutOptions struct {
	ExpirationTTLSeconds int64 // relative TTL
	ExpirationAt         *time.Time
	Metadata             map[string]string
	CacheTTLSeconds      int64
}

// Put validates and stores a value (spec §4.4 KV invariants): value size,
// metadata size, and TTL/expiration-skew minimums are enforced before any
// write happens.
func (n *Namespace) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) > config.MaxKVValueBytes {
		metrics.StorageOps.WithLabelValues("kv", "put", "error").Inc()
		return emuerr.NewStorage(emuerr.CodeEntityTooLarge, "value exceeds maximum KV value size")
	}
	if metaSize(opts.Metadata) > config.MaxKVMetadataBytes {
		metrics.StorageOps.WithLabelValues("kv", "put", "error").Inc()
		return emuerr.NewStorage(emuerr.CodeMetadataTooLarge, "metadata exceeds maximum KV metadata size")
	}

	now := n.now()
	var expiresAt *time.Time
	switch {
	case opts.ExpirationTTLSeconds > 0:
		if opts.ExpirationTTLSeconds < config.MinKVExpirationTTLSeconds {
			return emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "expiration TTL below minimum")
		}
		t := now.Add(time.Duration(opts.ExpirationTTLSeconds) * time.Second)
		expiresAt = &t
	case opts.ExpirationAt != nil:
		if opts.ExpirationAt.Sub(now) < config.MinKVExpirationSkewSeconds*time.Second {
			return emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "absolute expiration too close to now")
		}
		expiresAt = opts.ExpirationAt
	}

	blobID, size, err := n.store.PutBlob(ctx, bytes.NewReader(value))
	if err != nil {
		metrics.StorageOps.WithLabelValues("kv", "put", "error").Inc()
		return fmt.Errorf("kv: storing value blob: %w", err)
	}

	rec := record{
		BlobID:    blobID,
		Size:      size,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		Metadata:  opts.Metadata,
		CacheTTL:  opts.CacheTTLSeconds,
	}
	if err := n.store.PutRecord(ctx, recordKey(key), rec); err != nil {
		_ = n.store.DeleteBlob(blobID)
		metrics.StorageOps.WithLabelValues("kv", "put", "error").Inc()
		return fmt.Errorf("kv: storing record: %w", err)
	}
	metrics.StorageOps.WithLabelValues("kv", "put", "success").Inc()
	return nil
}

// Value is a resolved KV read.
type Value struct {
	Bytes    []byte
	Metadata map[string]string
}

// Get returns the value and metadata for key, or a NoSuchKey error if
// absent or expired (spec §4.4: "expired keys are filtered from reads").
func (n *Namespace) Get(ctx context.Context, key string) (*Value, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var rec record
	if err := n.store.GetRecord(ctx, recordKey(key), &rec); err != nil {
		metrics.StorageOps.WithLabelValues("kv", "get", "miss").Inc()
		return nil, err
	}
	if n.expired(rec) {
		metrics.StorageOps.WithLabelValues("kv", "get", "miss").Inc()
		return nil, emuerr.NewStorage(emuerr.CodeNoSuchKey, "key expired")
	}

	rc, err := n.store.OpenBlob(rec.BlobID)
	if err != nil {
		return nil, fmt.Errorf("kv: opening value blob: %w", err)
	}
	defer rc.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("kv: reading value blob: %w", err)
	}

	metrics.StorageOps.WithLabelValues("kv", "get", "success").Inc()
	return &Value{Bytes: buf.Bytes(), Metadata: rec.Metadata}, nil
}

// Delete removes a key's record and underlying blob. Absence is not an error.
func (n *Namespace) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	var rec record
	if err := n.store.GetRecord(ctx, recordKey(key), &rec); err == nil {
		_ = n.store.DeleteBlob(rec.BlobID)
	}
	if err := n.store.DeleteRecord(ctx, recordKey(key)); err != nil {
		metrics.StorageOps.WithLabelValues("kv", "delete", "error").Inc()
		return fmt.Errorf("kv: deleting record: %w", err)
	}
	metrics.StorageOps.WithLabelValues("kv", "delete", "success").Inc()
	return nil
}

// ListResult is one page of a List call.
type ListResult struct {
	Keys       []KeyInfo
	Cursor     string // opaque base64 cursor to pass to the next call; empty if done
	ListComplete bool
}

// KeyInfo is one entry in a List page.
type KeyInfo struct {
	Name       string
	ExpiresAt  *time.Time
	Metadata   map[string]string
}

// List paginates keys lexicographically under prefix (spec §4.4: "cursor is
// an opaque base64 encoding of the last-seen key; invalid cursors return
// empty").
func (n *Namespace) List(ctx context.Context, prefix, cursor string, limit int) (*ListResult, error) {
	if err := config.ValidateListLimit(limit); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}
	after := ""
	if cursor != "" {
		if !config.ValidCursor(cursor) {
			return &ListResult{ListComplete: true}, nil
		}
		decoded, err := base64.URLEncoding.DecodeString(cursor)
		if err != nil {
			return &ListResult{ListComplete: true}, nil
		}
		after = string(decoded)
	}

	var keys []KeyInfo
	err := n.store.ListRecords(ctx, "k:"+prefix, func(rk string, raw []byte) (bool, error) {
		logicalKey := rk[len("k:"):]
		if after != "" && logicalKey <= after {
			return true, nil
		}
		var rec record
		if err := decodeRecord(raw, &rec); err != nil {
			return true, nil
		}
		if n.expired(rec) {
			return true, nil
		}
		keys = append(keys, KeyInfo{Name: logicalKey, ExpiresAt: rec.ExpiresAt, Metadata: rec.Metadata})
		return len(keys) < limit+1, nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv: listing: %w", err)
	}

	result := &ListResult{ListComplete: true}
	if len(keys) > limit {
		keys = keys[:limit]
		result.ListComplete = false
		result.Cursor = base64.URLEncoding.EncodeToString([]byte(keys[len(keys)-1].Name))
	}
	result.Keys = keys
	return result, nil
}

func (n *Namespace) expired(rec record) bool {
	return rec.ExpiresAt != nil && n.now().After(*rec.ExpiresAt)
}

func recordKey(key string) string { return "k:" + key }

func metaSize(m map[string]string) int {
	total := 0
	for k, v := range m {
		total += len(k) + len(v)
	}
	return total
}

func decodeRecord(raw []byte, rec *record) error {
	return json.Unmarshal(raw, rec)
}

func validateKey(key string) error {
	if len(key) == 0 || len(key) > config.MaxKVKeyBytes {
		return emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "key length out of bounds")
	}
	if len(key) >= 2 && key[0] == '_' && key[1] == '_' {
		return emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "key uses reserved internal sentinel prefix")
	}
	return nil
}
