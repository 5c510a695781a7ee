// Package cache implements the Cache storage simulator (spec §4.4
// "Cache"): HTTP response caching keyed by cache key and partitioned by
// named cache, honoring Cache-Control and a maximum TTL.
package cache

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/metrics"
	"github.com/localdev/hostd/internal/storage/blobstore"
)

// DefaultPartition is the distinguished default named cache (spec §4.4:
// "the default partition is distinguished").
const DefaultPartition = "default"

// StoredResponse is the metadata envelope for one cached HTTP response.
type StoredResponse struct {
	BlobID     string      `json:"blobId"`
	StatusCode int         `json:"statusCode"`
	Header     http.Header `json:"header"`
	StoredAt   time.Time   `json:"storedAt"`
	ExpiresAt  *time.Time  `json:"expiresAt,omitempty"`
}

// Store is one named-cache partition.
type Store struct {
	blobs     *blobstore.Store
	partition string
	now       func() time.Time
}

// New constructs a partition-scoped Store. partition "" is normalized to
// DefaultPartition.
func New(blobs *blobstore.Store, partition string) *Store {
	if partition == "" {
		partition = DefaultPartition
	}
	return &Store{blobs: blobs, partition: partition, now: time.Now}
}

func (s *Store) recordKey(cacheKey string) string {
	return "c:" + s.partition + ":" + cacheKey
}

// Put ingests an HTTP response: strips chunked transfer-encoding framing,
// honors Cache-Control (no-store suppresses storage entirely), and
// enforces the maximum TTL (spec §4.4 Cache).
func (s *Store) Put(ctx context.Context, cacheKey string, statusCode int, header http.Header, body []byte) (stored bool, err error) {
	header = stripChunkedFraming(header)

	directives := parseCacheControl(header.Get("Cache-Control"))
	if directives.noStore {
		metrics.StorageOps.WithLabelValues("cache", "put", "no_store").Inc()
		return false, nil
	}

	ttl := directives.maxAge
	if ttl <= 0 {
		ttl = config.MinCacheTTLSeconds
	}
	if ttl < config.MinCacheTTLSeconds {
		ttl = config.MinCacheTTLSeconds
	}
	if ttl > config.MaxCacheTTLSeconds {
		ttl = config.MaxCacheTTLSeconds
	}

	blobID, _, err := s.blobs.PutBlob(ctx, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("cache: storing body blob: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(time.Duration(ttl) * time.Second)
	rec := StoredResponse{BlobID: blobID, StatusCode: statusCode, Header: header, StoredAt: now, ExpiresAt: &expiresAt}
	if err := s.blobs.PutRecord(ctx, s.recordKey(cacheKey), rec); err != nil {
		_ = s.blobs.DeleteBlob(blobID)
		return false, fmt.Errorf("cache: storing record: %w", err)
	}
	metrics.StorageOps.WithLabelValues("cache", "put", "success").Inc()
	return true, nil
}

// MatchResult is a resolved cache hit.
type MatchResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Match returns the stored response for cacheKey without revalidation
// (spec §4.4: "match returns the stored response without revalidation").
func (s *Store) Match(ctx context.Context, cacheKey string) (*MatchResult, error) {
	var rec StoredResponse
	if err := s.blobs.GetRecord(ctx, s.recordKey(cacheKey), &rec); err != nil {
		metrics.StorageOps.WithLabelValues("cache", "match", "miss").Inc()
		return nil, err
	}
	if rec.ExpiresAt != nil && s.now().After(*rec.ExpiresAt) {
		metrics.StorageOps.WithLabelValues("cache", "match", "miss").Inc()
		return nil, emuerr.NewStorage(emuerr.CodeNoSuchKey, "cache entry expired")
	}

	rc, err := s.blobs.OpenBlob(rec.BlobID)
	if err != nil {
		return nil, fmt.Errorf("cache: opening body blob: %w", err)
	}
	defer rc.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("cache: reading body blob: %w", err)
	}

	metrics.StorageOps.WithLabelValues("cache", "match", "success").Inc()
	return &MatchResult{StatusCode: rec.StatusCode, Header: rec.Header, Body: buf.Bytes()}, nil
}

// Delete removes a cache entry exactly (spec §4.4: "delete is exact").
func (s *Store) Delete(ctx context.Context, cacheKey string) (existed bool, err error) {
	var rec StoredResponse
	existed = s.blobs.GetRecord(ctx, s.recordKey(cacheKey), &rec) == nil
	if existed {
		_ = s.blobs.DeleteBlob(rec.BlobID)
	}
	if err := s.blobs.DeleteRecord(ctx, s.recordKey(cacheKey)); err != nil {
		return existed, fmt.Errorf("cache: deleting record: %w", err)
	}
	metrics.StorageOps.WithLabelValues("cache", "delete", "success").Inc()
	return existed, nil
}

type cacheControlDirectives struct {
	noStore bool
	maxAge  int64
}

func parseCacheControl(raw string) cacheControlDirectives {
	var d cacheControlDirectives
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.EqualFold(part, "no-store"):
			d.noStore = true
		case strings.HasPrefix(strings.ToLower(part), "max-age="):
			if v, err := strconv.ParseInt(part[len("max-age="):], 10, 64); err == nil {
				d.maxAge = v
			}
		}
	}
	return d
}

// stripChunkedFraming removes the Transfer-Encoding header entirely: the
// body handed to Put is already de-chunked by the HTTP layer that read it,
// so retaining a "chunked" Transfer-Encoding header on the stored response
// would describe framing that no longer exists once replayed from cache.
func stripChunkedFraming(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		if textproto.CanonicalMIMEHeaderKey(k) == "Transfer-Encoding" {
			continue
		}
		out[k] = v
	}
	return out
}
