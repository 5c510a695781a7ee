package r2

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/localdev/hostd/internal/config"
)

// IncludeField selects which optional metadata fields List returns per
// object, mirroring the real product's `include` option (spec §4.4).
type IncludeField string

const (
	IncludeHTTPMetadata   IncludeField = "httpMetadata"
	IncludeCustomMetadata IncludeField = "customMetadata"
)

// ListOptions configures one List call.
type ListOptions struct {
	Prefix     string
	Cursor     string
	Limit      int // 1..1000
	StartAfter string
	Delimiter  string
	Include    []IncludeField
}

// ObjectInfo is one entry (or common prefix) in a List page.
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	UploadedAt   string
	HTTPMeta     HTTPMetadata      `json:"httpMeta,omitempty"`
	CustomMeta   map[string]string `json:"customMeta,omitempty"`
	IsPrefix     bool // true when this entry is a delimiter-collapsed common prefix
}

// ListResult is one page of a List call.
type ListResult struct {
	Objects      []ObjectInfo
	Cursor       string
	Truncated    bool
}

// List implements prefix/cursor/limit/startAfter/delimiter/include (spec
// §4.4 "List supports..."). Delimiter grouping collapses any key sharing a
// prefix up to and including the first delimiter occurrence after the
// search prefix into one synthetic common-prefix entry.
func (b *Bucket) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if err := config.ValidateListLimit(opts.Limit); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	after := opts.StartAfter
	if opts.Cursor != "" {
		if !config.ValidCursor(opts.Cursor) {
			return &ListResult{}, nil
		}
		decoded, err := base64.URLEncoding.DecodeString(opts.Cursor)
		if err != nil {
			return &ListResult{}, nil
		}
		after = string(decoded)
	}

	var all []ObjectInfo
	seenPrefixes := make(map[string]bool)

	err := b.store.ListRecords(ctx, "o:"+opts.Prefix, func(rk string, raw []byte) (bool, error) {
		key := rk[len("o:"):]
		if after != "" && key <= after {
			return true, nil
		}
		var rec record
		if err := decodeRecord(raw, &rec); err != nil {
			return true, nil
		}

		if opts.Delimiter != "" {
			rest := key[len(opts.Prefix):]
			if idx := strings.Index(rest, opts.Delimiter); idx >= 0 {
				commonPrefix := opts.Prefix + rest[:idx+len(opts.Delimiter)]
				if !seenPrefixes[commonPrefix] {
					seenPrefixes[commonPrefix] = true
					all = append(all, ObjectInfo{Key: commonPrefix, IsPrefix: true})
				}
				return true, nil
			}
		}

		info := ObjectInfo{Key: key, ETag: rec.ETag, Size: rec.Size, UploadedAt: rec.UploadedAt.Format("2006-01-02T15:04:05Z07:00")}
		for _, inc := range opts.Include {
			switch inc {
			case IncludeHTTPMetadata:
				info.HTTPMeta = rec.HTTPMeta
			case IncludeCustomMetadata:
				info.CustomMeta = rec.CustomMeta
			}
		}
		all = append(all, info)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("r2: listing: %w", err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	result := &ListResult{}
	if len(all) > limit {
		result.Objects = all[:limit]
		result.Truncated = true
		result.Cursor = base64.URLEncoding.EncodeToString([]byte(result.Objects[len(result.Objects)-1].Key))
	} else {
		result.Objects = all
	}
	return result, nil
}

func decodeRecord(raw []byte, rec *record) error {
	return unmarshalRecord(raw, rec)
}
