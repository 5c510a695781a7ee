// Package blobstore implements the blob plane and per-namespace metadata
// record plane used by every storage product: each product's records point
// at blobs stored under random uuid file names in the namespace's blob
// directory. Blob names are not derived from content, and identical values
// are stored as separate blobs.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/logging"
)

// Config configures one Store instance. Root is chosen by the caller
// (cmd/hostd derives one directory per binding name).
type Config struct {
	// Root is the namespace's own persistence directory. Blobs live under
	// Root/blobs, the Badger metadata DB under Root/meta.
	Root string

	// Compress enables zstd at-rest compression of blob contents. Off by
	// default; small values don't benefit and it costs a round trip
	// through the compressor on every read.
	Compress bool

	SyncWrites bool
}

// Store is the shared blob+metadata plane for one storage namespace
// (one KV namespace, one R2 bucket, one cache partition, ...).
type Store struct {
	cfg    Config
	db     *badger.DB
	blobDir string

	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens (creating if absent) the blob directory and metadata database
// for one namespace, following the teacher's BadgerDB tuning conventions
// (fsync via SyncWrites, disabled internal logger).
func Open(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("blobstore: empty root")
	}
	blobDir := filepath.Join(cfg.Root, "blobs")
	metaDir := filepath.Join(cfg.Root, "meta")
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: creating blob dir: %w", err)
	}

	opts := badger.DefaultOptions(metaDir)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("blobstore: opening metadata db: %w", err)
	}

	s := &Store{cfg: cfg, db: db, blobDir: blobDir}
	if cfg.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("blobstore: creating zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("blobstore: creating zstd decoder: %w", err)
		}
		s.encoder, s.decoder = enc, dec
	}

	logging.Info().Str("root", cfg.Root).Bool("compress", cfg.Compress).Msg("blobstore opened")
	return s, nil
}

func (s *Store) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	return s.db.Close()
}

// PutBlob writes r's content to a new file named by a fresh uuid and returns
// that id. The name is not derived from the content and carries no meaning
// beyond identity: only metadata records reference it.
func (s *Store) PutBlob(ctx context.Context, r io.Reader) (blobID string, size int64, err error) {
	id := uuid.NewString()
	path := filepath.Join(s.blobDir, id)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: creating blob file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if s.cfg.Compress {
		enc, encErr := zstd.NewWriter(f)
		if encErr != nil {
			return "", 0, fmt.Errorf("blobstore: creating zstd writer: %w", encErr)
		}
		w = enc
		defer enc.Close()
	}

	n, err := io.Copy(w, r)
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("blobstore: writing blob: %w", err)
	}
	return id, n, nil
}

// OpenBlob returns a reader for a previously-written blob, transparently
// decompressing if the store was opened with Compress.
func (s *Store) OpenBlob(blobID string) (io.ReadCloser, error) {
	path := filepath.Join(s.blobDir, blobID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, emuerr.NewStorage(emuerr.CodeNoSuchKey, "blob not found")
		}
		return nil, fmt.Errorf("blobstore: opening blob: %w", err)
	}
	if !s.cfg.Compress {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blobstore: creating zstd reader: %w", err)
	}
	return &decompressingReadCloser{dec: dec, f: f}, nil
}

type decompressingReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (d *decompressingReadCloser) Read(p []byte) (int, error) { return d.dec.Read(p) }
func (d *decompressingReadCloser) Close() error {
	d.dec.Close()
	return d.f.Close()
}

// DeleteBlob removes a blob file. Absence is not an error: callers delete
// defensively after swapping a metadata record.
func (s *Store) DeleteBlob(blobID string) error {
	err := os.Remove(filepath.Join(s.blobDir, blobID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: deleting blob: %w", err)
	}
	return nil
}

// PutRecord stores a JSON-encoded metadata record under key.
func (s *Store) PutRecord(ctx context.Context, key string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("blobstore: encoding record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// GetRecord loads and decodes a metadata record. Returns emuerr NoSuchKey
// if absent.
func (s *Store) GetRecord(ctx context.Context, key string, out interface{}) error {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return emuerr.NewStorage(emuerr.CodeNoSuchKey, "no such key")
	}
	if err != nil {
		return fmt.Errorf("blobstore: reading record: %w", err)
	}
	return json.Unmarshal(data, out)
}

// DeleteRecord removes a metadata record; absence is not an error.
func (s *Store) DeleteRecord(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// ListRecords iterates metadata keys under prefix in lexical order, calling
// fn for each decoded record until it returns false or the prefix is
// exhausted. Used by every product's cursor-paginated list operation.
func (s *Store) ListRecords(ctx context.Context, prefix string, fn func(key string, raw []byte) (more bool, err error)) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			var raw []byte
			if err := item.Value(func(val []byte) error {
				raw = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}
			more, err := fn(string(item.Key()), raw)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
}

// MigrateLegacyLayout moves a pre-fingerprint `<namespace>/db.sqlite`-style
// layout into the fingerprinted path expected by the current persistence
// scheme (spec §3 note on persistence path derivation), if one is found.
func MigrateLegacyLayout(legacyPath, fingerprintedRoot string) error {
	if _, err := os.Stat(legacyPath); os.IsNotExist(err) {
		return nil
	}
	if _, err := os.Stat(fingerprintedRoot); err == nil {
		return nil // already migrated
	}
	if err := os.MkdirAll(filepath.Dir(fingerprintedRoot), 0o755); err != nil {
		return fmt.Errorf("blobstore: preparing migration target: %w", err)
	}
	if err := os.Rename(legacyPath, fingerprintedRoot); err != nil {
		return fmt.Errorf("blobstore: migrating legacy layout: %w", err)
	}
	logging.Info().Str("from", legacyPath).Str("to", fingerprintedRoot).Msg("migrated legacy persistence layout")
	return nil
}
