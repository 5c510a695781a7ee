package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/logging"
	"github.com/localdev/hostd/internal/router"
	"github.com/localdev/hostd/internal/storage/blobstore"
	"github.com/localdev/hostd/internal/storage/cache"
	"github.com/localdev/hostd/internal/storage/kv"
	"github.com/localdev/hostd/internal/storage/queue"
	"github.com/localdev/hostd/internal/storage/r2"
	"github.com/localdev/hostd/internal/storage/relational"
	"github.com/localdev/hostd/internal/storage/sites"
)

// gatewayResources bundles the loopback Gateway with everything that needs
// an orderly Close on process shutdown (blobstore handles, the queue
// broker's embedded NATS server).
type gatewayResources struct {
	gw      *router.Gateway
	closers []func() error
}

func (r *gatewayResources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("error closing storage resource")
		}
	}
}

// resolveStoreRoot turns a persistence field's parsed form into a concrete
// directory for one named binding, creating an ephemeral directory under
// persistRoot for the memory case since every storage simulator's blob
// plane is disk-backed regardless of how long its contents are meant to
// outlive the process (spec §3 "Persistence fields").
func resolveStoreRoot(persistRoot, product, name string, p config.Persist) (string, error) {
	switch p.Kind {
	case config.PersistPath:
		return p.Path, nil
	case config.PersistDefaultRoot:
		return filepath.Join(p.Path, name), nil
	default:
		dir, err := os.MkdirTemp(persistRoot, fmt.Sprintf("%s-%s-mem-", product, name))
		if err != nil {
			return "", fmt.Errorf("hostd: creating ephemeral store for %s/%s: %w", product, name, err)
		}
		return dir, nil
	}
}

// buildGateway wires the loopback router's Gateway out of the merged
// configuration: one blobstore-backed namespace per configured KV/R2
// binding, a single blobstore-backed default cache partition, an in-memory
// relational database per configured D1 binding, an
// embedded-NATS queue broker when any queue is declared, and a built sites
// manifest when a site root is configured.
func buildGateway(opts config.Options, persistRoot string) (*gatewayResources, error) {
	res := &gatewayResources{gw: router.NewGateway()}

	kvPersist, err := config.ParsePersist(opts.KVPersist, filepath.Join(persistRoot, "kv"))
	if err != nil {
		return nil, err
	}
	for _, name := range opts.KVNamespaces {
		root, err := resolveStoreRoot(persistRoot, "kv", name, kvPersist)
		if err != nil {
			return nil, err
		}
		store, err := blobstore.Open(blobstore.Config{Root: root})
		if err != nil {
			return nil, fmt.Errorf("hostd: opening kv namespace %s: %w", name, err)
		}
		res.closers = append(res.closers, store.Close)
		res.gw.KVNamespaces[name] = kv.New(store)
	}

	r2Persist, err := config.ParsePersist(opts.R2Persist, filepath.Join(persistRoot, "r2"))
	if err != nil {
		return nil, err
	}
	for _, name := range opts.R2Buckets {
		root, err := resolveStoreRoot(persistRoot, "r2", name, r2Persist)
		if err != nil {
			return nil, err
		}
		store, err := blobstore.Open(blobstore.Config{Root: root})
		if err != nil {
			return nil, fmt.Errorf("hostd: opening r2 bucket %s: %w", name, err)
		}
		res.closers = append(res.closers, store.Close)
		res.gw.R2Buckets[name] = r2.New(store)
	}

	cachePersist, err := config.ParsePersist(opts.CachePersist, filepath.Join(persistRoot, "cache"))
	if err != nil {
		return nil, err
	}
	cacheRoot, err := resolveStoreRoot(persistRoot, "cache", cache.DefaultPartition, cachePersist)
	if err != nil {
		return nil, err
	}
	cacheStore, err := blobstore.Open(blobstore.Config{Root: cacheRoot})
	if err != nil {
		return nil, fmt.Errorf("hostd: opening cache partition: %w", err)
	}
	res.closers = append(res.closers, cacheStore.Close)
	res.gw.CachePartitions[cache.DefaultPartition] = cache.New(cacheStore, cache.DefaultPartition)

	for _, name := range opts.D1Databases {
		res.gw.Relational[name] = relational.NewDatabase()
	}

	if len(opts.Queues) > 0 {
		storeDir, err := os.MkdirTemp(persistRoot, "queue-nats-")
		if err != nil {
			return nil, fmt.Errorf("hostd: creating queue store dir: %w", err)
		}
		broker, err := queue.NewEmbeddedBroker(storeDir)
		if err != nil {
			return nil, fmt.Errorf("hostd: starting queue broker: %w", err)
		}
		res.closers = append(res.closers, broker.Close)
		for _, q := range opts.Queues {
			if err := broker.RegisterQueue(queue.Definition{
				Name: q.Name, MaxBatchSize: q.MaxBatchSize,
				MaxRetries: q.MaxRetries, DeadLetterQueue: q.DeadLetterQueue, Consumer: q.Consumer,
			}); err != nil {
				return nil, err
			}
		}
		if err := broker.ValidateTopology(); err != nil {
			return nil, err
		}
		res.gw.Queues = broker
	}

	if opts.SitesPath != "" {
		manifest, err := sites.BuildManifest(opts.SitesPath, opts.SitesInclude, opts.SitesExclude)
		if err != nil {
			return nil, fmt.Errorf("hostd: building sites manifest: %w", err)
		}
		res.gw.Sites = &router.SitesBinding{Root: opts.SitesPath, Manifest: manifest}
	}

	return res, nil
}
