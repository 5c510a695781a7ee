package router

import (
	"github.com/localdev/hostd/internal/storage/cache"
	"github.com/localdev/hostd/internal/storage/kv"
	"github.com/localdev/hostd/internal/storage/queue"
	"github.com/localdev/hostd/internal/storage/r2"
	"github.com/localdev/hostd/internal/storage/relational"
	"github.com/localdev/hostd/internal/storage/sites"
)

// Gateway is the set of live storage-simulator bindings the router dispatches
// into, keyed by the binding name declared in configuration.
type Gateway struct {
	KVNamespaces  map[string]*kv.Namespace
	R2Buckets     map[string]*r2.Bucket
	CachePartitions map[string]*cache.Store
	Relational    map[string]*relational.Database
	Queues        *queue.Broker
	Sites         *SitesBinding
}

// SitesBinding pairs a built asset manifest with the on-disk root it was
// built from, so the router can resolve a logical asset path to a file.
type SitesBinding struct {
	Root     string
	Manifest sites.Manifest
}

func NewGateway() *Gateway {
	return &Gateway{
		KVNamespaces:    make(map[string]*kv.Namespace),
		R2Buckets:       make(map[string]*r2.Bucket),
		CachePartitions: make(map[string]*cache.Store),
		Relational:      make(map[string]*relational.Database),
	}
}

func (g *Gateway) cachePartition(name string) *cache.Store {
	if name == "" {
		name = cache.DefaultPartition
	}
	return g.CachePartitions[name]
}
