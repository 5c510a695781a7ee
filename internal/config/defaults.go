package config

import "time"

// Defaults returns the built-in configuration defaults, the lowest layer in
// the merge order (spec §3).
func Defaults() Options {
	return Options{
		Workers:      nil,
		KVNamespaces: nil,
		KVPersist:    "",
		R2Buckets:    nil,
		R2Persist:    "",
		CachePersist: "",
		Queues:       nil,
		D1Databases:  nil,
		D1Persist:    "",
		Services:     nil,
		Host:         "127.0.0.1",
		Port:         0, // 0 == let the OS assign; reported back over the control pipe
		Inspector:    false,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// DefaultQueueOptions fills in the per-product constraints named in §4.4
// Queues when a queue is declared without explicit overrides.
func DefaultQueueOptions(name string) QueueOptions {
	return QueueOptions{
		Name:            name,
		MaxBatchSize:    100,
		MaxBatchTimeout: 5 * time.Second,
		MaxRetries:      3,
	}
}

const (
	// MaxQueueMessageBytes is the per-message size limit (§4.4).
	MaxQueueMessageBytes = 128 * 1024
	// MaxQueueBatchCount is the per-batch message count limit (§4.4).
	MaxQueueBatchCount = 100
	// MaxQueueBatchBytes is the per-batch byte size limit (§4.4).
	MaxQueueBatchBytes = 288 * 1024

	// MaxKVValueBytes is the per-value size limit for KV puts (§4.4 KV).
	MaxKVValueBytes = 25 * 1024 * 1024
	// MaxKVMetadataBytes is the per-record metadata size limit for KV (§4.4 KV).
	MaxKVMetadataBytes = 1024
	// MinKVExpirationTTLSeconds is the minimum relative TTL for KV puts (§4.4 KV).
	MinKVExpirationTTLSeconds = 60
	// MinKVExpirationSkewSeconds is the minimum (absolute-expiration - now) for KV puts (§4.4 KV).
	MinKVExpirationSkewSeconds = 60

	// MaxKVKeyBytes is the UTF-8 byte limit for KV keys (§3).
	MaxKVKeyBytes = 512
	// MaxR2KeyBytes is the UTF-8 byte limit for R2 keys (§3).
	MaxR2KeyBytes = 1024

	// MinCacheTTLSeconds is the minimum TTL honored by the cache product (§4.4 Cache).
	MinCacheTTLSeconds = 60
	// MaxCacheTTLSeconds is the maximum TTL honored by the cache product
	// (§4.4 Cache): a Cache-Control max-age beyond this is clamped down to it.
	MaxCacheTTLSeconds = 86400
)
