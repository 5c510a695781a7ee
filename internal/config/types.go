// Package config implements the layered configuration record described in
// spec §3: defaults ◁ file-config ◁ programmatic options, with scalar
// override and array concatenation semantics. The file layer is read as a
// single Options record; it has no per-environment sections.
package config

import "time"

// PersistKind enumerates the accepted forms of a persistence field:
// true (conventional root), false/absent (memory), or a path/URL.
type PersistKind string

const (
	PersistMemory      PersistKind = "memory"
	PersistDefaultRoot PersistKind = "default-root"
	PersistPath        PersistKind = "path"
)

// Persist captures one persistence field after parsing.
type Persist struct {
	Kind PersistKind
	Path string // populated for PersistPath (after stripping a file: scheme, if any)
}

// BindingKind enumerates the mutually-exclusive binding shapes (spec §3
// "Bindings").
type BindingKind string

const (
	BindingJSON          BindingKind = "json"
	BindingText          BindingKind = "text"
	BindingData          BindingKind = "data"
	BindingWasm          BindingKind = "wasm"
	BindingService       BindingKind = "service"
	BindingKVNamespace   BindingKind = "kv_namespace"
	BindingR2Bucket      BindingKind = "r2_bucket"
	BindingD1Database    BindingKind = "d1_database"
	BindingDurableObject BindingKind = "durable_object_namespace"
	BindingQueue         BindingKind = "queue"
	BindingHyperdrive    BindingKind = "hyperdrive"
)

// Binding is a single named binding entry. Exactly one of the value fields
// is populated, selected by Kind.
type Binding struct {
	Name string      `koanf:"name"`
	Kind BindingKind `koanf:"kind"`

	JSONValue    string `koanf:"json,omitempty"`
	TextValue    string `koanf:"text,omitempty"`
	DataValue    []byte `koanf:"data,omitempty"`
	WasmModule   string `koanf:"wasm,omitempty"` // module logical name
	ServiceName  string `koanf:"service,omitempty"`
	NamespaceRef string `koanf:"namespace,omitempty"` // KV/R2/D1/queue/hyperdrive name
	ClassName    string `koanf:"class_name,omitempty"`
}

// ModuleRule maps a glob pattern to a module body kind, per §4.3.
type ModuleRule struct {
	Pattern string `koanf:"pattern"`
	Kind    string `koanf:"kind"` // ESM, CommonJS, NodeJsCompat, Text, Data, CompiledWasm
}

// QueueOptions configures one named queue (spec §4.4 Queues).
type QueueOptions struct {
	Name              string        `koanf:"name"`
	MaxBatchSize      int           `koanf:"max_batch_size"`
	MaxBatchTimeout   time.Duration `koanf:"max_batch_timeout"`
	MaxRetries        int           `koanf:"max_retries"`
	DeadLetterQueue   string        `koanf:"dead_letter_queue,omitempty"`
	Consumer          string        `koanf:"consumer,omitempty"` // worker name bound as consumer
}

// WorkerOptions describes one worker service (spec §3 "Service graph"
// worker variant).
type WorkerOptions struct {
	Name                string       `koanf:"name" validate:"required"`
	CompatibilityDate   string       `koanf:"compatibility_date"`
	CompatibilityFlags  []string     `koanf:"compatibility_flags"`
	ScriptPath          string       `koanf:"script_path,omitempty"`
	Script              string       `koanf:"script,omitempty"`
	ModulesRoot         string       `koanf:"modules_root,omitempty"`
	Rules               []ModuleRule `koanf:"rules"`
	Bindings            []Binding    `koanf:"bindings"`
	DurableObjectClasses []string    `koanf:"durable_object_classes"`
	UniqueKey           string       `koanf:"unique_key,omitempty"`
}

// Options is the programmatic-layer shape, and also what the whole
// file-config layer unmarshals into. Every array field here
// concatenates across layers per Testable Property 1; every scalar field
// overrides.
type Options struct {
	Workers []WorkerOptions `koanf:"workers" validate:"dive"`

	KVNamespaces []string `koanf:"kv_namespaces"`
	KVPersist    string   `koanf:"kv_persist"`

	R2Buckets []string `koanf:"r2_buckets"`
	R2Persist string   `koanf:"r2_persist"`

	CachePersist string `koanf:"cache_persist"`

	Queues []QueueOptions `koanf:"queues"`

	D1Databases []string `koanf:"d1_databases"`
	D1Persist   string   `koanf:"d1_persist"`

	SitesPath          string   `koanf:"sites_path,omitempty"`
	SitesInclude       []string `koanf:"sites_include"`
	SitesExclude       []string `koanf:"sites_exclude"`

	Services []ServiceOptions `koanf:"services" validate:"dive"`

	Host     string `koanf:"host" validate:"required"`
	Port     int    `koanf:"port" validate:"gte=0,lte=65535"`
	Inspector bool  `koanf:"inspector_port_enabled"`

	LogLevel  string `koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=json console"`
}

// ServiceOptions describes an additional named service in the graph beyond
// the implicit worker/loopback/entry services (spec §3 "Service graph").
type ServiceOptions struct {
	Name      string   `koanf:"name" validate:"required"`
	Kind      string   `koanf:"kind"` // external, network, disk
	Address   string   `koanf:"address,omitempty"`
	AllowCIDR []string `koanf:"allow_cidr"`
	DenyCIDR  []string `koanf:"deny_cidr"`
	Path      string   `koanf:"path,omitempty"`
	Writable  bool     `koanf:"writable,omitempty"`
}

// optionsArrayFields lists the koanf keys of every Options field that must
// concatenate across layers instead of overriding; Merge concatenates each
// of them with its own concat* call.
var optionsArrayFields = []string{
	"workers", "kv_namespaces", "r2_buckets", "queues", "d1_databases",
	"sites_include", "sites_exclude", "services",
}
