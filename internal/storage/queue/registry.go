// Package queue implements the Queues storage simulator (spec §4.4
// "Queues"): a broker per instance enforcing one consumer per queue,
// message/batch size limits, and the absence of dead-letter-queue cycles.
// The broker publishes and subscribes; it does not deliver batches to a
// consumer, retry failed deliveries, or route messages to a dead-letter
// queue.
package queue

import (
	"github.com/localdev/hostd/internal/emuerr"
)

// Definition is one configured queue (spec §3 QueueOptions, mirrored here
// to keep this package decoupled from internal/config).
type Definition struct {
	Name            string
	MaxBatchSize    int
	MaxRetries      int
	DeadLetterQueue string
	Consumer        string // worker name bound as consumer; "" means none yet
}

// Registry enforces configuration-time invariants across the set of
// queues in one instance: at most one consumer per queue (spec §4.4:
// "Each queue has at most one consumer ... violation → ERR_MULTIPLE_CONSUMERS")
// and no dead-letter cycles (ERR_DEAD_LETTER_QUEUE_CYCLE).
type Registry struct {
	queues map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]Definition)}
}

// Add registers a queue definition, validating consumer uniqueness as it
// goes (each call registers one queue; a duplicate registration with a
// different consumer is the configuration-time violation).
func (r *Registry) Add(def Definition) error {
	if existing, ok := r.queues[def.Name]; ok && existing.Consumer != "" && def.Consumer != "" && existing.Consumer != def.Consumer {
		return emuerr.New(emuerr.KindQueue, emuerr.CodeMultipleConsumers, "queue "+def.Name+" already has a consumer")
	}
	r.queues[def.Name] = def
	return nil
}

// Validate checks the whole registered set for dead-letter cycles, meant
// to run once after all queues for an instance are registered (spec §4.4:
// "Dead-letter queues must not form cycles").
func (r *Registry) Validate() error {
	for name := range r.queues {
		if err := r.checkCycle(name, make(map[string]bool)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) checkCycle(name string, visiting map[string]bool) error {
	if visiting[name] {
		return emuerr.New(emuerr.KindQueue, emuerr.CodeDeadLetterQueueCycle, "dead-letter queue cycle detected at "+name)
	}
	def, ok := r.queues[name]
	if !ok || def.DeadLetterQueue == "" {
		return nil
	}
	visiting[name] = true
	return r.checkCycle(def.DeadLetterQueue, visiting)
}

// Get returns a registered queue definition.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.queues[name]
	return def, ok
}
