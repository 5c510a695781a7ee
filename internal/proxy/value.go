// Package proxy implements the Proxy Bridge (spec §4.6): reference-tracking
// stubs for objects that live inside the child runtime, a dual
// synchronous/asynchronous transport, and a cycle-preserving-ish serializer
// with reducers for requests/responses, headers, blobs/streams, and stubs.
package proxy

// ValueKind enumerates the serializer's sum type (spec §9 design note:
// "Value ∈ { Primitive | Stub | Method(name, stub) | Stream }").
type ValueKind string

const (
	KindPrimitive ValueKind = "primitive"
	KindStubRef   ValueKind = "stub"
	KindMethod    ValueKind = "method"
	KindStream    ValueKind = "stream"
)

// Value is the wire representation of anything that crosses the bridge:
// arguments, return values, and the stub-identity markers the serializer
// recognizes per spec §4.6 ("stubs: written as {address, name}").
type Value struct {
	Kind ValueKind `json:"kind"`

	// Primitive holds any JSON-representable scalar/array/object value.
	Primitive interface{} `json:"primitive,omitempty"`

	// StubAddr/StubName populate KindStubRef and KindMethod.
	StubAddr int64  `json:"address,omitempty"`
	StubName string `json:"name,omitempty"`

	// MethodName populates KindMethod (a callable whose identity is the
	// property name, spec §4.6 algorithm step 4).
	MethodName string `json:"method,omitempty"`

	// StreamID is the out-of-band marker for an unbuffered stream (spec
	// §4.6 "unbuffered → out-of-band marker"). Buffered streams instead
	// serialize as Primitive bytes.
	StreamID string `json:"streamId,omitempty"`
}

// Prim wraps a plain value.
func Prim(v interface{}) Value { return Value{Kind: KindPrimitive, Primitive: v} }

// StubRef wraps a stub reference for the wire.
func StubRef(addr int64, name string) Value {
	return Value{Kind: KindStubRef, StubAddr: addr, StubName: name}
}

// Method wraps a synthesized callable accessor (spec §4.6 algorithm step 4).
func Method(addr int64, name string) Value {
	return Value{Kind: KindMethod, StubAddr: addr, MethodName: name}
}

// Stream wraps an out-of-band stream marker.
func Stream(id string) Value { return Value{Kind: KindStream, StreamID: id} }

// IsPromise reports whether a parsed value is a runtime-side Promise stub,
// which per §4.6 step 5 requires an additional async GET to resolve.
func (v Value) IsPromise() bool {
	return v.Kind == KindStubRef && v.StubName == "Promise"
}
