package proxy

import "sync"

// wellKnownRejectedKeys are probed before any round trip: thenable checks
// and symbol-keyed lookups never exist on a proxied object (spec §4.6
// "property access algorithm": "reject symbols and the thenable probe
// ('then') without a round trip").
var wellKnownRejectedKeys = map[string]bool{
	"then":                true,
	"Symbol(Symbol.toPrimitive)": true,
	"Symbol(nodejs.util.inspect.custom)": true,
}

// IsLocallyRejected reports whether key is known to never resolve through
// the bridge, letting callers short-circuit before any Get call.
func IsLocallyRejected(key string) bool {
	return wellKnownRejectedKeys[key]
}

// Stub is a host-side handle for an object that lives inside the child
// runtime's heap (spec §4.6). Its identity is the (address, name) pair
// minted at the epoch it was created under.
type Stub struct {
	addr   int64
	name   string
	epoch  int64
	bridge *Bridge

	mu    sync.Mutex
	known map[string]bool // property name -> present(true)/absent(false)
}

// Addr and Name expose the stub's wire identity, e.g. for logging.
func (s *Stub) Addr() int64    { return s.addr }
func (s *Stub) Name() string   { return s.name }
func (s *Stub) Epoch() int64   { return s.epoch }

func (s *Stub) cachedAbsent(key string) (known, absent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	present, ok := s.known[key]
	if !ok {
		return false, false
	}
	return true, !present
}

func (s *Stub) cacheProperty(key string, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[key] = present
}

// AsValue serializes the stub's identity for use as a method-call
// receiver argument or a nested return value.
func (s *Stub) AsValue() Value { return StubRef(s.addr, s.name) }
