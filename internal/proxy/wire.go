package proxy

// OpKind enumerates the three bridge operations (spec §4.6).
type OpKind string

const (
	OpGet  OpKind = "get"
	OpCall OpKind = "call"
	OpFree OpKind = "free"
)

// ResultType mirrors the "result type" header the algorithm branches on
// (spec §4.6 step 5: plain value vs Function vs Promise vs ReadableStream).
type ResultType string

const (
	ResultPlain           ResultType = "plain"
	ResultFunction        ResultType = "function"
	ResultPromise         ResultType = "promise"
	ResultReadableStream  ResultType = "readable-stream"
	ResultPromiseAndBytes ResultType = "promise+readable-stream"
)

// OpRequest is the envelope sent across the transport for a GET/CALL/FREE.
type OpRequest struct {
	Op     OpKind  `json:"op"`
	Addr   int64   `json:"addr"`
	Name   string  `json:"name"`
	Epoch  int64   `json:"epoch"`
	Key    string  `json:"key,omitempty"`
	Method string  `json:"method,omitempty"`
	Args   []Value `json:"args,omitempty"`
	Sync   bool    `json:"sync"`
}

// OpResponse is the envelope read back from the transport.
type OpResponse struct {
	ResultType ResultType `json:"resultType"`
	Value      Value      `json:"value"`
	// StringifiedSize lets the caller decide whether JSON.stringify would
	// have been cheaper than the proxy round trip (spec §4.6 "known
	// properties cache" / fast-path note).
	StringifiedSize int64  `json:"stringifiedSize,omitempty"`
	ErrorStack      string `json:"errorStack,omitempty"`
}

// knownPropsHeader is the cached-properties hint a GET response may carry so
// later property accesses on the same stub can skip the round trip for
// properties already known to be absent (spec §4.6 design note).
type knownPropsHeader struct {
	Present []string `json:"present,omitempty"`
	Absent  []string `json:"absent,omitempty"`
}
