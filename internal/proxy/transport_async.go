package proxy

import "net/http"

// asyncTransport issues requests directly against the shared HTTP client.
// Unlike syncTransport it allows arbitrarily many requests in flight, which
// is how the bridge represents asynchronous property accesses and method
// calls that return Promises/ReadableStreams (spec §4.6 "Asynchronous
// transport").
type asyncTransport struct {
	client *http.Client
}

func newAsyncTransport(client *http.Client) *asyncTransport {
	return &asyncTransport{client: client}
}

func (t *asyncTransport) Do(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}
