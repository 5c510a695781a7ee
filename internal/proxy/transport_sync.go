package proxy

import (
	"context"
	"net/http"
)

// syncTransport serializes every synchronous call through one dedicated
// goroutine, the moral equivalent of the runtime's own single worker thread
// blocking on a futex wait (spec §4.6 "Synchronous transport"): from the
// caller's perspective Do blocks, but only one in-flight request is ever
// outstanding against the underlying client at a time, so a wedged request
// can't be raced by a second one reusing the same connection.
type syncTransport struct {
	client *http.Client
	reqCh  chan syncJob
}

type syncJob struct {
	req     *http.Request
	replyCh chan syncResult
}

type syncResult struct {
	resp *http.Response
	err  error
}

func newSyncTransport(client *http.Client) *syncTransport {
	t := &syncTransport{client: client, reqCh: make(chan syncJob)}
	go t.loop()
	return t
}

func (t *syncTransport) loop() {
	for job := range t.reqCh {
		resp, err := t.client.Do(job.req)
		job.replyCh <- syncResult{resp: resp, err: err}
	}
}

// Do blocks the calling goroutine until the dedicated transport goroutine
// has completed the round trip.
func (t *syncTransport) Do(req *http.Request) (*http.Response, error) {
	replyCh := make(chan syncResult, 1)
	select {
	case t.reqCh <- syncJob{req: req, replyCh: replyCh}:
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	select {
	case r := <-replyCh:
		return r.resp, r.err
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
}

func (t *syncTransport) close() { close(t.reqCh) }

// withContext returns req bound to ctx, so a request issued over the sync
// transport honors ctx cancellation even though the transport goroutine
// itself is shared across all callers. Nothing in the package calls it.
func withContext(ctx context.Context, req *http.Request) *http.Request {
	return req.WithContext(ctx)
}
