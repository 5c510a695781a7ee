package router

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localdev/hostd/internal/storage/blobstore"
	"github.com/localdev/hostd/internal/storage/cache"
	"github.com/localdev/hostd/internal/storage/kv"
	"github.com/localdev/hostd/internal/storage/r2"
	"github.com/localdev/hostd/internal/storage/relational"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	store, err := blobstore.Open(blobstore.Config{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gw := NewGateway()
	gw.KVNamespaces["default"] = kv.New(store)
	gw.R2Buckets["default"] = r2.New(store)
	gw.CachePartitions[cache.DefaultPartition] = cache.New(store, cache.DefaultPartition)

	db := relational.NewDatabase()
	require.NoError(t, db.Exec(`CREATE TABLE t(id INTEGER PRIMARY KEY, n TEXT)`))
	require.NoError(t, db.Exec(`INSERT INTO t VALUES (1, 'a')`))
	gw.Relational["default"] = db

	return gw
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gw := newTestGateway(t)
	srv := httptest.NewServer(New(gw, DefaultConfig()))
	t.Cleanup(srv.Close)
	return srv
}

func putWithMetadata(t *testing.T, method, url string, meta interface{}, value []byte) *http.Response {
	t.Helper()
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)
	body := append(append([]byte{}, metaJSON...), value...)

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(metadataLengthHeader, strconv.Itoa(len(metaJSON)))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestKVPutThenGetRoundTrips(t *testing.T) {
	srv := newTestServer(t)

	resp := putWithMetadata(t, http.MethodPut, srv.URL+"/kv/default/values/greeting",
		kvPutMeta{Metadata: map[string]string{"lang": "en"}}, []byte("hello"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/kv/default/values/greeting")
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	n, err := strconv.Atoi(getResp.Header.Get(metadataLengthHeader))
	require.NoError(t, err)
	body, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)

	var meta kvGetMeta
	require.NoError(t, json.Unmarshal(body[:n], &meta))
	assert.Equal(t, "en", meta.Metadata["lang"])
	assert.Equal(t, "hello", string(body[n:]))
}

func TestKVGetMissingKeyReturnsNoSuchKeyEnvelope(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/kv/default/values/absent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "NoSuchKey", env.V4Code)
}

func TestR2PutThenGetRoundTrips(t *testing.T) {
	srv := newTestServer(t)

	resp := putWithMetadata(t, http.MethodPut, srv.URL+"/r2/default/objects/report.csv",
		r2PutMeta{CustomMetadata: map[string]string{"owner": "ops"}}, []byte("a,b,c"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/r2/default/objects/report.csv")
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	n, err := strconv.Atoi(getResp.Header.Get(metadataLengthHeader))
	require.NoError(t, err)
	body, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)

	var meta r2ObjectMeta
	require.NoError(t, json.Unmarshal(body[:n], &meta))
	assert.Equal(t, "ops", meta.CustomMetadata["owner"])
	assert.Equal(t, "a,b,c", string(body[n:]))
}

func TestCachePutThenMatchRoundTrips(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/cache/page-1", bytes.NewReader([]byte("<html></html>")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/html")
	req.Header.Set(cacheStatusHeader, "200")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	matchResp, err := http.Get(srv.URL + "/cache/page-1")
	require.NoError(t, err)
	defer matchResp.Body.Close()
	require.Equal(t, http.StatusOK, matchResp.StatusCode)
	assert.Equal(t, "text/html", matchResp.Header.Get("Content-Type"))
	body, err := io.ReadAll(matchResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(body))
}

func TestRelationalBatchFailureRollsBackOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	payload, err := json.Marshal(map[string]interface{}{
		"statements": []string{
			`INSERT INTO t VALUES (2, 'b')`,
			`BADSQL`,
			`INSERT INTO t VALUES (3, 'c')`,
		},
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/d1/default/batch", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	queryPayload, err := json.Marshal(map[string]string{"sql": "SELECT n FROM t"})
	require.NoError(t, err)
	queryResp, err := http.Post(srv.URL+"/d1/default/query", "application/json", bytes.NewReader(queryPayload))
	require.NoError(t, err)
	defer queryResp.Body.Close()
	require.Equal(t, http.StatusOK, queryResp.StatusCode)

	var out struct {
		Results []map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(queryResp.Body).Decode(&out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "a", out.Results[0]["n"])
}

func TestQueueSendMessageWithoutConfiguredBrokerReturnsNoSuchKey(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/queues/default/message", "application/octet-stream", bytes.NewReader([]byte("hi")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "NoSuchKey", env.V4Code)
}
