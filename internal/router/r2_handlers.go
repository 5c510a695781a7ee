package router

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/storage/r2"
)

type r2OnlyIfWire struct {
	EtagMatches      string `json:"etagMatches,omitempty"`
	EtagDoesNotMatch string `json:"etagDoesNotMatch,omitempty"`
	UploadedBefore   int64  `json:"uploadedBefore,omitempty"`
	UploadedAfter    int64  `json:"uploadedAfter,omitempty"`
}

func (o r2OnlyIfWire) toOnlyIf() r2.OnlyIf {
	var c r2.OnlyIf
	c.EtagMatches = o.EtagMatches
	c.EtagDoesNotMatch = o.EtagDoesNotMatch
	if o.UploadedBefore > 0 {
		t := unixTime(o.UploadedBefore)
		c.UploadedBefore = &t
	}
	if o.UploadedAfter > 0 {
		t := unixTime(o.UploadedAfter)
		c.UploadedAfter = &t
	}
	return c
}

type r2PutMeta struct {
	HTTPMetadata   map[string]string `json:"httpMetadata,omitempty"`
	CustomMetadata map[string]string `json:"customMetadata,omitempty"`
	MD5            string            `json:"md5,omitempty"`
	SHA1           string            `json:"sha1,omitempty"`
	SHA256         string            `json:"sha256,omitempty"`
	SHA384         string            `json:"sha384,omitempty"`
	SHA512         string            `json:"sha512,omitempty"`
	OnlyIf         r2OnlyIfWire      `json:"onlyIf,omitempty"`
}

type r2ObjectMeta struct {
	ETag           string            `json:"etag"`
	Size           int64             `json:"size"`
	UploadedAt     string            `json:"uploadedAt"`
	HTTPMetadata   map[string]string `json:"httpMetadata,omitempty"`
	CustomMetadata map[string]string `json:"customMetadata,omitempty"`
}

func (h *handlers) bucket(r *http.Request) (*r2.Bucket, bool) {
	b, ok := h.gw.R2Buckets[chi.URLParam(r, "bucket")]
	return b, ok
}

func (h *handlers) r2Put(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeInvalidObjectName, "no such bucket"))
		return
	}
	rawMeta, value, err := splitMetadataBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var meta r2PutMeta
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			writeError(w, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "malformed metadata segment"))
			return
		}
	}

	opts := r2.PutOptions{
		HTTPMeta:   meta.HTTPMetadata,
		CustomMeta: meta.CustomMetadata,
		Checksums: r2.Checksums{
			MD5: meta.MD5, SHA1: meta.SHA1, SHA256: meta.SHA256, SHA384: meta.SHA384, SHA512: meta.SHA512,
		},
		OnlyIf: meta.OnlyIf.toOnlyIf(),
	}

	rec, err := bucket.Put(r.Context(), chi.URLParam(r, "key"), value, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, r2ObjectMeta{
		ETag: rec.ETag, Size: rec.Size, UploadedAt: rec.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
		HTTPMetadata: rec.HTTPMeta, CustomMetadata: rec.CustomMeta,
	})
}

func (h *handlers) r2Get(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeInvalidObjectName, "no such bucket"))
		return
	}

	var onlyIf r2.OnlyIf
	if v := r.Header.Get("If-Match"); v != "" {
		onlyIf.EtagMatches = v
	}
	if v := r.Header.Get("If-None-Match"); v != "" {
		onlyIf.EtagDoesNotMatch = v
	}

	result, err := bucket.Get(r.Context(), chi.URLParam(r, "key"), onlyIf, r.Header.Get("Range"))
	if err != nil {
		writeError(w, err)
		return
	}

	metaJSON, err := json.Marshal(r2ObjectMeta{
		ETag: result.Record.ETag, Size: result.Record.Size,
		UploadedAt: result.Record.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
		HTTPMetadata: result.Record.HTTPMeta, CustomMetadata: result.Record.CustomMeta,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set(metadataLengthHeader, strconv.Itoa(len(metaJSON)))
	w.Header().Set("Content-Type", "application/octet-stream")
	status := http.StatusOK
	if result.Range != nil {
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(result.Range.Start, 10)+"-"+
			strconv.FormatInt(result.Range.Start+result.Range.Length-1, 10)+"/"+strconv.FormatInt(result.Record.Size, 10))
	}
	w.WriteHeader(status)
	w.Write(metaJSON)
	w.Write(result.Bytes)
}

func (h *handlers) r2Delete(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeInvalidObjectName, "no such bucket"))
		return
	}
	if err := bucket.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) r2List(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeInvalidObjectName, "no such bucket"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	opts := r2.ListOptions{
		Prefix: r.URL.Query().Get("prefix"), Cursor: r.URL.Query().Get("cursor"),
		Limit: limit, StartAfter: r.URL.Query().Get("startAfter"), Delimiter: r.URL.Query().Get("delimiter"),
	}
	for _, v := range r.URL.Query()["include"] {
		opts.Include = append(opts.Include, r2.IncludeField(v))
	}
	result, err := bucket.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) r2CreateMultipart(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeInvalidObjectName, "no such bucket"))
		return
	}
	uploadID, err := bucket.CreateMultipartUpload(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uploadId": uploadID})
}

func (h *handlers) r2UploadPart(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeInvalidObjectName, "no such bucket"))
		return
	}
	partNumber, err := strconv.Atoi(chi.URLParam(r, "partNumber"))
	if err != nil {
		writeError(w, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "invalid part number"))
		return
	}
	value, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	etag, err := bucket.UploadPart(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "uploadId"), partNumber, value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"etag": etag})
}

func (h *handlers) r2CompleteMultipart(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeInvalidObjectName, "no such bucket"))
		return
	}
	var wire struct {
		Parts []r2.CompletedPart `json:"parts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "malformed completion body"))
		return
	}
	rec, err := bucket.CompleteMultipartUpload(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "uploadId"), wire.Parts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, r2ObjectMeta{ETag: rec.ETag, Size: rec.Size, UploadedAt: rec.UploadedAt.Format("2006-01-02T15:04:05Z07:00")})
}

func (h *handlers) r2AbortMultipart(w http.ResponseWriter, r *http.Request) {
	bucket, ok := h.bucket(r)
	if !ok {
		writeError(w, emuerr.NewStorage(emuerr.CodeInvalidObjectName, "no such bucket"))
		return
	}
	if err := bucket.AbortMultipartUpload(r.Context(), chi.URLParam(r, "key"), chi.URLParam(r, "uploadId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
