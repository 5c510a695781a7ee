// Package router implements the HTTP loopback surface (spec §4.5): each
// storage simulator attaches routes under its own path prefix, metadata and
// binary value share one request/response body with a header giving the
// metadata segment's length, and errors are JSON-encoded with a stable
// `v4code` field.
package router

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/logging"
)

// metadataLengthHeader names the header carrying the byte length of the
// metadata segment at the front of a request/response body (spec §4.5:
// "prefixed by a metadata length also sent in a header").
const metadataLengthHeader = "X-Hostd-Metadata-Length"

// ErrorEnvelope is the stable JSON shape for every non-2xx response.
type ErrorEnvelope struct {
	V4Code      string                        `json:"v4code"`
	Message     string                        `json:"message"`
	Precondition *emuerr.PreconditionEnvelope `json:"precondition,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("router: failed to encode JSON response")
	}
}

// writeError translates err into the stable envelope and an HTTP status
// derived from its emuerr.Kind/Code, defaulting to 500 for anything that
// isn't a recognized *emuerr.Error.
func writeError(w http.ResponseWriter, err error) {
	if storageErr, ok := err.(*emuerr.StorageError); ok {
		env := ErrorEnvelope{V4Code: storageErr.Code, Message: storageErr.Message, Precondition: storageErr.Envelope}
		writeJSON(w, statusForCode(storageErr.Code), env)
		return
	}

	if e, ok := emuerr.As(err); ok {
		writeJSON(w, statusForCode(e.Code), ErrorEnvelope{V4Code: e.Code, Message: e.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorEnvelope{V4Code: "ERR_INTERNAL", Message: err.Error()})
}

func statusForCode(code string) int {
	switch code {
	case emuerr.CodeNoSuchKey, emuerr.CodeNoSuchUpload:
		return http.StatusNotFound
	case emuerr.CodeEntityTooLarge, emuerr.CodeMetadataTooLarge, emuerr.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case emuerr.CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case emuerr.CodeInvalidRange:
		return http.StatusRequestedRangeNotSatisfiable
	case emuerr.CodeInvalidObjectName, emuerr.CodeInvalidMaxKeys, emuerr.CodeInvalidPart,
		emuerr.CodeBadDigest, emuerr.CodeBadUpload, emuerr.CodeSchemaInvalid:
		return http.StatusBadRequest
	case emuerr.CodeMultipleConsumers, emuerr.CodeDeadLetterQueueCycle:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
