package router

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/localdev/hostd/internal/emuerr"
	"github.com/localdev/hostd/internal/storage/queue"
)

type queueMessageWire struct {
	Body        string             `json:"body"` // base64 for batch entries
	ContentType queue.ContentType  `json:"contentType,omitempty"`
}

func (h *handlers) queueSendMessage(w http.ResponseWriter, r *http.Request) {
	if h.gw.Queues == nil {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no queue broker configured"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	ct := queue.ContentType(r.Header.Get("X-Hostd-Content-Type"))
	if ct == "" {
		ct = queue.ContentBinary
	}
	msg := queue.Message{Body: body, ContentType: ct}
	if err := queue.ValidateMessage(msg); err != nil {
		writeError(w, err)
		return
	}
	if err := h.gw.Queues.Publish(r.Context(), chi.URLParam(r, "queue"), []queue.Message{msg}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) queueSendBatch(w http.ResponseWriter, r *http.Request) {
	if h.gw.Queues == nil {
		writeError(w, emuerr.NewStorage(emuerr.CodeNoSuchKey, "no queue broker configured"))
		return
	}
	var wire struct {
		Messages []queueMessageWire `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "malformed batch body"))
		return
	}

	messages := make([]queue.Message, 0, len(wire.Messages))
	for _, m := range wire.Messages {
		body, err := base64.StdEncoding.DecodeString(m.Body)
		if err != nil {
			writeError(w, emuerr.New(emuerr.KindStorage, emuerr.CodeSchemaInvalid, "malformed message body encoding"))
			return
		}
		ct := m.ContentType
		if ct == "" {
			ct = queue.ContentBinary
		}
		messages = append(messages, queue.Message{Body: body, ContentType: ct})
	}

	if err := h.gw.Queues.Publish(r.Context(), chi.URLParam(r, "queue"), messages); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
