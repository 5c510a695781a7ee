package queue

import (
	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/emuerr"
)

// ContentType tags how a message body was encoded (spec §4.4: "Enqueue
// accepts text, json, binary, or serialized formats and a content-type
// tag").
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentJSON       ContentType = "json"
	ContentBinary     ContentType = "bytes"
	ContentSerialized ContentType = "v8"
)

// Message is one queue message prior to batching.
type Message struct {
	Body        []byte
	ContentType ContentType
}

// ValidateMessage enforces the per-message size limit (spec §4.4: message
// ≤ 128 KB).
func ValidateMessage(m Message) error {
	if len(m.Body) > config.MaxQueueMessageBytes {
		return emuerr.New(emuerr.KindQueue, emuerr.CodePayloadTooLarge, "message exceeds maximum queue message size")
	}
	return nil
}

// ValidateBatch enforces the per-batch count and byte-size limits (spec
// §4.4: batch count ≤ 100, batch bytes ≤ 288 KB).
func ValidateBatch(messages []Message) error {
	if len(messages) > config.MaxQueueBatchCount {
		return emuerr.New(emuerr.KindQueue, emuerr.CodePayloadTooLarge, "batch exceeds maximum message count")
	}
	var total int
	for _, m := range messages {
		if err := ValidateMessage(m); err != nil {
			return err
		}
		total += len(m.Body)
	}
	if total > config.MaxQueueBatchBytes {
		return emuerr.New(emuerr.KindQueue, emuerr.CodePayloadTooLarge, "batch exceeds maximum total byte size")
	}
	return nil
}
