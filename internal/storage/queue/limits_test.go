package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localdev/hostd/internal/config"
)

func TestValidateMessageRejectsOversized(t *testing.T) {
	m := Message{Body: make([]byte, config.MaxQueueMessageBytes+1)}
	require.Error(t, ValidateMessage(m))
}

func TestValidateMessageAcceptsWithinLimit(t *testing.T) {
	m := Message{Body: make([]byte, config.MaxQueueMessageBytes)}
	assert.NoError(t, ValidateMessage(m))
}

func TestValidateBatchRejectsTooManyMessages(t *testing.T) {
	messages := make([]Message, config.MaxQueueBatchCount+1)
	for i := range messages {
		messages[i] = Message{Body: []byte("x")}
	}
	require.Error(t, ValidateBatch(messages))
}

func TestValidateBatchRejectsTotalBytesOverLimit(t *testing.T) {
	messages := []Message{
		{Body: make([]byte, config.MaxQueueBatchBytes/3+1)},
		{Body: make([]byte, config.MaxQueueBatchBytes/3+1)},
		{Body: make([]byte, config.MaxQueueBatchBytes/3+1)},
	}
	require.Error(t, ValidateBatch(messages))
}

func TestValidateBatchAcceptsWithinLimits(t *testing.T) {
	messages := []Message{{Body: []byte("a")}, {Body: []byte("b")}}
	assert.NoError(t, ValidateBatch(messages))
}
