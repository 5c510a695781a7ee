package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsConflictingConsumer(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Definition{Name: "orders", Consumer: "worker-a"}))
	err := r.Add(Definition{Name: "orders", Consumer: "worker-b"})
	require.Error(t, err)
}

func TestAddAllowsSameConsumerReregistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Definition{Name: "orders", Consumer: "worker-a"}))
	require.NoError(t, r.Add(Definition{Name: "orders", Consumer: "worker-a"}))
}

func TestValidateDetectsDirectCycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Definition{Name: "a", DeadLetterQueue: "b"}))
	require.NoError(t, r.Add(Definition{Name: "b", DeadLetterQueue: "a"}))
	require.Error(t, r.Validate())
}

func TestValidateDetectsSelfCycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Definition{Name: "a", DeadLetterQueue: "a"}))
	require.Error(t, r.Validate())
}

func TestValidateAllowsAcyclicChain(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Definition{Name: "a", DeadLetterQueue: "b"}))
	require.NoError(t, r.Add(Definition{Name: "b", DeadLetterQueue: "c"}))
	require.NoError(t, r.Add(Definition{Name: "c"}))
	assert.NoError(t, r.Validate())
}

func TestGetReturnsRegisteredDefinition(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(Definition{Name: "a", MaxRetries: 5}))
	def, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 5, def.MaxRetries)
}
