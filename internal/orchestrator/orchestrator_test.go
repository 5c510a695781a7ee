package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/localdev/hostd/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredSocketsIncludesEntry(t *testing.T) {
	g, err := graph.NewBuilder().AddEntry("127.0.0.1:0").Build()
	require.NoError(t, err)

	sockets := requiredSockets(g)
	assert.Contains(t, sockets, graph.EntryServiceName)
}

func TestControlEventUnmarshalsListen(t *testing.T) {
	var ev ControlEvent
	require.NoError(t, json.Unmarshal([]byte(`{"event":"listen","socket":"main","port":8080}`), &ev))
	assert.Equal(t, "listen", ev.Event)
	assert.Equal(t, "main", ev.Socket)
	assert.Equal(t, 8080, ev.Port)
}
