package bus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClientName(t *testing.T) {
	a := DefaultClientName()
	b := DefaultClientName()
	assert.True(t, strings.HasPrefix(a, "simracecenter-agent-"))
	assert.Len(t, a, len("simracecenter-agent-")+8)
	assert.NotEqual(t, a, b)
}

func TestNatsConnectorOptions(t *testing.T) {
	n := NewNatsConnector("nats://localhost:4222", WithClientName("box-1"))
	assert.Equal(t, "box-1", n.name)
	assert.Equal(t, 3, n.maxReconnects)
}
