package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

func TestRoundRobin_Rotates(t *testing.T) {
	var b RoundRobin
	servers := []cluster.Server{serverA, serverB, serverC}

	assert.Equal(t, []cluster.Server{serverA, serverB, serverC}, b.Next(servers))
	assert.Equal(t, []cluster.Server{serverB, serverC, serverA}, b.Next(servers))
	assert.Equal(t, []cluster.Server{serverC, serverA, serverB}, b.Next(servers))
	assert.Equal(t, []cluster.Server{serverA, serverB, serverC}, b.Next(servers))
}

func TestRoundRobin_Empty(t *testing.T) {
	var b RoundRobin
	assert.Nil(t, b.Next(nil))
}

func TestRoundRobin_ListShrinks(t *testing.T) {
	var b RoundRobin
	b.Next([]cluster.Server{serverA, serverB, serverC})
	b.Next([]cluster.Server{serverA, serverB, serverC})

	got := b.Next([]cluster.Server{serverA})
	assert.Equal(t, []cluster.Server{serverA}, got)
}
