package algorithms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionFind(t *testing.T) {
	u := NewUnionFind(5)
	assert.Equal(t, 5, u.CountSets())

	assert.True(t, u.Union(0, 1))
	assert.True(t, u.Union(3, 4))
	assert.False(t, u.Union(1, 0))

	assert.True(t, u.Connected(0, 1))
	assert.False(t, u.Connected(1, 3))
	assert.Equal(t, 3, u.CountSets())

	u.Union(1, 3)
	assert.True(t, u.Connected(0, 4))
	assert.Equal(t, 2, u.CountSets())

	u.Reset()
	assert.Equal(t, 5, u.CountSets())
	assert.False(t, u.Connected(0, 1))
}
