package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessLevel_Ordering(t *testing.T) {
	assert.Less(t, None, ReadOnly)
	assert.Less(t, ReadOnly, ReadWrite)
}

func TestMerge(t *testing.T) {
	assert.Equal(t, ReadWrite, Merge(ReadOnly, ReadWrite))
	assert.Equal(t, ReadWrite, Merge(ReadWrite, None))
	assert.Equal(t, ReadOnly, Merge(None, ReadOnly))
	assert.Equal(t, None, Merge(None, None))
}

func TestAccessLevel_StringRoundTrip(t *testing.T) {
	for _, lvl := range []AccessLevel{None, ReadOnly, ReadWrite} {
		assert.Equal(t, lvl, ParseAccessLevel(lvl.String()))
	}
	assert.Equal(t, None, ParseAccessLevel("garbage"))
}

func TestSource_StringRoundTrip(t *testing.T) {
	assert.Equal(t, SourceCollection, ParseSource(SourceCollection.String()))
	assert.Equal(t, SourceExternal, ParseSource(SourceExternal.String()))
	assert.Equal(t, SourceCollection, ParseSource("garbage"))
}
