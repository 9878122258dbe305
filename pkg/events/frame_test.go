package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameAssemblerSplitChunks(t *testing.T) {
	var fa FrameAssembler

	_, ok := fa.Append([]byte(`{"v":2`))
	assert.False(t, ok)
	_, ok = fa.Append([]byte(`,"eventNum":"1","event":"x","results":[`))
	assert.False(t, ok)
	msg, ok := fa.Append([]byte(`],"eof":"1"}`))
	assert.True(t, ok)
	assert.Equal(t, `{"v":2,"eventNum":"1","event":"x","results":[],"eof":"1"}`, msg)

	// buffer resets after emission
	assert.Equal(t, 0, fa.Len())
}

func TestFrameAssemblerSingleChunk(t *testing.T) {
	var fa FrameAssembler
	msg, ok := fa.Append([]byte(`{"v":2,"results":[],"eof":"1"}`))
	assert.True(t, ok)
	assert.Equal(t, `{"v":2,"results":[],"eof":"1"}`, msg)
}

func TestFrameAssemblerStripsNewlines(t *testing.T) {
	var fa FrameAssembler
	msg, ok := fa.Append([]byte("{\"v\":2,\n\"results\":[],\"eof\":\"1\"}\n"))
	assert.True(t, ok)
	assert.Equal(t, `{"v":2,"results":[],"eof":"1"}`, msg)
}

func TestFrameAssemblerWholeBufferEmitted(t *testing.T) {
	// back-to-back messages in one buffer come out as a single message;
	// the decoder rejects the merge and the session moves on
	var fa FrameAssembler
	two := `{"v":2,"results":[],"eof":"1"}{"v":2,"results":[],"eof":"1"}`
	msg, ok := fa.Append([]byte(two))
	assert.True(t, ok)
	assert.Equal(t, two, msg)
	assert.Equal(t, 0, fa.Len())
}

func TestFrameAssemblerReset(t *testing.T) {
	var fa FrameAssembler
	_, ok := fa.Append([]byte(`{"v":2,"results":[`))
	assert.False(t, ok)
	fa.Reset()
	assert.Equal(t, 0, fa.Len())
}
