package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetOfLsid(t *testing.T) {
	m := Map{RingBufferOffset: 100, RingBufferSize: 1000}

	assert.Equal(t, uint64(100), m.OffsetOfLsid(0))
	assert.Equal(t, uint64(150), m.OffsetOfLsid(50))
	assert.Equal(t, uint64(100), m.OffsetOfLsid(1000))
	assert.Equal(t, uint64(101), m.OffsetOfLsid(1001))
}
