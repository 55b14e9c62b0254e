package blocksize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNLbInPb(t *testing.T) {
	assert.Equal(t, uint32(1), NLbInPb(512))
	assert.Equal(t, uint32(8), NLbInPb(4096))
}

func TestCapacityPb(t *testing.T) {
	assert.Equal(t, uint32(0), CapacityPb(4096, 0))
	assert.Equal(t, uint32(1), CapacityPb(4096, 1))
	assert.Equal(t, uint32(1), CapacityPb(4096, 8))
	assert.Equal(t, uint32(2), CapacityPb(4096, 9))
}

func TestAddrPbAndOffInPb(t *testing.T) {
	assert.Equal(t, uint64(2), AddrPb(4096, 20))
	assert.Equal(t, uint32(4), OffInPb(4096, 20))
}

func TestAddrLbRoundTrip(t *testing.T) {
	const pbs = 4096
	for aPb := uint64(0); aPb < 10; aPb++ {
		aLb := AddrLb(pbs, aPb)
		assert.Equal(t, aPb, AddrPb(pbs, aLb))
		assert.Equal(t, uint32(0), OffInPb(pbs, aLb))
	}
}
