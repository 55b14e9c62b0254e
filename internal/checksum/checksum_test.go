package checksum

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumZeroingRoundTrip(t *testing.T) {
	// Invariant 5 of spec §8 / the §4.2 invariant: placing the checksum
	// field anywhere in the buffer, zeroing it, then writing
	// Checksum(buf, salt) back into that field makes a subsequent
	// Checksum(buf, salt) == 0.
	const salt = 0xCAFEBABE
	buf := make([]byte, 64)
	rand.New(rand.NewSource(1)).Read(buf)
	// checksum field lives at offset 8, 4 bytes wide.
	binary.LittleEndian.PutUint32(buf[8:12], 0)

	sum := Checksum(buf, salt)
	binary.LittleEndian.PutUint32(buf[8:12], sum)

	assert.True(t, IsZero(buf, salt))
}

func TestPartialConcatInvariance(t *testing.T) {
	// Invariant 5 of spec §8: checksum is invariant to how a buffer is
	// partitioned into 4-byte-aligned segments, provided partials are
	// concatenated in order.
	buf := make([]byte, 256)
	rand.New(rand.NewSource(2)).Read(buf)
	const salt = 12345

	whole := Checksum(buf, salt)

	var sum uint64
	for _, cut := range []int{4, 16, 64, 100, 200} {
		sum = Partial(0, buf[:cut])
		sum = Partial(sum, buf[cut:])
		require.Equal(t, whole, Finish(sum, salt), "split at %d", cut)
	}
}

func TestFinishSaturatesToZero(t *testing.T) {
	// Finish must map the reserved all-ones sentinel to 0: with sum=0 and
	// salt=1, folded=1, so ^folded+1 == 0xffffffff before the saturating
	// remap.
	got := Finish(0, 1)
	assert.Equal(t, uint32(0), got)
}

func TestPartialPanicsOnUnalignedLength(t *testing.T) {
	assert.Panics(t, func() {
		Partial(0, make([]byte, 5))
	})
}
