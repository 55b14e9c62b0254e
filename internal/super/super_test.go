package super

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDev struct{ data []byte }

func newMemDev(n int) *memDev { return &memDev{data: make([]byte, n)} }

func (m *memDev) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.data[off:])
	return n, nil
}
func (m *memDev) WriteAt(p []byte, off int64) (int, error) {
	n := copy(m.data[off:], p)
	return n, nil
}

func sampleSuper() *Super {
	return &Super{
		LogicalBS:       512,
		PhysicalBS:      4096,
		MetadataSize:    10,
		LogChecksumSalt: 0xDEAD,
		UUID:            [16]byte{1, 2, 3, 4},
		Name:            "s1",
		RingBufferSize:  1000,
		OldestLsid:      0,
		WrittenLsid:     0,
		DeviceSize:      65536,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := sampleSuper()
	buf := make([]byte, s.PhysicalBS)
	require.NoError(t, s.Encode(buf))
	Finalize(buf)

	got, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, s.LogicalBS, got.LogicalBS)
	assert.Equal(t, s.PhysicalBS, got.PhysicalBS)
	assert.Equal(t, s.MetadataSize, got.MetadataSize)
	assert.Equal(t, s.Name, got.Name)
	assert.Equal(t, s.RingBufferSize, got.RingBufferSize)
	assert.Equal(t, s.UUID, got.UUID)

	require.NoError(t, Validate(buf, got))
}

func TestValidateRejectsBadChecksum(t *testing.T) {
	s := sampleSuper()
	buf := make([]byte, s.PhysicalBS)
	require.NoError(t, s.Encode(buf))
	Finalize(buf)
	buf[50] ^= 0xFF // corrupt a byte outside the checksum field

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Error(t, Validate(buf, got))
}

func TestValidateRejectsOldestAfterWritten(t *testing.T) {
	s := sampleSuper()
	s.OldestLsid = 500
	s.WrittenLsid = 100
	buf := make([]byte, s.PhysicalBS)
	require.NoError(t, s.Encode(buf))
	Finalize(buf)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Error(t, Validate(buf, got))
}

func TestValidateRejectsRingBound(t *testing.T) {
	s := sampleSuper()
	s.RingBufferSize = 10
	s.OldestLsid = 0
	s.WrittenLsid = 100 // exceeds ring_buffer_size
	buf := make([]byte, s.PhysicalBS)
	require.NoError(t, s.Encode(buf))
	Finalize(buf)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Error(t, Validate(buf, got))
}

func TestReadPairPicksLargerWrittenLsid(t *testing.T) {
	s := sampleSuper()
	dev := newMemDev(int(s.PhysicalBS) * 64)

	require.NoError(t, WritePair(dev, s))

	// Now write a super1-only update with a larger written_lsid directly,
	// simulating a torn write where only the second replica advanced.
	s2 := sampleSuper()
	s2.WrittenLsid = 42
	buf := make([]byte, s2.PhysicalBS)
	require.NoError(t, s2.Encode(buf))
	Finalize(buf)
	_, off1 := Offsets(s2.PhysicalBS, s2.MetadataSize)
	_, err := dev.WriteAt(buf, int64(off1)*int64(s2.PhysicalBS))
	require.NoError(t, err)

	got, err := ReadPair(dev, s.PhysicalBS, s.MetadataSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.WrittenLsid)
}

func TestReadPairBothInvalid(t *testing.T) {
	dev := newMemDev(4096 * 64)
	_, err := ReadPair(dev, 4096, 10)
	assert.Error(t, err)
}

func TestRingBufferSizeFor(t *testing.T) {
	const pbs = 4096
	size := RingBufferSizeFor(pbs, 10, 65536)
	ringOff := RingBufferOffsetBlocks(pbs, 10)
	assert.Equal(t, uint64(65536/(pbs/512))-ringOff, size)
}
