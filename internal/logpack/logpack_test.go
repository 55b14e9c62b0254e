package logpack

import (
	"bytes"
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

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	r := Record{
		Checksum:  0x1234,
		Exist:     true,
		Kind:      KindDiscard,
		Lsid:      100,
		LsidLocal: 5,
		IOSize:    1 << 20,
		Offset:    999,
	}
	buf := make([]byte, RecordSize)
	r.Encode(buf)
	got := DecodeRecord(buf)
	assert.Equal(t, r, got)
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	const pbs = 512
	h := &Header{
		LogpackLsid: 10,
		TotalIOSize: 2,
		Records: []Record{
			{Exist: true, Kind: KindNormal, Lsid: 11, LsidLocal: 1, IOSize: 1, Offset: 0},
			{Exist: true, Kind: KindNormal, Lsid: 12, LsidLocal: 2, IOSize: 1, Offset: 1},
		},
	}
	buf := make([]byte, pbs)
	require.NoError(t, h.Encode(buf, pbs))
	Finalize(buf, 42)

	got, err := DecodeHeader(buf, pbs)
	require.NoError(t, err)
	assert.Equal(t, h.LogpackLsid, got.LogpackLsid)
	assert.Equal(t, h.Records, got.Records)
	require.NoError(t, Validate(buf, got, pbs, 42))
}

func TestEndMarkerValidWithoutChecksum(t *testing.T) {
	const pbs = 512
	h := EndMarker()
	buf := make([]byte, pbs)
	require.NoError(t, h.Encode(buf, pbs))
	// deliberately do not finalize a checksum

	got, err := DecodeHeader(buf, pbs)
	require.NoError(t, err)
	assert.True(t, got.IsEndMarker())
	assert.NoError(t, Validate(buf, got, pbs, 123))
}

func TestGetNextLsid(t *testing.T) {
	h := &Header{LogpackLsid: 100, TotalIOSize: 0, Records: nil}
	assert.Equal(t, uint64(100), h.GetNextLsid())

	h2 := &Header{LogpackLsid: 100, TotalIOSize: 5, Records: []Record{{}}}
	assert.Equal(t, uint64(106), h2.GetNextLsid())
}

func TestBuildPackAndWriteReadRoundTrip(t *testing.T) {
	// Round-trip law (spec §8): write a pack then read it back with
	// the same header and all records valid.
	const pbs = 4096
	const salt = 0xABCD
	reqs := []WriteRequest{
		{OffsetLb: 16, IOSizeLb: 8, Payload: bytes.Repeat([]byte{0xAB}, 8*512)},
		{OffsetLb: 32, IOSizeLb: 8, Payload: bytes.Repeat([]byte{0xCD}, 8*512)},
	}
	pack, err := BuildPack(pbs, salt, 5, reqs)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), pack.Header.TotalIOSize)

	dev := newMemDev(pbs * 16)
	require.NoError(t, pack.WriteTo(dev, pbs, 1))

	h, err := ReadHeaderFromDevice(dev, pbs, salt, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, pack.Header.Records, h.Records)

	arr, nValid, err := ReadDataFromDevice(dev, h, pbs, salt, 1)
	require.NoError(t, err)
	assert.Equal(t, len(h.Records), nValid)
	assert.Equal(t, 2, arr.Len())
}

func TestBuildPackInsertsPaddingAfterDiscard(t *testing.T) {
	const pbs = 4096
	const salt = 1
	reqs := []WriteRequest{
		{OffsetLb: 0, IOSizeLb: 8, Payload: bytes.Repeat([]byte{1}, 8*512)},
		{OffsetLb: 8, IOSizeLb: 8192, Discard: true},
		{OffsetLb: 16, IOSizeLb: 8, Payload: bytes.Repeat([]byte{2}, 8*512)},
	}
	pack, err := BuildPack(pbs, salt, 0, reqs)
	require.NoError(t, err)

	require.Equal(t, uint16(1), pack.Header.NPadding)

	var paddingCount int
	for _, r := range pack.Header.Records {
		if r.Kind == KindPadding {
			paddingCount++
		}
	}
	assert.Equal(t, 1, paddingCount)

	// A discard contributes zero capacity_pb, so it must not advance
	// lsid_local: the discard and the padding inserted after it share the
	// same lsid_local, and the following normal record resumes counting
	// from the padding's one block.
	require.Len(t, pack.Header.Records, 4)
	normal0, discard, pad, normal1 := pack.Header.Records[0], pack.Header.Records[1], pack.Header.Records[2], pack.Header.Records[3]
	assert.Equal(t, uint64(1), normal0.LsidLocal)
	assert.Equal(t, uint64(1), normal0.Lsid)
	assert.Equal(t, uint64(2), discard.LsidLocal)
	assert.Equal(t, uint64(2), discard.Lsid)
	assert.Equal(t, uint64(2), pad.LsidLocal)
	assert.Equal(t, uint64(2), pad.Lsid)
	assert.Equal(t, uint64(3), normal1.LsidLocal)
	assert.Equal(t, uint64(3), normal1.Lsid)

	nextLsid := pack.Header.GetNextLsid()
	for _, r := range pack.Header.Records {
		assert.Less(t, r.Lsid, nextLsid)
	}

	// Serialize and re-parse: the header should reproduce bit-exactly.
	dev := newMemDev(pbs * 16)
	require.NoError(t, pack.WriteTo(dev, pbs, 0))
	h, err := ReadHeaderFromDevice(dev, pbs, salt, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, pack.Header.Records, h.Records)
}

// TestBuildPackMultiPackContinuityAcrossDiscard checks that a pack's
// get_next_lsid lines up exactly with the following pack's logpack_lsid
// even when the first pack contains a discard, and that no record's lsid
// lands on that boundary.
func TestBuildPackMultiPackContinuityAcrossDiscard(t *testing.T) {
	const pbs = 4096
	const salt = 1
	reqs := []WriteRequest{
		{OffsetLb: 0, IOSizeLb: 8, Payload: bytes.Repeat([]byte{1}, 8*512)},
		{OffsetLb: 8, IOSizeLb: 8192, Discard: true},
		{OffsetLb: 16, IOSizeLb: 8, Payload: bytes.Repeat([]byte{2}, 8*512)},
	}
	pack0, err := BuildPack(pbs, salt, 100, reqs)
	require.NoError(t, err)

	nextLsid := pack0.Header.GetNextLsid()
	for _, r := range pack0.Header.Records {
		assert.Less(t, r.Lsid, nextLsid)
	}

	pack1, err := BuildPack(pbs, salt, nextLsid, []WriteRequest{
		{OffsetLb: 32, IOSizeLb: 8, Payload: bytes.Repeat([]byte{3}, 8*512)},
	})
	require.NoError(t, err)
	assert.Equal(t, nextLsid, pack1.Header.LogpackLsid)
	assert.Equal(t, nextLsid+1, pack1.Header.Records[0].Lsid)
}

func TestReadDataDetectsCorruptedPayload(t *testing.T) {
	const pbs = 4096
	const salt = 7
	reqs := []WriteRequest{
		{OffsetLb: 0, IOSizeLb: 8, Payload: bytes.Repeat([]byte{1}, 8*512)},
		{OffsetLb: 8, IOSizeLb: 8, Payload: bytes.Repeat([]byte{2}, 8*512)},
	}
	pack, err := BuildPack(pbs, salt, 0, reqs)
	require.NoError(t, err)

	dev := newMemDev(pbs * 16)
	require.NoError(t, pack.WriteTo(dev, pbs, 0))

	// Flip a byte in the second record's payload region (second physical
	// block of the payload, which starts right after the header sector).
	dev.data[int(pbs)*2] ^= 0xFF

	h, err := ReadHeaderFromDevice(dev, pbs, salt, 0, 0)
	require.NoError(t, err)
	_, nValid, err := ReadDataFromDevice(dev, h, pbs, salt, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, nValid)
}
