package redo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybozu-go/walb/internal/device"
	"github.com/cybozu-go/walb/internal/logpack"
	"github.com/cybozu-go/walb/internal/ringbuf"
	"github.com/cybozu-go/walb/internal/super"
)

const (
	testPbs          = 4096
	testSalt  uint32  = 0xFEED
	testRingOff uint64 = 2
	testRingSize uint64 = 1000
)

func freshSuper() *super.Super {
	return &super.Super{
		LogicalBS:       512,
		PhysicalBS:      testPbs,
		MetadataSize:    0,
		LogChecksumSalt: testSalt,
		RingBufferSize:  testRingSize,
		DeviceSize:      1 << 20,
	}
}

func ringMap() ringbuf.Map {
	return ringbuf.Map{RingBufferOffset: super.RingBufferOffsetBlocks(testPbs, 0), RingBufferSize: testRingSize}
}

func writePackAt(t *testing.T, logDev device.Device, lsid uint64, reqs []logpack.WriteRequest) uint64 {
	t.Helper()
	pack, err := logpack.BuildPack(testPbs, testSalt, lsid, reqs)
	require.NoError(t, err)
	off := ringMap().OffsetOfLsid(lsid)
	require.NoError(t, pack.WriteTo(logDev, testPbs, off))
	return pack.Header.GetNextLsid()
}

func TestRedoSinglePack(t *testing.T) {
	// Scenario 2 of spec §8: write+redo a single pack.
	logDev := device.NewMemDevice(testPbs * 2000)
	dataDev := device.NewMemDevice(1 << 20)

	payload := bytes.Repeat([]byte{0xAB}, 8*512)
	sup := freshSuper()
	nextLsid := writePackAt(t, logDev, 0, []logpack.WriteRequest{
		{OffsetLb: 16, IOSizeLb: 8, Payload: payload},
	})

	// Terminate the log with an end marker so redo stops cleanly.
	endOff := ringMap().OffsetOfLsid(nextLsid)
	end := logpack.EndMarker()
	buf := make([]byte, testPbs)
	require.NoError(t, end.Encode(buf, testPbs))
	_, err := logDev.WriteAt(buf, int64(endOff)*testPbs)
	require.NoError(t, err)

	got, result, err := Run(logDev, dataDev, sup, nil)
	require.NoError(t, err)
	assert.Equal(t, nextLsid, got.WrittenLsid)
	assert.Equal(t, 1, result.NPacksReplayed)

	out := make([]byte, 8*512)
	_, err = dataDev.ReadAt(out, 16*512)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestRedoTruncatesAtCorruption(t *testing.T) {
	// Scenario 3 of spec §8: three packs, corrupt P2's payload; redo
	// replays only P1 and leaves written_lsid at the start of P2.
	logDev := device.NewMemDevice(testPbs * 2000)
	dataDev := device.NewMemDevice(1 << 20)

	sup := freshSuper()
	p1 := bytes.Repeat([]byte{1}, 8*512)
	p2 := bytes.Repeat([]byte{2}, 8*512)
	p3 := bytes.Repeat([]byte{3}, 8*512)

	lsid0 := uint64(0)
	lsid1 := writePackAt(t, logDev, lsid0, []logpack.WriteRequest{{OffsetLb: 0, IOSizeLb: 8, Payload: p1}})
	lsid2 := writePackAt(t, logDev, lsid1, []logpack.WriteRequest{{OffsetLb: 8, IOSizeLb: 8, Payload: p2}})
	_ = writePackAt(t, logDev, lsid2, []logpack.WriteRequest{{OffsetLb: 16, IOSizeLb: 8, Payload: p3}})

	// Flip a byte in P2's payload (first physical block after its
	// header sector).
	p2HeaderOff := ringMap().OffsetOfLsid(lsid1)
	corruptByteOff := int64(p2HeaderOff+1)*testPbs + 5
	md := logDev.(*device.MemDevice)
	cur := make([]byte, 1)
	_, err := md.ReadAt(cur, corruptByteOff)
	require.NoError(t, err)
	cur[0] ^= 0xFF
	_, err = md.WriteAt(cur, corruptByteOff)
	require.NoError(t, err)

	got, result, err := Run(logDev, dataDev, sup, nil)
	require.NoError(t, err)
	assert.Equal(t, lsid1, got.WrittenLsid)
	assert.Equal(t, 1, result.NPacksReplayed)

	out := make([]byte, 8*512)
	_, err = dataDev.ReadAt(out, 0)
	require.NoError(t, err)
	assert.Equal(t, p1, out)

	out2 := make([]byte, 8*512)
	_, err = dataDev.ReadAt(out2, 8*512)
	require.NoError(t, err)
	assert.NotEqual(t, p2, out2) // not applied
}

func TestRedoIsIdempotent(t *testing.T) {
	logDev := device.NewMemDevice(testPbs * 2000)
	dataDev := device.NewMemDevice(1 << 20)
	sup := freshSuper()

	payload := bytes.Repeat([]byte{9}, 8*512)
	nextLsid := writePackAt(t, logDev, 0, []logpack.WriteRequest{{OffsetLb: 0, IOSizeLb: 8, Payload: payload}})
	endOff := ringMap().OffsetOfLsid(nextLsid)
	end := logpack.EndMarker()
	buf := make([]byte, testPbs)
	require.NoError(t, end.Encode(buf, testPbs))
	_, err := logDev.WriteAt(buf, int64(endOff)*testPbs)
	require.NoError(t, err)

	sup1, _, err := Run(logDev, dataDev, sup, nil)
	require.NoError(t, err)

	sup2, result2, err := Run(logDev, dataDev, sup1, nil)
	require.NoError(t, err)
	assert.Equal(t, sup1.WrittenLsid, sup2.WrittenLsid)
	assert.Equal(t, 0, result2.NPacksReplayed)
}
