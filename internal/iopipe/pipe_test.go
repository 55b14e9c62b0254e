package iopipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybozu-go/walb/internal/device"
	"github.com/cybozu-go/walb/internal/logpack"
)

const testPbs = 4096

func TestLogPipeWritesPackToOffset(t *testing.T) {
	dev := device.NewMemDevice(int64(testPbs) * 64)
	pipe := NewLogPipe(dev, testPbs, DefaultConfig())
	defer pipe.Close()

	pack, err := logpack.BuildPack(testPbs, 0, 10, []logpack.WriteRequest{
		{OffsetLb: 0, IOSizeLb: 8, Payload: make([]byte, 8*512)},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	require.NoError(t, pipe.Submit(LogWriteJob{Pack: pack, OffsetPb: 2, Done: done}))
	require.NoError(t, <-done)

	buf := make([]byte, testPbs)
	_, err = dev.ReadAt(buf, 2*testPbs)
	require.NoError(t, err)
	hdr, err := logpack.DecodeHeader(buf, testPbs)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), hdr.LogpackLsid)
}

func TestLogPipeBackpressureBlocksUntilDrained(t *testing.T) {
	dev := device.NewMemDevice(int64(testPbs) * 256)
	cfg := Config{QueueDepth: 1, MaxPendingBytes: int64(testPbs) * 2}
	pipe := NewLogPipe(dev, testPbs, cfg)
	defer pipe.Close()

	pack, err := logpack.BuildPack(testPbs, 0, 1, nil)
	require.NoError(t, err)

	// Each job holds one pbs of pending bytes against a limit of two, so
	// the later Submit calls block until the worker drains earlier jobs.
	dones := make([]chan error, 0, 5)
	for i := 0; i < 5; i++ {
		done := make(chan error, 1)
		require.NoError(t, pipe.Submit(LogWriteJob{Pack: pack, OffsetPb: uint64(i), Done: done}))
		dones = append(dones, done)
	}
	for _, done := range dones {
		require.NoError(t, <-done)
	}
}

func TestDataPipeAppliesPayloadWrite(t *testing.T) {
	dev := device.NewMemDevice(int64(testPbs) * 64)
	pipe := NewDataPipe(dev, testPbs, DefaultConfig(), 1)
	defer pipe.Close()

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	rec := logpack.Record{Exist: true, Kind: logpack.KindNormal, Offset: 3, IOSize: 1}

	done := make(chan error, 1)
	require.NoError(t, pipe.Submit(DataWriteJob{Rec: rec, Payload: payload, Done: done}))
	require.NoError(t, <-done)

	got := make([]byte, 512)
	_, err := dev.ReadAt(got, 3*512)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDataPipeDiscardIssuesDeviceDiscard(t *testing.T) {
	dev := device.NewMemDevice(int64(testPbs) * 64)
	pipe := NewDataPipe(dev, testPbs, DefaultConfig(), 1)
	defer pipe.Close()

	filled := make([]byte, 8*512)
	for i := range filled {
		filled[i] = 0xff
	}
	_, err := dev.WriteAt(filled, 0)
	require.NoError(t, err)

	rec := logpack.Record{Exist: true, Kind: logpack.KindDiscard, Offset: 0, IOSize: 8}
	done := make(chan error, 1)
	require.NoError(t, pipe.Submit(DataWriteJob{Rec: rec, Done: done}))
	require.NoError(t, <-done)

	got := make([]byte, 8*512)
	_, err = dev.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8*512), got)
}

func TestSyncRingReapReturnsSubmittedResults(t *testing.T) {
	r := newSyncRing(RingConfig{FD: -1})
	require.NoError(t, r.SubmitWrite(nil, 0, 42))
	results, err := r.Reap(1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(42), results[0].UserData)
}
