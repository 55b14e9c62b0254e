package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDeviceReadWrite(t *testing.T) {
	d := NewMemDevice(4096)
	n, err := d.WriteAt([]byte("hello"), 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = d.ReadAt(buf, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestMemDeviceWriteBeyondEndErrors(t *testing.T) {
	d := NewMemDevice(10)
	_, err := d.WriteAt([]byte("x"), 20)
	assert.Error(t, err)
}

func TestMemDeviceReadBeyondEndReturnsZero(t *testing.T) {
	d := NewMemDevice(10)
	buf := make([]byte, 5)
	n, err := d.ReadAt(buf, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemDeviceDiscardZeroes(t *testing.T) {
	d := NewMemDevice(4096)
	_, err := d.WriteAt([]byte{1, 2, 3, 4}, 0)
	require.NoError(t, err)

	require.NoError(t, d.Discard(0, 4))

	buf := make([]byte, 4)
	_, err = d.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestMemDeviceCrossesShardBoundary(t *testing.T) {
	d := NewMemDevice(ShardSize * 3)
	data := make([]byte, ShardSize+10)
	for i := range data {
		data[i] = byte(i)
	}
	off := int64(ShardSize - 5)
	_, err := d.WriteAt(data, off)
	require.NoError(t, err)

	got := make([]byte, len(data))
	_, err = d.ReadAt(got, off)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
