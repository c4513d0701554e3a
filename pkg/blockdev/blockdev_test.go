package blockdev_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fscorego/patchgraph/pkg/blockdev"
)

func Test_MemDevice_RoundTrips_Block_Contents(t *testing.T) {
	t.Parallel()

	d := blockdev.NewMemDevice(0, 0, 512, 4)

	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}

	require.NoError(t, d.WriteBlock(2, data))

	got, err := d.ReadBlock(2)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func Test_MemDevice_Rejects_Out_Of_Range_Block(t *testing.T) {
	t.Parallel()

	d := blockdev.NewMemDevice(0, 0, 512, 4)

	_, err := d.ReadBlock(4)
	assert.ErrorIs(t, err, blockdev.ErrOutOfRange)
}

func Test_MemDevice_Rejects_Wrong_Size_Buffer(t *testing.T) {
	t.Parallel()

	d := blockdev.NewMemDevice(0, 0, 512, 4)

	err := d.WriteBlock(0, make([]byte, 10))
	assert.ErrorIs(t, err, blockdev.ErrSizeMismatch)
}

func Test_MemDevice_Rejects_Operations_After_Close(t *testing.T) {
	t.Parallel()

	d := blockdev.NewMemDevice(0, 0, 512, 4)
	require.NoError(t, d.Close())

	_, err := d.ReadBlock(0)
	assert.ErrorIs(t, err, blockdev.ErrClosed)
}

func Test_FileDevice_Persists_Writes_Across_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "device.img")

	d1, err := blockdev.OpenFile(path, 0, 0, 512, 4)
	require.NoError(t, err)

	data := make([]byte, 512)
	for i := range data {
		data[i] = 0xAB
	}

	require.NoError(t, d1.WriteBlock(1, data))
	require.NoError(t, d1.Sync())
	require.NoError(t, d1.Close())

	d2, err := blockdev.OpenFile(path, 0, 0, 512, 4)
	require.NoError(t, err)
	defer d2.Close()

	got, err := d2.ReadBlock(1)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
