package device

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yfsproj/yfsd/disk"
)

func TestMemDeviceReadWriteRoundTrip(t *testing.T) {
	d := NewMemDevice(4)

	buf := make([]byte, disk.SectorSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, d.WriteSector(2, buf))

	out := make([]byte, disk.SectorSize)
	require.NoError(t, d.ReadSector(2, out))
	require.Equal(t, buf, out)

	// Untouched sectors stay zeroed.
	zero := make([]byte, disk.SectorSize)
	require.NoError(t, d.ReadSector(0, out))
	require.Equal(t, zero, out)
}

func TestMemDeviceOutOfRange(t *testing.T) {
	d := NewMemDevice(2)
	buf := make([]byte, disk.SectorSize)
	err := d.ReadSector(5, buf)
	require.Error(t, err)
	var oor *ErrOutOfRange
	require.ErrorAs(t, err, &oor)
}

func TestMemDeviceRejectsBadBufferSize(t *testing.T) {
	d := NewMemDevice(2)
	err := d.WriteSector(0, make([]byte, 10))
	require.Error(t, err)
}
