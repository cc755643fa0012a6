package disk

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"
)

func TestInodeRoundTrip(t *testing.T) {
	in := Inode{
		Type:  Regular,
		Nlink: 2,
		Reuse: 7,
		Size:  12345,
	}
	in.Direct[0] = 42
	in.Direct[NumDirect-1] = 99
	in.Indirect = 100

	buf, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, InodeSize)

	var out Inode
	require.NoError(t, out.UnmarshalBinary(buf))
	if diff := pretty.Compare(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDirEntryRoundTripAndEquality(t *testing.T) {
	var e DirEntry
	e.Inum = 5
	e.SetName("hello")

	buf, err := e.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, DirEntrySize)

	var out DirEntry
	require.NoError(t, out.UnmarshalBinary(buf))
	require.Equal(t, e, out)
	require.Equal(t, "hello", out.NameString())

	require.True(t, NameEquals(out.Name, "hello"))
	require.True(t, NameEquals(out.Name, "hello/world"))
	require.False(t, NameEquals(out.Name, "hell"))
	require.False(t, NameEquals(out.Name, "helloworld"))
}

func TestGeometryInvariants(t *testing.T) {
	require.Equal(t, 0, SectorSize%InodeSize)
	require.Equal(t, 0, SectorSize%DirEntrySize)
	require.Equal(t, int32(2), InodeRegionBlocks(InodesPerBlock+1))
	require.Equal(t, int32(1), InodeRegionBlocks(InodesPerBlock))
}
