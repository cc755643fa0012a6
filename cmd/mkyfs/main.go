// Command mkyfs formats a fresh yfsd disk image: a superblock, a root
// directory inode, and a root directory block whose only two entries
// are "." and ".." both pointing at disk.RootInode. This mirrors what
// engine's own test fixtures build inline, and stands in for the
// original's mkfs-equivalent setup step spec.md's §1 assumes happened
// before the server starts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yfsproj/yfsd/device"
	"github.com/yfsproj/yfsd/disk"
)

var (
	numBlocks int32
	numInodes int32
)

var rootCmd = &cobra.Command{
	Use:   "mkyfs [flags] image-path",
	Short: "Format a fresh yfsd disk image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return format(args[0], numBlocks, numInodes)
	},
}

func init() {
	rootCmd.Flags().Int32Var(&numBlocks, "blocks", 4096, "Total number of sectors in the image.")
	rootCmd.Flags().Int32Var(&numInodes, "inodes", 1024, "Total number of inodes.")
}

func format(path string, numBlocks, numInodes int32) error {
	rootDirBlock := disk.FirstInodeSector + disk.InodeRegionBlocks(numInodes)
	if rootDirBlock >= numBlocks {
		return fmt.Errorf("mkyfs: %d inodes need %d sectors for the inode region alone, leaving none for data in a %d-sector image", numInodes, rootDirBlock, numBlocks)
	}

	dev, err := device.Format(path, uint32(numBlocks))
	if err != nil {
		return err
	}
	defer dev.Close()

	sb := disk.Superblock{NumBlocks: numBlocks, NumInodes: numInodes}
	sbBuf, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	if err := dev.WriteSector(disk.SuperblockSector, sbBuf); err != nil {
		return fmt.Errorf("mkyfs: write superblock: %w", err)
	}

	root := disk.Inode{Type: disk.Directory, Nlink: 2, Size: 2 * disk.DirEntrySize}
	root.Direct[0] = rootDirBlock
	rootBuf, err := root.MarshalBinary()
	if err != nil {
		return err
	}
	var inodeSector [disk.SectorSize]byte
	copy(inodeSector[disk.InodeOffset(disk.RootInode):], rootBuf)
	if err := dev.WriteSector(uint32(disk.InodeBlock(disk.RootInode)), inodeSector[:]); err != nil {
		return fmt.Errorf("mkyfs: write root inode: %w", err)
	}

	var dirSector [disk.SectorSize]byte
	putEntry := func(off int, inum int32, name string) error {
		var de disk.DirEntry
		de.Inum = int16(inum)
		de.SetName(name)
		enc, err := de.MarshalBinary()
		if err != nil {
			return err
		}
		copy(dirSector[off:off+disk.DirEntrySize], enc)
		return nil
	}
	if err := putEntry(0, disk.RootInode, "."); err != nil {
		return err
	}
	if err := putEntry(disk.DirEntrySize, disk.RootInode, ".."); err != nil {
		return err
	}
	if err := dev.WriteSector(uint32(rootDirBlock), dirSector[:]); err != nil {
		return fmt.Errorf("mkyfs: write root directory block: %w", err)
	}

	fmt.Printf("mkyfs: formatted %s: %d sectors, %d inodes, root directory at sector %d\n", path, numBlocks, numInodes, rootDirBlock)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
