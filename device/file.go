package device

import (
	"fmt"
	"os"
	"sync"

	fallocate "github.com/detailyang/go-fallocate"
	"github.com/moby/sys/mountinfo"
	"github.com/yfsproj/yfsd/disk"
	"github.com/yfsproj/yfsd/internal/openat"
	"golang.org/x/sys/unix"
)

// FileDevice implements BlockDevice over a regular file or a block
// special file, addressed by fixed SectorSize offsets.
type FileDevice struct {
	mu        sync.Mutex
	f         *os.File
	numSector uint32
}

// Open opens path as a backing store with numSectors addressable
// sectors. path must already exist and be at least numSectors *
// disk.SectorSize bytes long; use Format to create a fresh image.
//
// Open refuses a path that mountinfo reports as itself being a mount
// point. It does not detect another process that already has the same
// image open.
func Open(path string, numSectors uint32) (*FileDevice, error) {
	if err := checkNotMounted(path); err != nil {
		return nil, err
	}
	fd, err := openat.OpenatNofollow(unix.AT_FDCWD, path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}
	f := os.NewFile(uintptr(fd), path)
	if err := verifyCapacity(f, path, numSectors); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, numSector: numSectors}, nil
}

// Format creates a fresh backing file at path sized for numSectors
// sectors, preallocating its full extent rather than leaving it sparse.
// It does not write any filesystem contents; callers (cmd/mkyfs) are
// responsible for writing the superblock and root inode afterwards.
func Format(path string, numSectors uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("device: create %s: %w", path, err)
	}
	size := int64(numSectors) * disk.SectorSize
	if err := fallocate.Fallocate(f, 0, size); err != nil {
		// Some filesystems (notably non-ext4 or overlay mounts in CI
		// sandboxes) reject fallocate; fall back to a sparse Truncate
		// so Format still succeeds there.
		if truncErr := f.Truncate(size); truncErr != nil {
			f.Close()
			return nil, fmt.Errorf("device: preallocate %s: %w", path, err)
		}
	}
	return &FileDevice{f: f, numSector: numSectors}, nil
}

func checkNotMounted(path string) error {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		// Not fatal: mountinfo is only available on Linux and only a
		// best-effort safety net. A failure on path itself will
		// surface from the subsequent open call.
		return nil
	}
	if mounted {
		return fmt.Errorf("device: %s is itself a mount point; refusing to open as a backing image", path)
	}
	return nil
}

func verifyCapacity(f *os.File, path string, numSectors uint32) error {
	want := int64(numSectors) * disk.SectorSize
	got, err := fileOrDeviceSize(f)
	if err != nil {
		return fmt.Errorf("device: stat %s: %w", path, err)
	}
	if got < want {
		return fmt.Errorf("device: %s is %d bytes, need at least %d for %d sectors", path, got, want, numSectors)
	}
	return nil
}

func (d *FileDevice) ReadSector(n uint32, buf []byte) error {
	if err := checkBufLen(buf); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n >= d.numSector {
		return &ErrOutOfRange{Sector: n, Total: d.numSector}
	}
	_, err := d.f.ReadAt(buf, int64(n)*disk.SectorSize)
	return err
}

func (d *FileDevice) WriteSector(n uint32, buf []byte) error {
	if err := checkBufLen(buf); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n >= d.numSector {
		return &ErrOutOfRange{Sector: n, Total: d.numSector}
	}
	_, err := d.f.WriteAt(buf, int64(n)*disk.SectorSize)
	return err
}

func (d *FileDevice) NumSectors() uint32 {
	return d.numSector
}

func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
