//go:build !linux

package device

import "os"

// fileOrDeviceSize returns the regular-file size of f. Block-special
// size querying via BLKGETSIZE64 is Linux-only; other platforms only
// ever back a FileDevice with a plain file.
func fileOrDeviceSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
