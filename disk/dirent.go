package disk

import (
	"encoding/binary"
	"fmt"
)

// DirEntry is the fixed-size {inum, name} tuple that makes up a
// directory's file contents. Inum == 0 marks a free slot.
type DirEntry struct {
	Inum int16
	Name [DirNameLen]byte
}

// MarshalBinary encodes the entry into a DirEntrySize-sized buffer.
func (e DirEntry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DirEntrySize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(e.Inum))
	copy(buf[2:], e.Name[:])
	return buf, nil
}

// UnmarshalBinary decodes an entry from a buffer of at least
// DirEntrySize bytes.
func (e *DirEntry) UnmarshalBinary(buf []byte) error {
	if len(buf) < DirEntrySize {
		return fmt.Errorf("disk: dirent buffer too small: %d bytes", len(buf))
	}
	e.Inum = int16(binary.LittleEndian.Uint16(buf[0:2]))
	copy(e.Name[:], buf[2:DirEntrySize])
	return nil
}

// NameString returns the entry's name with trailing NUL padding
// stripped.
func (e DirEntry) NameString() string {
	i := 0
	for i < DirNameLen && e.Name[i] != 0 {
		i++
	}
	return string(e.Name[:i])
}

// SetName copies name into the entry's fixed-width name field,
// truncating silently if name is longer than DirNameLen (callers must
// validate length before calling SetName; the directory engine's
// findEntry rejects names longer than DirNameLen before it hands out a
// slot to write).
func (e *DirEntry) SetName(name string) {
	var buf [DirNameLen]byte
	copy(buf[:], name)
	e.Name = buf
}

// EntriesPerBlock is the number of directory entries that tile one
// sector.
const EntriesPerBlock = SectorSize / DirEntrySize

// NameEquals implements the spec's directory-entry equality rule:
// characters of query match up to either the first '/' or '\0' in
// query coinciding with '\0' in the stored name, i.e. the stored name
// is compared up to DirNameLen, accepting path separators as
// end-of-name in the query.
func NameEquals(entryName [DirNameLen]byte, query string) bool {
	qlen := 0
	for qlen < len(query) && query[qlen] != '/' && query[qlen] != 0 {
		qlen++
	}
	if qlen > DirNameLen {
		return false
	}
	for i := 0; i < qlen; i++ {
		if entryName[i] != query[i] {
			return false
		}
	}
	if qlen < DirNameLen {
		return entryName[qlen] == 0
	}
	return true
}
