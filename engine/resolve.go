package engine

import (
	"strings"

	"github.com/yfsproj/yfsd/disk"
)

// splitLeadingSlash reports whether path is absolute and returns the
// remainder with every leading slash stripped. Leading slashes always
// collapse fully and uniformly across every operation — spec.md §9
// flags the source's inconsistency here (link/symlink only strip one)
// and asks implementers to collapse uniformly instead of reproducing
// the anomaly.
func splitLeadingSlash(path string) (absolute bool, rest string) {
	if !strings.HasPrefix(path, "/") {
		return false, path
	}
	return true, strings.TrimLeft(path, "/")
}

// splitSegments splits rest on '/', discarding empty segments so that
// repeated or trailing slashes collapse away.
func splitSegments(rest string) []string {
	parts := strings.Split(rest, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasTrailingSlash(rest string) bool {
	return len(rest) > 0 && rest[len(rest)-1] == '/'
}

// Resolve walks path to an inode number, starting from start if path is
// relative or from disk.RootInode if it is absolute, per spec.md §4.4.
func (e *Engine) Resolve(path string, start int32) (int32, error) {
	if err := validatePath(path); err != nil {
		return 0, err
	}
	absolute, rest := splitLeadingSlash(path)
	cur := start
	if absolute {
		cur = disk.RootInode
	}
	segments := splitSegments(rest)
	return e.resolveSegments(segments, cur)
}

// resolveContainer resolves every segment of path except the last,
// returning the resulting directory inode and the last segment as a
// plain name. When rejectTrailingSlash is set (the create-family
// operations), a raw trailing slash is an error rather than something
// that silently collapses away, per spec.md §7 ("a path like \"foo/\"
// is rejected by create").
func (e *Engine) resolveContainer(path string, start int32, rejectTrailingSlash bool) (parent int32, leaf string, err error) {
	if err := validatePath(path); err != nil {
		return 0, "", err
	}
	absolute, rest := splitLeadingSlash(path)
	if rejectTrailingSlash && hasTrailingSlash(rest) {
		return 0, "", ErrTrailingSlash
	}
	cur := start
	if absolute {
		cur = disk.RootInode
	}
	segments := splitSegments(rest)
	if len(segments) == 0 {
		return 0, "", ErrInvalidArgument
	}
	leaf = segments[len(segments)-1]
	dirInode, err := e.resolveSegments(segments[:len(segments)-1], cur)
	if err != nil {
		return 0, "", err
	}
	return dirInode, leaf, nil
}

// resolveLeafNoFollow resolves path's containing directory normally
// (following symlinks along the way) and then looks up the final
// segment directly, without expanding it even if it names a symlink.
// This is §9's adopted reading (a) for readlink: stop at the terminal
// symlink rather than reusing Resolve's always-follow semantics.
func (e *Engine) resolveLeafNoFollow(path string, start int32) (int32, error) {
	dirInode, leaf, err := e.resolveContainer(path, start, false)
	if err != nil {
		return 0, err
	}
	_, _, inum, found, err := e.findEntry(dirInode, leaf, false)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return inum, nil
}

// resolveSegments is the iterative core of path resolution: it walks
// segments one at a time starting from cur, expanding any symlink it
// encounters (at any position, including the last segment — see
// resolveLeafNoFollow for the one call site that wants different
// behavior) by splicing the symlink's target segments onto the front
// of an explicit pending queue, rather than recursing. A single
// symlinkCount counter is shared across the whole walk, including
// across nested symlink targets, per spec.md §4.4.
func (e *Engine) resolveSegments(segments []string, cur int32) (int32, error) {
	queue := append([]string(nil), segments...)
	symlinkCount := 0

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		dirInode, err := e.inodes.GetInode(cur)
		if err != nil {
			return 0, err
		}
		if dirInode.Type != disk.Directory {
			return 0, ErrNotDirectory
		}

		_, _, inum, found, err := e.findEntry(cur, name, false)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, ErrNotFound
		}

		target, err := e.inodes.GetInode(inum)
		if err != nil {
			return 0, err
		}

		if target.Type == disk.Symlink {
			symlinkCount++
			if symlinkCount > disk.MaxSymlinks {
				return 0, ErrTooManySymlinks
			}
			linkTarget, err := e.readSymlinkTarget(target)
			if err != nil {
				return 0, err
			}
			nextAbsolute, nextRest := splitLeadingSlash(linkTarget)
			prefix := splitSegments(nextRest)
			queue = append(append([]string{}, prefix...), queue...)
			if nextAbsolute {
				cur = disk.RootInode
			}
			// Else: resolve target against the current segment's
			// parent, i.e. the directory we just searched (cur is
			// already that directory — left unchanged).
			continue
		}

		cur = inum
	}
	return cur, nil
}

// readSymlinkTarget reads a symlink's stored target string: Size bytes
// from its first (and only) data block.
func (e *Engine) readSymlinkTarget(in *disk.Inode) (string, error) {
	if in.Direct[0] == 0 || in.Size == 0 {
		return "", nil
	}
	b, err := e.blocks.GetBlock(uint32(in.Direct[0]))
	if err != nil {
		return "", err
	}
	n := in.Size
	if n > disk.SectorSize {
		n = disk.SectorSize
	}
	return string(b.Data[:n]), nil
}

func validatePath(path string) error {
	if len(path) == 0 {
		return ErrInvalidArgument
	}
	if len(path) >= disk.MaxPathNameLen {
		return ErrNameTooLong
	}
	return nil
}
