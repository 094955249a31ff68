package pathcopy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/paulschiretz/pgl-treebackup/pkg/util"
)

// Listing holds the names of the immediate entries of a directory, in the
// order they were read.
type Listing struct {
	Files []string
	Dirs  []string
	// Other holds entries that are neither regular files nor directories,
	// such as symlinks, devices and sockets.
	Other []string
}

// FS is the file system boundary of a Copier. Every method reports its own
// failure so the traversal can decide what to skip.
type FS interface {
	// List returns the immediate entries of dir.
	List(dir string) (Listing, error)
	// MakeDir creates dir. An existing directory is not an error.
	MakeDir(dir string) error
	// CopyFile copies src to dst, which must not exist yet, and returns the
	// number of bytes written.
	CopyFile(src, dst string) (int64, error)
}

// DefaultBufferSize is the I/O buffer size used by OSFS when none is given.
const DefaultBufferSize = 256 * 1024

// OSFS implements FS on the local file system.
type OSFS struct {
	buf []byte
}

// NewOSFS returns an OSFS copying through a buffer of bufferSize bytes.
func NewOSFS(bufferSize int) *OSFS {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &OSFS{buf: make([]byte, bufferSize)}
}

// List reads dir and sorts its entries by kind. os.ReadDir returns them sorted by name.
func (o *OSFS) List(dir string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, err
	}
	var l Listing
	for _, e := range entries {
		switch t := e.Type(); {
		case t.IsRegular():
			l.Files = append(l.Files, e.Name())
		case t.IsDir():
			l.Dirs = append(l.Dirs, e.Name())
		default:
			l.Other = append(l.Other, e.Name())
		}
	}
	return l, nil
}

// MakeDir creates a single directory level.
func (o *OSFS) MakeDir(dir string) error {
	err := os.Mkdir(dir, util.UserWritableDirPerms)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			return nil
		}
	}
	return err
}

// CopyFile copies the content, permissions and modification time of src to dst.
// A partially written dst is removed on failure.
func (o *OSFS) CopyFile(src, dst string) (written int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.UserWritableFilePerms)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			os.Remove(dst)
		}
	}()

	if o.buf == nil {
		o.buf = make([]byte, DefaultBufferSize)
	}
	written, err = io.CopyBuffer(out, in, o.buf)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to copy content: %w", err)
	}

	if err = out.Chmod(util.WithUserWritePermission(info.Mode().Perm())); err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to set permissions: %w", err)
	}

	// Close before Chtimes, flushing could otherwise touch the modification time.
	if err = out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err = os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return 0, fmt.Errorf("failed to set timestamps: %w", err)
	}
	return written, nil
}

var _ FS = (*OSFS)(nil)
