// Package pathcopy mirrors a source directory tree into a destination directory.
//
// Copying is depth-first and pre-order. A destination directory is created before
// any of its children are visited, so a failed creation skips the whole subtree.
// Failures are isolated per node: an unreadable directory, a directory that cannot
// be created or a file that cannot be copied is logged, counted and skipped while
// its siblings are processed as usual.
package pathcopy

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
)

// Copier copies directory trees through an FS and reports every step to a Logger.
type Copier struct {
	fs  FS
	log *plog.Logger
}

// New returns a Copier. A nil fsys selects the local file system.
func New(fsys FS, log *plog.Logger) *Copier {
	if fsys == nil {
		fsys = NewOSFS(DefaultBufferSize)
	}
	return &Copier{fs: fsys, log: log}
}

// CopyTree copies source into a directory named after it below destinationParent.
// depth is the indentation of the log records for this level.
//
// File system failures never abort the traversal and are only reflected in the
// returned Result. The error is non-nil only if ctx was cancelled, in which case
// the Result covers the work done so far.
func (c *Copier) CopyTree(ctx context.Context, source, destinationParent string, depth int) (Result, error) {
	var res Result
	if err := ctx.Err(); err != nil {
		return res, err
	}
	log := c.log.Indent(depth)

	listing, err := c.fs.List(source)
	if err != nil {
		log.Error("Could not read directory", "path", source, "error", err)
		res.DirsFailed++
		return res, nil
	}
	log.Debug("Directory listed", "path", source, "files", len(listing.Files), "dirs", len(listing.Dirs))

	destination := filepath.Join(destinationParent, DirName(source))
	if err := c.fs.MakeDir(destination); err != nil {
		log.Error("Could not create destination directory", "path", destination, "error", err)
		res.DirsFailed++
		return res, nil
	}
	res.DirsCreated++

	for _, name := range listing.Other {
		log.Debug("Skipping entry that is not a regular file or directory", "path", filepath.Join(source, name))
		res.EntriesSkipped++
	}

	for _, name := range listing.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		src := filepath.Join(source, name)
		dst := filepath.Join(destination, name)
		log.Info("Copying file", "from", src, "to", dst)
		n, err := c.fs.CopyFile(src, dst)
		if err != nil {
			c.log.Indent(depth + 1).Error("Could not copy file", "error", err)
			res.FilesFailed++
			continue
		}
		res.FilesCopied++
		res.BytesCopied += n
		c.log.Indent(depth + 1).Debug("File copied", "bytes", n)
	}

	for _, name := range listing.Dirs {
		src := filepath.Join(source, name)
		log.Info("Copying directory", "from", src, "to", destination)
		child, err := c.CopyTree(ctx, src, destination, depth+1)
		res.Add(child)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// DirName returns the name of the directory a source is mirrored into: the last
// segment of the cleaned path, the drive letter for a drive root such as "C:/", or
// "root" for the POSIX root. Trailing "." and ".." segments are resolved first, so
// the name never leads out of the destination parent.
func DirName(source string) string {
	cleaned := path.Clean(strings.ReplaceAll(source, `\`, "/"))
	if len(cleaned) == 2 && cleaned[1] == ':' {
		return cleaned[:1]
	}
	if cleaned == "/" {
		return "root"
	}
	name := path.Base(cleaned)
	if name == "." || name == ".." {
		abs, err := filepath.Abs(source)
		if err != nil {
			return "root"
		}
		return DirName(abs)
	}
	return name
}
