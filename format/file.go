package format

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File tracks the state of a path before it is formatted.
type File struct {
	Path    string
	RelPath string
	Info    fs.FileInfo
}

func newFile(root string, relPath string) *File {
	path := relPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, relPath)
	}

	file := &File{
		Path:    path,
		RelPath: relPath,
	}

	// a path we cannot stat is still handed to the formatter, we just can't tell if it changed
	if info, err := os.Stat(path); err == nil {
		file.Info = info
	}

	return file
}

// Stat checks if the file has changed by comparing its current state (size, mod time) to when it was first read.
// It returns a boolean indicating if the file has changed, the current file info, and an error if any.
func (f *File) Stat() (changed bool, info fs.FileInfo, err error) {
	if f.Info == nil {
		return false, nil, nil
	}

	current, err := os.Stat(f.Path)
	if err != nil {
		return false, nil, fmt.Errorf("failed to stat %s: %w", f.Path, err)
	}

	// check the size first
	if f.Info.Size() != current.Size() {
		return true, current, nil
	}

	// POSIX specifies EPOCH time for Mod time, but some filesystems give more precision.
	// Some formatters mess with the mod time (e.g. dos2unix) but not to the same precision,
	// triggering false positives.
	// We truncate everything below a second.
	if f.Info.ModTime().Unix() != current.ModTime().Unix() {
		return true, current, nil
	}

	return false, nil, nil
}

func (f *File) String() string {
	return f.RelPath
}
