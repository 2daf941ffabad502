// Package fsutil provides file system utility functions.
package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmptyExtension is returned when FindFilesByExtension is called without
// an extension to match.
var ErrEmptyExtension = errors.New("extension must not be empty")

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. It returns their full paths in lexical order, so that
// manifests are always loaded in the same sequence.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		return nil, ErrEmptyExtension
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
