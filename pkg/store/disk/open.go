package disk

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"filecore/pkg/log"
	"filecore/pkg/store"
)

// Stat describes path, following symbolic links that stay inside the tree.
func (s *Store) Stat(ctx context.Context, path string) (*store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path = filepath.Clean(path)
	if s.hidden(path) {
		return nil, store.NotFoundError{Path: path}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ENOTDIR) {
			return nil, store.NotFoundError{Path: path}
		}
		log.Error().Err(err).Str("path", path).Msg("Failed to stat file")
		return nil, store.IOError{Op: "stat", Path: path, Err: err}
	}
	if !s.Confined(path) {
		log.Warn().Str("path", path).Msg("Symbolic link leaves the storage tree, refusing")
		return nil, store.NotFoundError{Path: path}
	}

	entry := s.newEntry(path, info)
	return &entry, nil
}

// Open opens a regular file for reading. The caller owns the returned file.
func (s *Store) Open(ctx context.Context, path string) (*os.File, *store.Entry, error) {
	entry, err := s.Stat(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if entry.IsDir() {
		return nil, nil, store.IOError{Op: "open", Path: entry.Path, Err: unix.EISDIR}
	}

	file, err := os.Open(entry.Path) //nolint:gosec // path was resolved under the storage root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, store.NotFoundError{Path: entry.Path}
		}
		log.Error().Err(err).Str("path", entry.Path).Msg("Failed to open file")
		return nil, nil, store.IOError{Op: "open", Path: entry.Path, Err: err}
	}
	return file, entry, nil
}
