package disk

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"filecore/pkg/log"
	"filecore/pkg/metrics"
	"filecore/pkg/store"
)

// Delete moves path to the mirrored location inside the recycle directory.
// A path that already lives in the recycle directory is removed permanently,
// together with its subtree.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path = filepath.Clean(path)
	rel, ok := s.rel(path)
	if !ok || s.hidden(path) {
		log.Debug().Str("path", path).Msg("Path not deletable")
		return store.NotFoundError{Path: path}
	}
	if path == s.root || path == s.recycleDir {
		log.Warn().Str("path", path).Msg("Refusing to delete a storage root directory")
		return store.ConflictError{Path: path}
	}

	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", path).Msg("File not found for delete")
			return store.NotFoundError{Path: path}
		}
		log.Error().Err(err).Str("path", path).Msg("Failed to stat file for delete")
		return store.IOError{Op: "stat", Path: path, Err: err}
	}

	if s.isRecycled(path) {
		return s.purge(path)
	}
	return s.recycle(path, rel)
}

func (s *Store) purge(path string) error {
	if err := os.RemoveAll(path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to permanently delete file")
		return store.IOError{Op: "remove", Path: path, Err: err}
	}

	metrics.RecordDelete(metrics.ModePermanent)
	log.Info().Str("path", path).Msg("File permanently deleted")
	return nil
}

func (s *Store) recycle(path, rel string) error {
	target := filepath.Join(s.recycleDir, filepath.FromSlash(rel))
	targetDir := filepath.Dir(target)
	if err := os.MkdirAll(targetDir, dirPerm); err != nil {
		log.Error().Err(err).Str("dir", targetDir).Msg("Failed to create recycle directory")
		return store.IOError{Op: "mkdir", Path: targetDir, Err: err}
	}

	if s.serialize {
		unlock := s.lockPath(target)
		defer unlock()
	}

	// An earlier deletion of the same path keeps its copy.
	target, err := s.ResolveConflict(target, false)
	if err != nil {
		return err
	}

	if err := os.Rename(path, target); err != nil {
		log.Error().Err(err).Str("path", path).Str("target", target).Msg("Failed to move file to recycle directory")
		return store.IOError{Op: "rename", Path: path, Err: err}
	}

	metrics.RecordDelete(metrics.ModeRecycle)
	log.Info().Str("path", path).Str("recycled_to", target).Msg("File moved to recycle directory")
	return nil
}
