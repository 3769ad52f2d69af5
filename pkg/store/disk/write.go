package disk

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"filecore/pkg/log"
	"filecore/pkg/metrics"
	"filecore/pkg/store"
)

// sourceReader remembers the first error returned by the upload source so a
// failed copy can be attributed to the client rather than the disk.
type sourceReader struct {
	ctx    context.Context
	reader io.Reader
	err    error
}

func (r *sourceReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		r.err = err
		return 0, err
	}
	n, err := r.reader.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		r.err = err
	}
	return n, err
}

// Write stages the prepend buffers followed by reader in the staging area and
// commits the result to path with a single rename. Nothing is ever visible at
// path until the whole stream was received and synced.
func (s *Store) Write(ctx context.Context, path string, reader io.Reader, prepend [][]byte, overwrite bool) (string, error) {
	path = filepath.Clean(path)
	if _, ok := s.rel(path); !ok || s.isStaging(path) || path == s.root {
		log.Warn().Str("path", path).Msg("Refusing to write outside the storage tree")
		return "", store.NotFoundError{Path: path}
	}

	log.Info().Str("path", path).Bool("overwrite", overwrite).Msg("Processing file write")

	stagingPath, size, err := s.stage(ctx, path, reader, prepend)
	if err != nil {
		result := metrics.ResultError
		var aborted store.StreamAbortedError
		if errors.As(err, &aborted) {
			result = metrics.ResultAborted
		}
		metrics.RecordWrite(result, 0, false)
		return "", err
	}

	committed, err := s.commit(stagingPath, path, overwrite)
	if err != nil {
		s.discardStagingFile(stagingPath)
		metrics.RecordWrite(metrics.ResultError, 0, false)
		return "", err
	}

	metrics.RecordWrite(metrics.ResultOK, size, committed != path)
	log.Info().
		Str("path", committed).
		Str("size", humanize.IBytes(uint64(size))). //nolint:gosec // size is never negative
		Msg("File committed")
	return committed, nil
}

// stage copies the upload into a fresh staging file. On any failure the
// staging file is already removed when stage returns.
func (s *Store) stage(ctx context.Context, dest string, reader io.Reader, prepend [][]byte) (string, int64, error) {
	if err := os.MkdirAll(s.stagingDir, dirPerm); err != nil {
		log.Error().Err(err).Str("staging_dir", s.stagingDir).Msg("Failed to create staging directory")
		return "", 0, store.IOError{Op: "mkdir", Path: s.stagingDir, Err: err}
	}

	stagingPath := filepath.Join(s.stagingDir, stagingPrefix+uuid.NewString()+stagingSuffix)
	//nolint:gosec // stagingPath is built from the configured staging dir and a random name
	file, err := os.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		log.Error().Err(err).Str("staging_file", stagingPath).Msg("Failed to create staging file")
		return "", 0, store.IOError{Op: "create", Path: stagingPath, Err: err}
	}

	size, err := fillStagingFile(ctx, file, dest, reader, prepend)
	if closeErr := file.Close(); closeErr != nil && err == nil {
		log.Error().Err(closeErr).Str("staging_file", stagingPath).Msg("Failed to close staging file")
		err = store.IOError{Op: "close", Path: stagingPath, Err: closeErr}
	}
	if err != nil {
		s.discardStagingFile(stagingPath)
		return "", 0, err
	}
	return stagingPath, size, nil
}

func fillStagingFile(ctx context.Context, file *os.File, dest string, reader io.Reader, prepend [][]byte) (int64, error) {
	var size int64
	for _, buf := range prepend {
		n, err := file.Write(buf)
		size += int64(n)
		if err != nil {
			log.Error().Err(err).Str("staging_file", file.Name()).Msg("Failed to write prepend buffer")
			return size, store.IOError{Op: "write", Path: file.Name(), Err: err}
		}
	}

	src := &sourceReader{ctx: ctx, reader: reader}
	n, err := io.Copy(file, src)
	size += n
	if err != nil {
		if src.err != nil {
			log.Warn().Err(src.err).Str("path", dest).Int64("received", size).Msg("Upload stream aborted")
			return size, store.StreamAbortedError{Path: dest, Err: src.err}
		}
		log.Error().Err(err).Str("staging_file", file.Name()).Msg("Failed to write staging file")
		return size, store.IOError{Op: "write", Path: file.Name(), Err: err}
	}

	if err := file.Sync(); err != nil {
		log.Error().Err(err).Str("staging_file", file.Name()).Msg("Failed to sync staging file")
		return size, store.IOError{Op: "sync", Path: file.Name(), Err: err}
	}
	return size, nil
}

// commit creates the destination directory and renames the staging file into
// place, resolving a free name unless overwrite is set.
func (s *Store) commit(stagingPath, dest string, overwrite bool) (string, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Failed to create destination directory")
		return "", store.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	if s.serialize {
		unlock := s.lockPath(dest)
		defer unlock()
	}

	target, err := s.ResolveConflict(dest, overwrite)
	if err != nil {
		return "", err
	}

	if err := os.Rename(stagingPath, target); err != nil {
		if errors.Is(err, unix.EXDEV) {
			log.Error().Err(err).Str("staging_file", stagingPath).Str("target", target).
				Msg("Staging area and destination are on different devices")
		} else {
			log.Error().Err(err).Str("staging_file", stagingPath).Str("target", target).Msg("Failed to commit file")
		}
		return "", store.IOError{Op: "rename", Path: target, Err: err}
	}

	syncDir(dir)
	return target, nil
}

// syncDir flushes the directory entry created by a rename.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // dir is the parent of a path inside the storage root
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("Failed to open directory for sync")
		return
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("Failed to close directory")
		}
	}()
	if err := d.Sync(); err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("Failed to sync directory")
	}
}

// discardStagingFile removes an uncommitted staging file.
func (s *Store) discardStagingFile(stagingPath string) {
	if err := os.Remove(stagingPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error().Err(err).Str("staging_file", stagingPath).Msg("Failed to remove staging file")
	}
}
