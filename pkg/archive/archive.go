// Package archive streams directory subtrees into a single compressed
// container suitable for incremental transmission.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"filecore/pkg/log"
	"filecore/pkg/metrics"
	"filecore/pkg/store"
)

// Walker enumerates a subtree in pre-order.
type Walker interface {
	WalkPreorder(ctx context.Context, dir string, fn store.WalkFunc) error

	// Confined reports whether path, with symbolic links followed, stays in the tree.
	Confined(path string) bool
}

// Options selects the container format and compression level.
type Options struct {
	Format string
	Level  string
}

// Builder appends every file found below a set of roots to one archive.
type Builder struct {
	walker Walker
	format string
	level  string
}

// New creates a Builder. An empty format selects zip.
func New(walker Walker, opts Options) (*Builder, error) {
	format := opts.Format
	if format == "" {
		format = FormatZip
	}
	switch format {
	case FormatZip, FormatTarGz, FormatTarZst:
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}

	level := opts.Level
	if level == "" {
		level = LevelDefault
	}
	return &Builder{walker: walker, format: format, level: level}, nil
}

// Format returns the container format.
func (b *Builder) Format() string {
	return b.format
}

// Filename returns the download name for an archive of name created at now.
func (b *Builder) Filename(name string, now time.Time) string {
	return Filename(b.format, name, now)
}

// Filename returns the download name of a format archive of name created at now.
func Filename(format, name string, now time.Time) string {
	if format == "" {
		format = FormatZip
	}
	return fmt.Sprintf("%s-%d.%s", filepath.Base(name), now.Unix(), format)
}

// Build writes an archive of roots to w. Files are stored under their path
// relative to the parent of their root, so each root's own name is kept.
// Files that cannot be opened are logged and skipped; any failure once a
// file's header was written, and a failure to finalize, abort the archive.
func (b *Builder) Build(ctx context.Context, w io.Writer, roots ...string) error {
	c, err := newContainer(b.format, b.level, w)
	if err != nil {
		metrics.RecordArchive(metrics.ResultError)
		return err
	}

	var appended int
	for _, root := range roots {
		n, err := b.appendRoot(ctx, c, filepath.Clean(root))
		appended += n
		if err != nil {
			log.Error().Err(err).Str("root", root).Int("appended", appended).Msg("Archive aborted")
			metrics.RecordArchive(metrics.ResultError)
			return err
		}
	}

	if err := c.Close(); err != nil {
		log.Error().Err(err).Int("appended", appended).Msg("Failed to finalize archive")
		metrics.RecordArchive(metrics.ResultError)
		return fmt.Errorf("finalize archive: %w", err)
	}

	metrics.RecordArchive(metrics.ResultOK)
	log.Info().Strs("roots", roots).Int("files", appended).Str("format", b.format).Msg("Archive finalized")
	return nil
}

func (b *Builder) appendRoot(ctx context.Context, c container, root string) (int, error) {
	base := filepath.Dir(root)

	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		ok, err := appendFile(c, root, filepath.Base(root))
		if ok {
			return 1, err
		}
		return 0, err
	}

	var (
		appended int
		fatal    error
	)
	err = b.walker.WalkPreorder(ctx, root, func(entry store.Entry) (string, error) {
		if entry.IsDir() {
			return "", nil
		}
		if !b.walker.Confined(entry.Path) {
			log.Warn().Str("path", entry.Path).Msg("Symbolic link leaves the storage tree, skipping")
			return "", nil
		}

		name, err := filepath.Rel(base, entry.Path)
		if err != nil {
			return "", err
		}

		ok, err := appendFile(c, entry.Path, filepath.ToSlash(name))
		if err != nil {
			if ok {
				fatal = err
				return "", store.ErrStopWalk
			}
			return "", err
		}
		appended++
		return "", nil
	})
	if fatal != nil {
		return appended, fatal
	}
	return appended, err
}

// appendFile adds one file to c. started reports whether anything was
// written to the container; when it is false a non-nil error means the file
// was skipped and the archive is still intact.
func appendFile(c container, path, name string) (started bool, err error) {
	file, err := os.Open(path) //nolint:gosec // path comes from a walk below the storage root
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to open file for archive, skipping")
		return false, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Str("path", path).Msg("Failed to close archived file")
		}
	}()

	info, err := file.Stat()
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to stat file for archive, skipping")
		return false, err
	}
	if !info.Mode().IsRegular() {
		log.Warn().Str("path", path).Str("mode", info.Mode().String()).Msg("Not a regular file, skipping")
		return false, fmt.Errorf("%s: not a regular file", path)
	}

	if err := c.Add(name, info, file); err != nil {
		return true, fmt.Errorf("append %s: %w", name, err)
	}

	metrics.RecordArchiveEntry()
	log.Debug().Str("path", path).Str("name", name).Msg("File appended to archive")
	return true, nil
}
