package disk

import (
	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"filecore/pkg/log"
	"filecore/pkg/store"
)

// Usage returns disk space information for the filesystem holding the root.
func (s *Store) Usage() (*store.DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.root, &stat); err != nil {
		log.Error().Err(err).Str("root", s.root).Msg("Failed to get filesystem stats")
		return nil, store.IOError{Op: "statfs", Path: s.root, Err: err}
	}

	var bsize uint64
	if stat.Bsize > 0 {
		bsize = uint64(stat.Bsize) //nolint:gosec // checked above
	}

	total := stat.Blocks * bsize
	available := stat.Bavail * bsize
	used := total - stat.Bfree*bsize

	log.Debug().
		Str("root", s.root).
		Str("used", humanize.IBytes(used)).
		Str("available", humanize.IBytes(available)).
		Str("total", humanize.IBytes(total)).
		Msg("Storage filesystem stats")

	return &store.DiskUsage{
		SpaceUsed:      int64(used),      //nolint:gosec // Safe in practice for disk sizes
		SpaceAvailable: int64(available), //nolint:gosec // Safe in practice for disk sizes
		TotalSpace:     int64(total),     //nolint:gosec // Safe in practice for disk sizes
	}, nil
}
