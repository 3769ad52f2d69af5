package disk

import (
	"context"
	"io"

	"filecore/pkg/store"
)

// Archive streams the given paths into w using the configured container
// format. All paths are checked before the first byte is written, so a
// missing path never produces a partial archive.
func (s *Store) Archive(ctx context.Context, w io.Writer, paths ...string) error {
	if len(paths) == 0 {
		return store.NotFoundError{}
	}

	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		entry, err := s.Stat(ctx, p)
		if err != nil {
			return err
		}
		roots = append(roots, entry.Path)
	}

	return s.archiver.Build(ctx, w, roots...)
}
