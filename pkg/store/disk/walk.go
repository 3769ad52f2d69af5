package disk

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"filecore/pkg/log"
	"filecore/pkg/metrics"
	"filecore/pkg/store"
)

// frame is one directory on the explicit traversal stack. Its entries are
// read in full when the frame is pushed, so no directory handle stays open
// while the walk descends.
type frame struct {
	entries []os.DirEntry
	next    int
	dir     string

	// owner is the directory entry reported after this frame is drained
	// during a post-order walk.
	owner *store.Entry
}

// Walk traverses the subtree below dir in the requested order.
func (s *Store) Walk(ctx context.Context, dir string, order store.WalkOrder, fn store.WalkFunc) error {
	if order == store.PostOrder {
		return s.WalkPostorder(ctx, dir, fn)
	}
	return s.WalkPreorder(ctx, dir, fn)
}

// WalkPreorder reports every entry of a directory before descending into it.
// When fn returns a replacement path for a directory entry, the replacement
// is descended instead. Entries that cannot be read are logged and skipped.
func (s *Store) WalkPreorder(ctx context.Context, dir string, fn store.WalkFunc) error {
	root, err := s.openFrame(dir)
	if err != nil {
		return err
	}

	stack := []*frame{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		top := stack[len(stack)-1]
		if top.next >= len(top.entries) {
			stack = stack[:len(stack)-1]
			continue
		}
		dirEntry := top.entries[top.next]
		top.next++

		entry, ok := s.entryFor(top.dir, dirEntry)
		if !ok {
			continue
		}

		replacement, err := fn(entry)
		switch {
		case errors.Is(err, store.ErrStopWalk):
			return nil
		case errors.Is(err, store.ErrSkipDir):
			continue
		case err != nil:
			skipEntry(entry.Path, err, "Walk callback failed, skipping entry")
			continue
		}

		if !entry.IsDir() {
			continue
		}

		target := entry.Path
		if replacement != "" {
			target = replacement
		}
		child, err := readFrame(target)
		if err != nil {
			skipEntry(target, err, "Failed to read directory, skipping")
			continue
		}
		stack = append(stack, child)
	}
	return nil
}

// WalkPostorder descends into every subdirectory before reporting the
// directory itself, so children are always seen before their parent.
func (s *Store) WalkPostorder(ctx context.Context, dir string, fn store.WalkFunc) error {
	root, err := s.openFrame(dir)
	if err != nil {
		return err
	}

	stack := []*frame{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		top := stack[len(stack)-1]
		if top.next >= len(top.entries) {
			stack = stack[:len(stack)-1]
			if top.owner != nil {
				if stop := visitPostorder(*top.owner, fn); stop {
					return nil
				}
			}
			continue
		}
		dirEntry := top.entries[top.next]
		top.next++

		entry, ok := s.entryFor(top.dir, dirEntry)
		if !ok {
			continue
		}

		if entry.IsDir() {
			child, err := readFrame(entry.Path)
			if err != nil {
				skipEntry(entry.Path, err, "Failed to read directory, skipping")
				continue
			}
			owner := entry
			child.owner = &owner
			stack = append(stack, child)
			continue
		}

		if stop := visitPostorder(entry, fn); stop {
			return nil
		}
	}
	return nil
}

// visitPostorder invokes fn and reports whether the walk must stop.
// Replacements have no meaning once the subtree was visited.
func visitPostorder(entry store.Entry, fn store.WalkFunc) bool {
	_, err := fn(entry)
	switch {
	case errors.Is(err, store.ErrStopWalk):
		return true
	case err != nil && !errors.Is(err, store.ErrSkipDir):
		skipEntry(entry.Path, err, "Walk callback failed, skipping entry")
	}
	return false
}

// openFrame reads the walk root. Unlike nested directories, a root that
// cannot be read fails the whole walk.
func (s *Store) openFrame(dir string) (*frame, error) {
	dir = filepath.Clean(dir)
	if s.hidden(dir) {
		return nil, store.NotFoundError{Path: dir}
	}

	f, err := readFrame(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ENOTDIR) {
			log.Debug().Str("dir", dir).Msg("Walk root not found")
			return nil, store.NotFoundError{Path: dir}
		}
		log.Error().Err(err).Str("dir", dir).Msg("Failed to read walk root")
		return nil, store.IOError{Op: "readdir", Path: dir, Err: err}
	}
	return f, nil
}

func readFrame(dir string) (*frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return &frame{entries: entries, dir: dir}, nil
}

// entryFor builds the Entry for one directory entry. Hidden entries and
// entries whose metadata cannot be read are dropped; the latter are logged.
func (s *Store) entryFor(dir string, dirEntry os.DirEntry) (store.Entry, bool) {
	p := filepath.Join(dir, dirEntry.Name())
	if s.hidden(p) {
		return store.Entry{}, false
	}

	info, err := dirEntry.Info()
	if err != nil {
		skipEntry(p, err, "Failed to stat entry, skipping")
		return store.Entry{}, false
	}
	return s.newEntry(p, info), true
}

func (s *Store) newEntry(p string, info fs.FileInfo) store.Entry {
	kind := store.KindFile
	if info.IsDir() {
		kind = store.KindDirectory
	}
	r, _ := s.rel(p)
	return store.Entry{
		Path:         p,
		RelativePath: r,
		Name:         info.Name(),
		Kind:         kind,
		Size:         info.Size(),
		ModifiedAt:   info.ModTime(),
	}
}

func skipEntry(p string, err error, msg string) {
	metrics.RecordWalkSkip()
	log.Warn().Err(err).Str("path", p).Msg(msg)
}
