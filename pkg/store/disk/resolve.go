package disk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"filecore/pkg/log"
	"filecore/pkg/store"
)

// Resolve maps a slash separated logical path onto a physical path under the
// storage root. The logical path is cleaned as if it were absolute, so ".."
// elements can never climb above the root.
func (s *Store) Resolve(logical string) (string, error) {
	cleaned := path.Clean("/" + filepath.ToSlash(logical))
	physical := filepath.Join(s.root, filepath.FromSlash(cleaned))

	if s.isStaging(physical) {
		log.Debug().Str("logical", logical).Msg("Refusing to resolve into the staging area")
		return "", store.NotFoundError{Path: logical}
	}
	return physical, nil
}

// ResolveConflict returns path unchanged when nothing exists there or when
// overwrite is set. Otherwise it probes name-2.ext, name-3.ext and so on and
// returns the first free candidate.
func (s *Store) ResolveConflict(p string, overwrite bool) (string, error) {
	exists, err := pathExists(p)
	if err != nil {
		return "", store.IOError{Op: "stat", Path: p, Err: err}
	}
	if !exists || overwrite {
		return p, nil
	}

	limit := s.maxProbes + 1
	for counter := 2; counter <= limit; counter++ {
		candidate := similarName(p, counter)
		exists, err := pathExists(candidate)
		if err != nil {
			return "", store.IOError{Op: "stat", Path: candidate, Err: err}
		}
		if !exists {
			return candidate, nil
		}
	}

	log.Warn().Str("path", p).Int("max_probes", s.maxProbes).Msg("No free name found for destination")
	return "", store.ConflictError{Path: p}
}

// similarName inserts -counter before the extension of the base name. Names
// without an extension, including dot files such as .bashrc, get the suffix
// appended.
func similarName(p string, counter int) string {
	dir, base := filepath.Split(p)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, counter, ext))
}

func pathExists(p string) (bool, error) {
	if _, err := os.Lstat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// within reports whether p equals dir or lies below it.
func within(p, dir string) bool {
	if p == dir {
		return true
	}
	return strings.HasPrefix(p, dir+string(filepath.Separator))
}

// rel returns the slash separated path of p relative to the storage root.
func (s *Store) rel(p string) (string, bool) {
	p = filepath.Clean(p)
	if !within(p, s.root) {
		return "", false
	}
	r, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func (s *Store) isStaging(p string) bool {
	return within(filepath.Clean(p), s.stagingDir)
}

func (s *Store) isRecycled(p string) bool {
	return within(filepath.Clean(p), s.recycleDir)
}

// hidden reports whether p must never be exposed: it lies outside the root,
// inside the staging area, or it or one of its ancestors matches an exclude
// pattern.
func (s *Store) hidden(p string) bool {
	r, ok := s.rel(p)
	if !ok || s.isStaging(p) {
		return true
	}
	if r == "." {
		return false
	}
	for prefix := r; prefix != "." && prefix != "/"; prefix = path.Dir(prefix) {
		if s.exclude.Match(prefix) {
			return true
		}
	}
	return false
}

// Confined reports whether p, with symbolic links followed, still names a
// visible path inside the storage root.
func (s *Store) Confined(p string) bool {
	target, err := filepath.EvalSymlinks(p)
	if err != nil || !within(target, s.realRoot) {
		return false
	}
	r, err := filepath.Rel(s.realRoot, target)
	if err != nil {
		return false
	}
	return !s.hidden(filepath.Join(s.root, r))
}
