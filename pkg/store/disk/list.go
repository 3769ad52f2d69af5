package disk

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"filecore/pkg/log"
	"filecore/pkg/store"
)

// List returns the immediate children of dir, directories first and each
// group ordered by name. A directory that is missing or cannot be read is
// reported as not found.
func (s *Store) List(ctx context.Context, dir string) (*store.Listing, error) {
	dir = filepath.Clean(dir)
	if s.hidden(dir) {
		return nil, store.NotFoundError{Path: dir}
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		log.Info().Err(err).Str("dir", dir).Msg("Directory not readable")
		return nil, store.NotFoundError{Path: dir}
	}

	entries := make([]store.Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, ok := s.entryFor(dir, dirEntry)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}

	slices.SortStableFunc(entries, compareEntries)

	rel, _ := s.rel(dir)
	if rel == "." {
		rel = ""
	}

	log.Debug().Str("dir", dir).Int("entries", len(entries)).Msg("Directory listed")
	return &store.Listing{Path: rel, Entries: entries}, nil
}

// compareEntries orders directories before files, then by case-folded name
// with the exact name as a tie breaker.
func compareEntries(a, b store.Entry) int {
	if a.IsDir() != b.IsDir() {
		if a.IsDir() {
			return -1
		}
		return 1
	}
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}
