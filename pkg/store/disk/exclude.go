package disk

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExcludeMatcher hides paths matching doublestar patterns. Patterns without a
// '/' match the base name at any depth; patterns with a '/' match the slash
// separated path relative to the storage root.
type ExcludeMatcher struct {
	patterns []excludePattern
}

type excludePattern struct {
	pattern   string
	matchPath bool
}

// NewExcludeMatcher validates and compiles the given patterns.
func NewExcludeMatcher(raw []string) (*ExcludeMatcher, error) {
	m := &ExcludeMatcher{}
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		m.patterns = append(m.patterns, excludePattern{
			pattern:   strings.TrimPrefix(p, "/"),
			matchPath: strings.Contains(p, "/"),
		})
	}
	return m, nil
}

// Match reports whether the slash separated relative path is excluded.
func (m *ExcludeMatcher) Match(rel string) bool {
	if m == nil || len(m.patterns) == 0 || rel == "" || rel == "." {
		return false
	}

	base := path.Base(rel)
	for _, p := range m.patterns {
		subject := base
		if p.matchPath {
			subject = rel
		}
		if doublestar.MatchUnvalidated(p.pattern, subject) {
			return true
		}
	}
	return false
}
