package store

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// Kind distinguishes files from directories.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Entry describes a node of the storage tree.
type Entry struct {
	Path         string    `json:"-"`
	RelativePath string    `json:"path"`
	Name         string    `json:"name"`
	Kind         Kind      `json:"kind"`
	Size         int64     `json:"size"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Listing holds the immediate children of a directory, directories first.
type Listing struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

// DiskUsage represents disk space information for the storage root.
type DiskUsage struct {
	SpaceUsed      int64 `json:"space_used"`      // Bytes used
	SpaceAvailable int64 `json:"space_available"` // Bytes available
	TotalSpace     int64 `json:"total_space"`     // Total bytes
}

// WalkOrder selects when a directory entry is reported relative to its children.
type WalkOrder int

const (
	// PreOrder reports a directory before its children.
	PreOrder WalkOrder = iota
	// PostOrder reports a directory after its children.
	PostOrder
)

// WalkFunc is invoked once per entry. A non-empty replacement returned for a
// directory entry during a pre-order walk is descended instead of the entry.
type WalkFunc func(entry Entry) (replacement string, err error)

var (
	// ErrSkipDir tells the walker not to descend into the current directory.
	ErrSkipDir = errors.New("skip this directory")
	// ErrStopWalk ends a walk early without reporting an error.
	ErrStopWalk = errors.New("stop walking")
)

// Store is the narrow interface through which the transport layer reaches the
// storage core. Paths other than Resolve's argument are physical paths.
type Store interface {
	// Resolve maps a slash separated logical path onto a physical path under the root.
	Resolve(logical string) (string, error)

	// Root returns the physical storage root.
	Root() string

	// Stat describes a single path.
	Stat(ctx context.Context, path string) (*Entry, error)

	// Open opens a file for reading.
	Open(ctx context.Context, path string) (*os.File, *Entry, error)

	// Write commits the prepend buffers followed by reader to path and returns
	// the path actually written, which differs from path when a name collision
	// was resolved.
	Write(ctx context.Context, path string, reader io.Reader, prepend [][]byte, overwrite bool) (string, error)

	// Delete moves path into the recycle area, or removes it permanently when it
	// already lives there.
	Delete(ctx context.Context, path string) error

	// List returns the immediate children of a directory.
	List(ctx context.Context, dir string) (*Listing, error)

	// Walk traverses the subtree below dir.
	Walk(ctx context.Context, dir string, order WalkOrder, fn WalkFunc) error

	// Archive streams the given subtrees into w as a single container.
	Archive(ctx context.Context, w io.Writer, paths ...string) error

	// Usage returns disk space information for the storage root.
	Usage() (*DiskUsage, error)
}
