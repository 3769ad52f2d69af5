package disk

import (
	"os"
	"path/filepath"
	"sync"

	"filecore/pkg/archive"
	"filecore/pkg/config"
	"filecore/pkg/log"
	"filecore/pkg/store"
)

const (
	dirPerm  = 0750
	filePerm = 0640

	stagingPrefix = "upload-"
	stagingSuffix = ".tmp"
)

// Store implements store.Store on top of a local directory tree.
type Store struct {
	root       string
	realRoot   string
	stagingDir string
	recycleDir string
	maxProbes  int
	serialize  bool
	exclude    *ExcludeMatcher
	archiver   *archive.Builder

	lockMutex  sync.Mutex
	writeLocks map[string]*pathLock
}

// pathLock is a reference counted mutex guarding one destination path.
type pathLock struct {
	mu   sync.Mutex
	refs int
}

var _ store.Store = (*Store)(nil)

// New creates a Store for the storage section of cfg. The storage root is
// created when missing.
func New(cfg config.Config) (*Store, error) {
	root := filepath.Clean(cfg.Storage.Root)
	if err := os.MkdirAll(root, dirPerm); err != nil {
		log.Error().Err(err).Str("root", root).Msg("Failed to create storage root")
		return nil, store.IOError{Op: "mkdir", Path: root, Err: err}
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		log.Error().Err(err).Str("root", root).Msg("Failed to resolve storage root")
		return nil, store.IOError{Op: "readlink", Path: root, Err: err}
	}

	exclude, err := NewExcludeMatcher(cfg.Storage.Exclude)
	if err != nil {
		return nil, err
	}

	s := &Store{
		root:       root,
		realRoot:   realRoot,
		stagingDir: filepath.Join(root, cfg.Storage.StagingDir),
		recycleDir: filepath.Join(root, cfg.Storage.RecycleDir),
		maxProbes:  cfg.Storage.MaxConflictProbes,
		serialize:  cfg.Storage.SerializeWrites,
		exclude:    exclude,
		writeLocks: make(map[string]*pathLock),
	}

	s.archiver, err = archive.New(s, archive.Options{
		Format: cfg.Archive.Format,
		Level:  cfg.Archive.Level,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("root", s.root).
		Str("staging_dir", s.stagingDir).
		Str("recycle_dir", s.recycleDir).
		Bool("serialize_writes", s.serialize).
		Msg("Disk store initialized")
	return s, nil
}

// NewWithDefaults creates a Store rooted at root using the default configuration.
func NewWithDefaults(root string) (*Store, error) {
	cfg := config.Default()
	cfg.Storage.Root = root
	return New(cfg)
}

// Root returns the physical storage root.
func (s *Store) Root() string {
	return s.root
}

// lockPath serializes commits to path and returns the matching unlock func.
// Entries are dropped from the table once the last holder releases them.
func (s *Store) lockPath(path string) func() {
	s.lockMutex.Lock()
	lock, exists := s.writeLocks[path]
	if !exists {
		lock = &pathLock{}
		s.writeLocks[path] = lock
	}
	lock.refs++
	s.lockMutex.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		s.lockMutex.Lock()
		defer s.lockMutex.Unlock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.writeLocks, path)
		}
	}
}
