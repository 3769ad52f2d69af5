package disk

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sys/unix"

	"filecore/pkg/store"
)

// OpenTestSuite tests Stat, Open and Usage
type OpenTestSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *OpenTestSuite) SetupTest() {
	s.store = newTestStore(s.T(), nil)
	s.ctx = context.Background()
	writeTree(s.T(), s.store.Root(), map[string]string{"docs/readme.md": "# readme"})
}

func (s *OpenTestSuite) TestStat() {
	entry, err := s.store.Stat(s.ctx, filepath.Join(s.store.Root(), "docs", "readme.md"))
	s.Require().NoError(err)
	s.Equal("readme.md", entry.Name)
	s.Equal("docs/readme.md", entry.RelativePath)
	s.Equal(int64(8), entry.Size)

	entry, err = s.store.Stat(s.ctx, filepath.Join(s.store.Root(), "docs"))
	s.Require().NoError(err)
	s.True(entry.IsDir())
}

func (s *OpenTestSuite) TestStatNotFound() {
	var notFound store.NotFoundError

	_, err := s.store.Stat(s.ctx, filepath.Join(s.store.Root(), "nope"))
	s.True(errors.As(err, &notFound))

	_, err = s.store.Stat(s.ctx, filepath.Join(s.store.Root(), "docs", "readme.md", "child"))
	s.True(errors.As(err, &notFound))
}

func (s *OpenTestSuite) TestStatSymlinks() {
	outside := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0640))
	writeTree(s.T(), s.store.Root(), map[string]string{".staging/upload-1.tmp": "pending"})

	link := func(target, name string) string {
		p := filepath.Join(s.store.Root(), name)
		s.Require().NoError(os.Symlink(target, p))
		return p
	}

	entry, err := s.store.Stat(s.ctx, link(filepath.Join(s.store.Root(), "docs", "readme.md"), "readme-link.md"))
	s.Require().NoError(err)
	s.Equal(int64(8), entry.Size)

	var notFound store.NotFoundError
	_, err = s.store.Stat(s.ctx, link(filepath.Join(outside, "secret.txt"), "secret.txt"))
	s.True(errors.As(err, &notFound))

	_, _, err = s.store.Open(s.ctx, link(outside, "outside"))
	s.True(errors.As(err, &notFound))

	_, err = s.store.Stat(s.ctx, link(filepath.Join(s.store.Root(), ".staging", "upload-1.tmp"), "pending.tmp"))
	s.True(errors.As(err, &notFound))
}

func (s *OpenTestSuite) TestOpen() {
	file, entry, err := s.store.Open(s.ctx, filepath.Join(s.store.Root(), "docs", "readme.md"))
	s.Require().NoError(err)
	defer file.Close()

	data, err := io.ReadAll(file)
	s.Require().NoError(err)
	s.Equal("# readme", string(data))
	s.Equal(int64(len(data)), entry.Size)
}

func (s *OpenTestSuite) TestOpenDirectory() {
	_, _, err := s.store.Open(s.ctx, filepath.Join(s.store.Root(), "docs"))
	var ioErr store.IOError
	s.Require().True(errors.As(err, &ioErr))
	s.True(errors.Is(err, unix.EISDIR))
}

func (s *OpenTestSuite) TestUsage() {
	usage, err := s.store.Usage()
	s.Require().NoError(err)
	s.Positive(usage.TotalSpace)
	s.LessOrEqual(usage.SpaceAvailable, usage.TotalSpace)
	s.LessOrEqual(usage.SpaceUsed, usage.TotalSpace)
	s.GreaterOrEqual(usage.SpaceUsed, int64(0))
}

func TestOpenTestSuite(t *testing.T) {
	suite.Run(t, new(OpenTestSuite))
}
