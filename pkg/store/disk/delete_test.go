package disk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"filecore/pkg/store"
)

// DeleteTestSuite tests recycling and permanent deletion
type DeleteTestSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *DeleteTestSuite) SetupTest() {
	s.store = newTestStore(s.T(), nil)
	s.ctx = context.Background()
}

func (s *DeleteTestSuite) path(rel string) string {
	return filepath.Join(s.store.Root(), filepath.FromSlash(rel))
}

func (s *DeleteTestSuite) assertMissing(p string) {
	_, err := os.Lstat(p)
	s.True(errors.Is(err, os.ErrNotExist), "%s still exists", p)
}

func (s *DeleteTestSuite) assertContent(p, expected string) {
	data, err := os.ReadFile(p)
	s.Require().NoError(err)
	s.Equal(expected, string(data))
}

func (s *DeleteTestSuite) TestDeleteMovesToRecycle() {
	writeTree(s.T(), s.store.Root(), map[string]string{"cats/tom.png": "tom"})

	s.Require().NoError(s.store.Delete(s.ctx, s.path("cats/tom.png")))

	s.assertMissing(s.path("cats/tom.png"))
	s.assertContent(s.path(".recycle/cats/tom.png"), "tom")
}

func (s *DeleteTestSuite) TestDeleteRecycledIsPermanent() {
	writeTree(s.T(), s.store.Root(), map[string]string{"tom.png": "tom"})

	s.Require().NoError(s.store.Delete(s.ctx, s.path("tom.png")))
	s.Require().NoError(s.store.Delete(s.ctx, s.path(".recycle/tom.png")))

	s.assertMissing(s.path("tom.png"))
	s.assertMissing(s.path(".recycle/tom.png"))
}

func (s *DeleteTestSuite) TestDeleteTwiceKeepsBothCopies() {
	writeTree(s.T(), s.store.Root(), map[string]string{"notes.txt": "first"})
	s.Require().NoError(s.store.Delete(s.ctx, s.path("notes.txt")))

	writeTree(s.T(), s.store.Root(), map[string]string{"notes.txt": "second"})
	s.Require().NoError(s.store.Delete(s.ctx, s.path("notes.txt")))

	s.assertContent(s.path(".recycle/notes.txt"), "first")
	s.assertContent(s.path(".recycle/notes-2.txt"), "second")
}

func (s *DeleteTestSuite) TestDeleteDirectory() {
	writeTree(s.T(), s.store.Root(), map[string]string{
		"album/one.jpg":     "1",
		"album/sub/two.jpg": "2",
	})

	s.Require().NoError(s.store.Delete(s.ctx, s.path("album")))
	s.assertMissing(s.path("album"))
	s.assertContent(s.path(".recycle/album/sub/two.jpg"), "2")

	s.Require().NoError(s.store.Delete(s.ctx, s.path(".recycle/album")))
	s.assertMissing(s.path(".recycle/album"))
}

func (s *DeleteTestSuite) TestDeleteMissing() {
	err := s.store.Delete(s.ctx, s.path("ghost.txt"))
	var notFound store.NotFoundError
	s.True(errors.As(err, &notFound))
}

func (s *DeleteTestSuite) TestDeleteRefusesRoots() {
	var conflict store.ConflictError

	err := s.store.Delete(s.ctx, s.store.Root())
	s.True(errors.As(err, &conflict))

	s.Require().NoError(os.MkdirAll(s.store.recycleDir, 0750))
	err = s.store.Delete(s.ctx, s.store.recycleDir)
	s.True(errors.As(err, &conflict))
}

func (s *DeleteTestSuite) TestDeleteOutsideTree() {
	var notFound store.NotFoundError

	outside := filepath.Join(s.T().TempDir(), "elsewhere.txt")
	s.Require().NoError(os.WriteFile(outside, []byte("x"), 0640))
	err := s.store.Delete(s.ctx, outside)
	s.True(errors.As(err, &notFound))
	_, statErr := os.Stat(outside)
	s.NoError(statErr)

	writeTree(s.T(), s.store.Root(), map[string]string{".staging/upload-1.tmp": "x"})
	err = s.store.Delete(s.ctx, s.path(".staging/upload-1.tmp"))
	s.True(errors.As(err, &notFound))
}

func (s *DeleteTestSuite) TestDeleteCancelled() {
	writeTree(s.T(), s.store.Root(), map[string]string{"keep.txt": "x"})
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	err := s.store.Delete(ctx, s.path("keep.txt"))
	s.True(errors.Is(err, context.Canceled))
	s.assertContent(s.path("keep.txt"), "x")
}

func TestDeleteTestSuite(t *testing.T) {
	suite.Run(t, new(DeleteTestSuite))
}
