package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"filecore/pkg/store/disk"
)

// DeleteTestSuite tests DELETE /files/*
type DeleteTestSuite struct {
	suite.Suite
	srv   *FileServer
	store *disk.Store
}

func (s *DeleteTestSuite) SetupTest() {
	s.srv, s.store = newTestServer(s.T(), nil)
	writeFiles(s.T(), s.store.Root(), map[string]string{"cats/tom.png": "tom"})
}

func (s *DeleteTestSuite) delete(target string) *httptest.ResponseRecorder {
	return serve(s.srv, httptest.NewRequest(http.MethodDelete, target, nil))
}

func (s *DeleteTestSuite) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(s.store.Root(), filepath.FromSlash(rel)))
	return !errors.Is(err, os.ErrNotExist)
}

func (s *DeleteTestSuite) TestDeleteRecyclesThenPurges() {
	rec := s.delete("/files/cats/tom.png")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "cats/tom.png")
	s.False(s.exists("cats/tom.png"))
	s.True(s.exists(".recycle/cats/tom.png"))

	rec = s.delete("/files/.recycle/cats/tom.png")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.False(s.exists(".recycle/cats/tom.png"))
}

func (s *DeleteTestSuite) TestDeletePercentName() {
	writeFiles(s.T(), s.store.Root(), map[string]string{
		"aA.txt":   "keep",
		"a%41.txt": "drop",
	})

	rec := s.delete("/files/a%2541.txt")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.False(s.exists("a%41.txt"))
	s.True(s.exists(".recycle/a%41.txt"))
	s.True(s.exists("aA.txt"))
}

func (s *DeleteTestSuite) TestDeleteMissing() {
	rec := s.delete("/files/cats/garfield.png")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("file not found", decodeError(s.T(), rec))
}

func (s *DeleteTestSuite) TestDeleteRootRefused() {
	rec := s.delete("/files")
	s.Equal(http.StatusConflict, rec.Code)
	s.True(s.exists("cats/tom.png"))
}

func TestDeleteTestSuite(t *testing.T) {
	suite.Run(t, new(DeleteTestSuite))
}
