package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/suite"

	"filecore/pkg/store"
	"filecore/pkg/store/disk"
)

// FilesTestSuite tests GET /files/*
type FilesTestSuite struct {
	suite.Suite
	srv   *FileServer
	store *disk.Store
}

func (s *FilesTestSuite) SetupTest() {
	s.srv, s.store = newTestServer(s.T(), nil)
	writeFiles(s.T(), s.store.Root(), map[string]string{
		"notes.txt":       "hello",
		"my file.txt":     "spaced",
		"album/a.txt":     "aaa",
		"album/sub/b.txt": "bb",
	})
}

func (s *FilesTestSuite) get(target string) *httptest.ResponseRecorder {
	return serve(s.srv, httptest.NewRequest(http.MethodGet, target, nil))
}

func (s *FilesTestSuite) TestListRoot() {
	rec := s.get("/files")
	s.Require().Equal(http.StatusOK, rec.Code)

	var listing ListingResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &listing))
	s.Equal("", listing.Path)

	names := make([]string, 0, len(listing.Entries))
	for _, e := range listing.Entries {
		names = append(names, e.Name)
	}
	s.Equal([]string{"album", "my file.txt", "notes.txt"}, names)
	s.Equal("5 B", listing.Entries[2].SizeHuman)
}

func (s *FilesTestSuite) TestListSubdirectory() {
	rec := s.get("/files/album/")
	s.Require().Equal(http.StatusOK, rec.Code)

	var listing ListingResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &listing))
	s.Equal("album", listing.Path)
	s.Require().Len(listing.Entries, 2)
	s.Equal("album/sub", listing.Entries[0].Path)
	s.Equal("album/a.txt", listing.Entries[1].Path)
}

func (s *FilesTestSuite) TestServeInline() {
	rec := s.get("/files/notes.txt")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("hello", rec.Body.String())
	s.Equal("text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	s.Equal("inline; filename=notes.txt", rec.Header().Get("Content-Disposition"))
}

func (s *FilesTestSuite) TestServeAttachment() {
	rec := s.get("/files/notes.txt?download")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("hello", rec.Body.String())
	s.Equal("application/octet-stream", rec.Header().Get("Content-Type"))
	s.Equal("attachment; filename=notes.txt", rec.Header().Get("Content-Disposition"))
}

func (s *FilesTestSuite) TestEscapedPath() {
	rec := s.get("/files/my%20file.txt")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("spaced", rec.Body.String())
}

func (s *FilesTestSuite) TestPercentInName() {
	writeFiles(s.T(), s.store.Root(), map[string]string{
		"100%.txt": "percent",
		"aA.txt":   "wrong",
		"a%41.txt": "right",
	})

	rec := s.get("/files/100%25.txt")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("percent", rec.Body.String())

	rec = s.get("/files/a%2541.txt")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("right", rec.Body.String())
}

func (s *FilesTestSuite) TestEscapingLinkNotServed() {
	outside := filepath.Join(s.T().TempDir(), "secret.txt")
	s.Require().NoError(os.WriteFile(outside, []byte("secret"), 0640))
	s.Require().NoError(os.Symlink(outside, filepath.Join(s.store.Root(), "secret.txt")))

	rec := s.get("/files/secret.txt")
	s.Equal(http.StatusNotFound, rec.Code)
	s.NotContains(rec.Body.String(), "secret")
}

func (s *FilesTestSuite) TestTraversalStaysInRoot() {
	rec := s.get("/files/..%2F..%2Fetc%2Fpasswd")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *FilesTestSuite) TestStagingIsHidden() {
	writeFiles(s.T(), s.store.Root(), map[string]string{".staging/upload-1.tmp": "pending"})

	rec := s.get("/files/.staging/upload-1.tmp")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *FilesTestSuite) TestNotFound() {
	rec := s.get("/files/missing.txt")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("file not found", decodeError(s.T(), rec))
}

func (s *FilesTestSuite) unzip(data []byte) map[string]string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	s.Require().NoError(err)

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		s.Require().NoError(err)
		content, err := io.ReadAll(rc)
		s.Require().NoError(err)
		s.Require().NoError(rc.Close())
		out[f.Name] = string(content)
	}
	return out
}

func (s *FilesTestSuite) TestDownloadDirectory() {
	rec := s.get("/files/album?download")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("application/zip", rec.Header().Get("Content-Type"))

	disposition := rec.Header().Get("Content-Disposition")
	s.True(strings.HasPrefix(disposition, "attachment; filename=album-"), disposition)
	s.True(strings.HasSuffix(disposition, ".zip"), disposition)

	s.Equal(map[string]string{
		"album/a.txt":     "aaa",
		"album/sub/b.txt": "bb",
	}, s.unzip(rec.Body.Bytes()))
}

func (s *FilesTestSuite) TestDownloadRootNamedAfterApp() {
	rec := s.get("/files?download")
	s.Require().Equal(http.StatusOK, rec.Code)

	disposition := rec.Header().Get("Content-Disposition")
	s.True(strings.HasPrefix(disposition, "attachment; filename=filecore-"), disposition)
	s.Len(s.unzip(rec.Body.Bytes()), 4)
}

func (s *FilesTestSuite) TestDownloadFailureBeforeStream() {
	s.srv.store = archiveErrorStore{Store: s.store, err: store.NotFoundError{Path: "album"}}

	rec := s.get("/files/album?download")
	s.Equal(http.StatusNotFound, rec.Code)
	s.True(strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"), rec.Header().Get("Content-Type"))
	s.Empty(rec.Header().Get("Content-Disposition"))
	s.Equal("file not found", decodeError(s.T(), rec))
}

func TestFilesTestSuite(t *testing.T) {
	suite.Run(t, new(FilesTestSuite))
}
