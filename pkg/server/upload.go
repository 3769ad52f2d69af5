package server

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"filecore/pkg/log"
	"filecore/pkg/store"
)

// UploadedFile describes one committed part of a multipart upload.
type UploadedFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// UploadResponse lists the files committed by an upload request.
type UploadResponse struct {
	Files []UploadedFile `json:"files"`
}

var (
	errNotMultipart = badRequestError{message: "multipart form data required"}
	errInvalidName  = badRequestError{message: "invalid file name"}
	errNoFiles      = badRequestError{message: "no files in request"}
)

// destinationFunc maps a part's base name to its physical destination.
type destinationFunc func(name string) (string, error)

// uploadFiles handles POST /files/* requests: every part is stored in the
// target directory under a fresh name.
func (srv *FileServer) uploadFiles(ctx echo.Context) error {
	dir, err := srv.resolveParam(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	entry, err := srv.store.Stat(ctx.Request().Context(), dir)
	if err != nil {
		return respondError(ctx, err)
	}
	if !entry.IsDir() {
		log.Warn().Str("path", entry.RelativePath).Msg("Upload target is not a directory")
		return badRequest(ctx, "upload target must be a directory")
	}

	files, err := srv.receiveParts(ctx, func(name string) (string, error) {
		return filepath.Join(entry.Path, name), nil
	}, false)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, UploadResponse{Files: files})
}

// replaceFiles handles PUT /files/* requests: the target must be a file and
// every part replaces the same-named file in its directory.
func (srv *FileServer) replaceFiles(ctx echo.Context) error {
	p, err := srv.resolveParam(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	entry, err := srv.store.Stat(ctx.Request().Context(), p)
	if err != nil {
		return respondError(ctx, err)
	}
	if entry.IsDir() {
		log.Warn().Str("path", entry.RelativePath).Msg("Replace target is a directory")
		return badRequest(ctx, "replace target must be a file")
	}

	parent := filepath.Dir(entry.Path)
	files, err := srv.receiveParts(ctx, func(name string) (string, error) {
		return filepath.Join(parent, name), nil
	}, true)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, UploadResponse{Files: files})
}

// analyzeFiles handles POST /analyze requests. Each part is stored as
// <name>/<name> below the root, replacing earlier uploads, and handed to the
// analysis command once committed.
func (srv *FileServer) analyzeFiles(ctx echo.Context) error {
	files, err := srv.receiveParts(ctx, func(name string) (string, error) {
		return srv.store.Resolve(path.Join(name, name))
	}, true)
	if err != nil {
		return respondError(ctx, err)
	}

	for _, f := range files {
		p, err := srv.store.Resolve(f.Path)
		if err != nil {
			return respondError(ctx, err)
		}
		srv.analyzer.Start(p)
	}
	return ctx.JSON(http.StatusOK, UploadResponse{Files: files})
}

// receiveParts streams every file part of a multipart body into the store.
// Parts are committed one at a time; a failing part ends the request and
// leaves the parts before it committed.
func (srv *FileServer) receiveParts(ctx echo.Context, dest destinationFunc, overwrite bool) ([]UploadedFile, error) {
	reader, err := ctx.Request().MultipartReader()
	if err != nil {
		log.Warn().Err(err).Msg("Request is not a multipart upload")
		return nil, errNotMultipart
	}

	files := make([]UploadedFile, 0)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("received", len(files)).Msg("Malformed multipart body")
			return nil, store.StreamAbortedError{Err: err}
		}

		uploaded, err := srv.receivePart(ctx, part.FileName(), part, dest, overwrite)
		if closeErr := part.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("Failed to close multipart part")
		}
		if err != nil {
			return nil, err
		}
		if uploaded != nil {
			files = append(files, *uploaded)
		}
	}

	if len(files) == 0 {
		log.Warn().Msg("Upload request without files")
		return nil, errNoFiles
	}
	return files, nil
}

// receivePart stores a single part. Form fields without a file name are
// skipped and yield nil.
func (srv *FileServer) receivePart(ctx echo.Context, filename string, r io.Reader, dest destinationFunc,
	overwrite bool) (*UploadedFile, error) {
	if filename == "" {
		return nil, nil
	}

	name, ok := partName(filename)
	if !ok {
		log.Warn().Str("filename", filename).Msg("Rejecting part with unusable file name")
		return nil, errInvalidName
	}

	target, err := dest(name)
	if err != nil {
		return nil, err
	}

	committed, err := srv.store.Write(ctx.Request().Context(), target, r, nil, overwrite)
	if err != nil {
		return nil, err
	}
	return &UploadedFile{Name: filepath.Base(committed), Path: srv.relative(committed)}, nil
}

// partName unescapes a client supplied file name and reduces it to a base name.
func partName(filename string) (string, bool) {
	if unescaped, err := url.PathUnescape(filename); err == nil {
		filename = unescaped
	}
	name := filepath.Base(filepath.FromSlash(filename))
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return "", false
	}
	return name, true
}
