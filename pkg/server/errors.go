package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"filecore/pkg/log"
	"filecore/pkg/store"
)

// badRequestError rejects a malformed request.
type badRequestError struct {
	message string
}

func (e badRequestError) Error() string {
	return e.message
}

// respondError translates a store error into a JSON error response.
func respondError(ctx echo.Context, err error) error {
	var notFoundErr store.NotFoundError
	if errors.As(err, &notFoundErr) {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "file not found",
		})
	}
	var conflictErr store.ConflictError
	if errors.As(err, &conflictErr) {
		return ctx.JSON(http.StatusConflict, map[string]string{
			"error": "file already exists",
		})
	}
	var badRequestErr badRequestError
	if errors.As(err, &badRequestErr) {
		return badRequest(ctx, badRequestErr.message)
	}
	var abortedErr store.StreamAbortedError
	if errors.As(err, &abortedErr) {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "upload aborted",
		})
	}

	log.Error().Err(err).Str("uri", ctx.Request().RequestURI).Msg("Request failed")
	return ctx.JSON(http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, map[string]string{
		"error": message,
	})
}

// resolveParam maps the request path below /files onto a physical path.
// URL.Path is already decoded once by net/http and must not be decoded again.
func (srv *FileServer) resolveParam(ctx echo.Context) (string, error) {
	logical := strings.TrimPrefix(ctx.Request().URL.Path, filesPrefix)
	return srv.store.Resolve(logical)
}

// relative returns the slash separated path of p below the storage root.
func (srv *FileServer) relative(p string) string {
	rel, err := filepath.Rel(srv.store.Root(), p)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}
