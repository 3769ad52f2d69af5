package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"filecore/pkg/log"
)

// deleteFile handles DELETE /files/* requests. Files outside the recycle
// directory are recycled, files inside it are removed for good.
func (srv *FileServer) deleteFile(ctx echo.Context) error {
	p, err := srv.resolveParam(ctx)
	if err != nil {
		return respondError(ctx, err)
	}
	rel := srv.relative(p)

	log.Info().
		Str("path", rel).
		Str("method", "DELETE").
		Msg("File delete request")

	if err := srv.store.Delete(ctx.Request().Context(), p); err != nil {
		return respondError(ctx, err)
	}

	log.Info().Str("path", rel).Msg("File deleted successfully")
	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "File deleted successfully",
		"path":    rel,
	})
}
