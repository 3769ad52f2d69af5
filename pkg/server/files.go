package server

import (
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"filecore/pkg/archive"
	"filecore/pkg/log"
	"filecore/pkg/store"
)

// EntryResponse is one row of a directory listing.
type EntryResponse struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Kind       store.Kind `json:"kind"`
	Size       int64      `json:"size"`
	SizeHuman  string     `json:"size_human"`
	ModifiedAt time.Time  `json:"modified_at"`
}

// ListingResponse is the body returned for a directory.
type ListingResponse struct {
	Path    string          `json:"path"`
	Entries []EntryResponse `json:"entries"`
}

var archiveContentTypes = map[string]string{
	archive.FormatZip:    "application/zip",
	archive.FormatTarGz:  "application/gzip",
	archive.FormatTarZst: "application/zstd",
}

// getFile handles GET /files/* requests. Directories are listed or, with
// ?download, streamed as an archive. Files are shown inline or, with
// ?download, sent as an attachment.
func (srv *FileServer) getFile(ctx echo.Context) error {
	p, err := srv.resolveParam(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	entry, err := srv.store.Stat(ctx.Request().Context(), p)
	if err != nil {
		return respondError(ctx, err)
	}

	_, download := ctx.QueryParams()["download"]
	log.Info().
		Str("path", entry.RelativePath).
		Str("kind", string(entry.Kind)).
		Bool("download", download).
		Msg("File request")

	switch {
	case entry.IsDir() && download:
		return srv.downloadDirectory(ctx, entry)
	case entry.IsDir():
		return srv.listDirectory(ctx, entry)
	default:
		return srv.serveFile(ctx, entry, download)
	}
}

func (srv *FileServer) listDirectory(ctx echo.Context, entry *store.Entry) error {
	listing, err := srv.store.List(ctx.Request().Context(), entry.Path)
	if err != nil {
		return respondError(ctx, err)
	}

	resp := ListingResponse{
		Path:    listing.Path,
		Entries: make([]EntryResponse, 0, len(listing.Entries)),
	}
	for _, e := range listing.Entries {
		resp.Entries = append(resp.Entries, EntryResponse{
			Name:       e.Name,
			Path:       e.RelativePath,
			Kind:       e.Kind,
			Size:       e.Size,
			SizeHuman:  humanize.IBytes(uint64(max(e.Size, 0))), //nolint:gosec // clamped above
			ModifiedAt: e.ModifiedAt,
		})
	}
	return ctx.JSON(http.StatusOK, resp)
}

// downloadDirectory streams an archive of the directory. Once the first byte
// was sent a failure can only be signalled by dropping the connection.
func (srv *FileServer) downloadDirectory(ctx echo.Context, entry *store.Entry) error {
	name := entry.Name
	if entry.Path == srv.store.Root() {
		name = srv.cfg.Server.AppName
	}
	format := srv.cfg.Archive.Format
	if format == "" {
		format = archive.FormatZip
	}
	filename := archive.Filename(format, name, time.Now())

	header := ctx.Response().Header()
	header.Set(echo.HeaderContentType, archiveContentTypes[format])
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{
		"filename": filename,
	}))

	log.Info().Str("path", entry.RelativePath).Str("filename", filename).Msg("Serving directory archive")

	if err := srv.store.Archive(ctx.Request().Context(), ctx.Response(), entry.Path); err != nil {
		if !ctx.Response().Committed {
			header.Del(echo.HeaderContentType)
			header.Del(echo.HeaderContentDisposition)
			return respondError(ctx, err)
		}
		log.Error().Err(err).Str("path", entry.RelativePath).Msg("Archive stream aborted")
		panic(http.ErrAbortHandler)
	}
	return nil
}

func (srv *FileServer) serveFile(ctx echo.Context, entry *store.Entry, download bool) error {
	file, entry, err := srv.store.Open(ctx.Request().Context(), entry.Path)
	if err != nil {
		return respondError(ctx, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Str("path", entry.Path).Msg("Failed to close served file")
		}
	}()

	disposition := "inline"
	contentType := echo.MIMEOctetStream
	if download {
		disposition = "attachment"
	} else {
		mtype, err := mimetype.DetectReader(file)
		if err != nil {
			log.Error().Err(err).Str("path", entry.Path).Msg("Failed to detect content type")
			return respondError(ctx, store.IOError{Op: "read", Path: entry.Path, Err: err})
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return respondError(ctx, store.IOError{Op: "seek", Path: entry.Path, Err: err})
		}
		contentType = mtype.String()
	}

	header := ctx.Response().Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{
		"filename": entry.Name,
	}))

	log.Info().
		Str("path", entry.RelativePath).
		Str("content_type", contentType).
		Str("size", humanize.IBytes(uint64(max(entry.Size, 0)))). //nolint:gosec // clamped above
		Msg("Serving file")
	http.ServeContent(ctx.Response(), ctx.Request(), entry.Name, entry.ModifiedAt, file)
	return nil
}
