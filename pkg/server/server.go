package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sys/unix"

	"filecore/pkg/analyze"
	"filecore/pkg/config"
	"filecore/pkg/log"
	"filecore/pkg/metrics"
	"filecore/pkg/store"
)

const filesPrefix = "/files"

// FileServer exposes a store.Store over HTTP.
type FileServer struct {
	cfg      config.Config
	echo     *echo.Echo
	version  string
	store    store.Store
	analyzer *analyze.Runner
	started  time.Time
}

// New creates a FileServer. analyzer may be nil when analysis is not used.
func New(cfg config.Config, version string, storeImpl store.Store, analyzer *analyze.Runner) *FileServer {
	if analyzer == nil {
		analyzer = analyze.New(cfg.Analyze)
	}

	srv := &FileServer{
		cfg:      cfg,
		echo:     echo.New(),
		version:  version,
		store:    storeImpl,
		analyzer: analyzer,
		started:  time.Now(),
	}
	srv.setupRoutes()
	return srv
}

// Handler returns the HTTP handler serving every route.
func (srv *FileServer) Handler() http.Handler {
	return srv.echo
}

// Start serves on the configured address until SIGINT or SIGTERM arrives.
func (srv *FileServer) Start() error {
	addr := srv.cfg.Server.Listen

	// Start the server in a goroutine.
	go func() {
		log.Info().
			Str("addr", addr).
			Str("root", srv.store.Root()).
			Str("version", srv.version).
			Bool("analyze", srv.analyzer.Enabled()).
			Msg("Starting file server")

		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	// Wait for the interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return srv.Shutdown()
}

// Shutdown stops accepting requests, waits for in-flight requests and
// analysis runs, then flushes filesystem buffers.
func (srv *FileServer) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")

	if srv.analyzer.Enabled() {
		log.Info().Msg("Waiting for running analyses...")
		srv.analyzer.Wait()
	}

	unix.Sync()
	log.Info().Msg("Filesystem buffers flushed")

	log.Info().Msg("Shutdown complete")
	return nil
}

func (srv *FileServer) setupRoutes() {
	// Echo configuration
	srv.echo.HideBanner = true
	srv.echo.HidePort = true

	srv.echo.Pre(middleware.RemoveTrailingSlash())
	srv.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))

	// No Gzip middleware: stored files are served byte for byte.
	srv.echo.Use(middleware.Recover())

	for _, route := range []string{filesPrefix, filesPrefix + "/*"} {
		srv.echo.GET(route, srv.getFile)
		srv.echo.POST(route, srv.uploadFiles)
		srv.echo.PUT(route, srv.replaceFiles)
		srv.echo.DELETE(route, srv.deleteFile)
	}
	srv.echo.POST("/analyze", srv.analyzeFiles)
	srv.echo.GET("/info", srv.getInfo)
	srv.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}
