package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Supported container formats.
const (
	FormatZip    = "zip"
	FormatTarGz  = "tar.gz"
	FormatTarZst = "tar.zst"
)

// Compression levels, mapped onto each codec's own scale.
const (
	LevelFastest = "fastest"
	LevelDefault = "default"
	LevelBetter  = "better"
	LevelBest    = "best"
)

// container is an append-only archive being written to a stream.
type container interface {
	// Add appends one file. r must yield exactly info.Size() bytes.
	Add(name string, info fs.FileInfo, r io.Reader) error
	// Close writes the trailing index and flushes the compressor.
	Close() error
}

func newContainer(format, level string, w io.Writer) (container, error) {
	switch format {
	case FormatZip:
		return newZipContainer(w, level), nil
	case FormatTarGz:
		gz, err := gzip.NewWriterLevel(w, gzipLevel(level))
		if err != nil {
			return nil, err
		}
		return &tarContainer{tw: tar.NewWriter(gz), compressor: gz}, nil
	case FormatTarZst:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return nil, err
		}
		return &tarContainer{tw: tar.NewWriter(enc), compressor: enc}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

type zipContainer struct {
	zw *zip.Writer
}

func newZipContainer(w io.Writer, level string) *zipContainer {
	zw := zip.NewWriter(w)
	lvl := flateLevel(level)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, lvl)
	})
	return &zipContainer{zw: zw}
}

func (z *zipContainer) Add(name string, info fs.FileInfo, r io.Reader) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := z.zw.CreateHeader(header)
	if err != nil {
		return err
	}
	return copyExact(w, r, info.Size())
}

func (z *zipContainer) Close() error {
	return z.zw.Close()
}

type tarContainer struct {
	tw         *tar.Writer
	compressor io.WriteCloser
}

func (t *tarContainer) Add(name string, info fs.FileInfo, r io.Reader) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name
	header.Format = tar.FormatPAX

	if err := t.tw.WriteHeader(header); err != nil {
		return err
	}
	return copyExact(t.tw, r, info.Size())
}

func (t *tarContainer) Close() error {
	if err := t.tw.Close(); err != nil {
		_ = t.compressor.Close()
		return err
	}
	return t.compressor.Close()
}

// copyExact copies size bytes. A file that shrank after it was stat'ed is an
// error; bytes appended after the stat are ignored.
func copyExact(w io.Writer, r io.Reader, size int64) error {
	n, err := io.Copy(w, io.LimitReader(r, size))
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("short read: got %d of %d bytes", n, size)
	}
	return nil
}

func flateLevel(level string) int {
	switch level {
	case LevelFastest:
		return flate.BestSpeed
	case LevelBetter:
		return 7
	case LevelBest:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

func gzipLevel(level string) int {
	switch level {
	case LevelFastest:
		return gzip.BestSpeed
	case LevelBetter:
		return 7
	case LevelBest:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func zstdLevel(level string) zstd.EncoderLevel {
	switch level {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBetter:
		return zstd.SpeedBetterCompression
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
