package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"time"

	"github.com/hpungsan/cardforge/internal/errors"
)

// DefaultCompressionLevel is used when callers do not pick one.
const DefaultCompressionLevel = 6

// Writer builds a ZIP in memory. Level 0 stores entries uncompressed.
type Writer struct {
	buf     bytes.Buffer
	zw      *zip.Writer
	level   int
	modTime time.Time
}

// NewWriter returns a writer compressing at level (0-9, or -1 for flate's default).
// A zero modTime leaves entry timestamps unset so output is reproducible.
func NewWriter(level int, modTime time.Time) (*Writer, error) {
	if level < flate.DefaultCompression || level > flate.BestCompression {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("compression level must be between -1 and 9, got %d", level))
	}

	w := &Writer{level: level, modTime: modTime}
	w.zw = zip.NewWriter(&w.buf)
	w.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return w, nil
}

// Add writes one entry.
func (w *Writer) Add(name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	if w.level == flate.NoCompression {
		hdr.Method = zip.Store
	}
	if !w.modTime.IsZero() {
		hdr.Modified = w.modTime
	}

	fw, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("create %s: %w", name, err))
	}
	if _, err := fw.Write(data); err != nil {
		return errors.NewInternal(fmt.Errorf("write %s: %w", name, err))
	}
	return nil
}

// Bytes finalizes the archive and returns it. The writer cannot be used afterwards.
func (w *Writer) Bytes() ([]byte, error) {
	if err := w.zw.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("close archive: %w", err))
	}
	return w.buf.Bytes(), nil
}
