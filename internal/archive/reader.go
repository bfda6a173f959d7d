// Package archive wraps archive/zip with the size caps and entry hygiene shared by
// the ZIP-based card containers.
package archive

import (
	"archive/zip"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/hpungsan/cardforge/internal/binutil"
	"github.com/hpungsan/cardforge/internal/errors"
)

// Limits caps decompressed sizes. A zero field disables that cap.
type Limits struct {
	MaxJSONSize  int64
	MaxAssetSize int64
	MaxTotalSize int64
}

// Kind selects which per-file cap applies to an entry.
type Kind string

const (
	KindJSON  Kind = "json"
	KindAsset Kind = "asset"
)

// Reader reads entries from an in-memory ZIP while tracking a running total of
// decompressed bytes.
type Reader struct {
	container string
	limits    Limits
	zr        *zip.Reader
	total     int64
	entries   []*zip.File
	warnings  []string
}

// Open locates the ZIP inside buf (skipping any self-extracting stub) and indexes it.
// Directory entries are dropped; entries with ".." or a leading "/" are skipped with a
// warning.
func Open(buf []byte, container string, limits Limits) (*Reader, error) {
	data := binutil.FindZipStart(buf)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if stderrors.Is(err, zip.ErrInsecurePath) && zr != nil {
		// unsafe names are filtered below
		err = nil
	}
	if err != nil {
		return nil, errors.NewMalformedContainer(container, err.Error())
	}

	r := &Reader{container: container, limits: limits, zr: zr}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if !SafeName(f.Name) {
			r.warnings = append(r.warnings, fmt.Sprintf("skipped unsafe entry %q", f.Name))
			continue
		}
		r.entries = append(r.entries, f)
	}
	return r, nil
}

// SafeName reports whether an entry name stays inside the archive root.
func SafeName(name string) bool {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// Entries returns the file entries in archive order.
func (r *Reader) Entries() []*zip.File {
	return r.entries
}

// Warnings returns the hygiene warnings collected by Open.
func (r *Reader) Warnings() []string {
	return r.warnings
}

// Total returns the number of decompressed bytes read so far.
func (r *Reader) Total() int64 {
	return r.total
}

// Read decompresses f. Reading stops one byte past whichever of the per-file or
// remaining total caps is smaller, so an oversized entry is never fully inflated.
func (r *Reader) Read(f *zip.File, kind Kind) ([]byte, error) {
	perFile := r.limits.MaxAssetSize
	if kind == KindJSON {
		perFile = r.limits.MaxJSONSize
	}
	remaining := int64(-1)
	if r.limits.MaxTotalSize > 0 {
		remaining = r.limits.MaxTotalSize - r.total
	}

	limit := perFile
	if remaining >= 0 && (limit <= 0 || remaining < limit) {
		limit = remaining
	}

	rc, err := f.Open()
	if err != nil {
		return nil, errors.NewMalformedContainer(r.container, fmt.Sprintf("%s: %v", f.Name, err))
	}
	defer rc.Close()

	var src io.Reader = rc
	if limit >= 0 {
		src = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.NewMalformedContainer(r.container, fmt.Sprintf("%s: %v", f.Name, err))
	}

	n := int64(len(data))
	if perFile > 0 && n > perFile {
		return nil, errors.NewSizeLimitExceeded(string(kind), f.Name, perFile, declaredOr(f, n))
	}
	if remaining >= 0 && n > remaining {
		return nil, errors.NewSizeLimitExceeded("total", f.Name, r.limits.MaxTotalSize, r.total+declaredOr(f, n))
	}

	r.total += n
	return data, nil
}

// declaredOr prefers the header's uncompressed size when it is larger than what was read.
func declaredOr(f *zip.File, read int64) int64 {
	if declared := int64(f.UncompressedSize64); declared > read {
		return declared
	}
	return read
}
