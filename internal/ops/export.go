package ops

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/library"
	"github.com/hpungsan/cardforge/internal/parser"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	ID             string
	Name           string
	Format         string // optional; default: from Path, else the card's source format
	Path           string // optional, default: ~/.cardforge/exports/<name>-<timestamp>.<ext>
	IncludeDeleted bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	ID         string   `json:"id"`
	Path       string   `json:"path"`
	Format     string   `json:"format"`
	Bytes      int      `json:"bytes"`
	Warnings   []string `json:"warnings,omitempty"`
	ExportedAt int64    `json:"exported_at"`
}

// Export writes a library card to a file in one of the card formats.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Name)
	if err != nil {
		return nil, err
	}
	e, err := resolve(ctx, database, addr, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	format, err := resolveExportFormat(input.Format, input.Path, sourceExportFormat(e))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath, err = defaultExportPath(e, format, now)
		if err != nil {
			return nil, err
		}
	}

	// Validate ALL paths (both user-provided and default) for security
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	data, warnings, err := encodeEntry(ctx, database, cfg, e, format)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(exportPath, data); err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn().Str("id", e.ID).Str("path", exportPath).Msg(w)
	}

	return &ExportOutput{
		ID:         e.ID,
		Path:       exportPath,
		Format:     string(format),
		Bytes:      len(data),
		Warnings:   warnings,
		ExportedAt: now.Unix(),
	}, nil
}

// resolveExportFormat picks the output format. An explicit format must agree with the
// path's extension when both are given.
func resolveExportFormat(name, path string, fallback ExportFormat) (ExportFormat, error) {
	var fromPath ExportFormat
	if path != "" {
		f, ok := FormatForExt(filepath.Ext(path))
		if !ok {
			return "", errors.NewInvalidRequest("path must have one of the extensions .json, .png, .charx, .voxpkg")
		}
		fromPath = f
	}
	if strings.TrimSpace(name) == "" {
		if fromPath != "" {
			return fromPath, nil
		}
		return fallback, nil
	}
	f, err := ParseExportFormat(name)
	if err != nil {
		return "", err
	}
	if fromPath != "" && f != fromPath {
		return "", errors.NewInvalidRequest(fmt.Sprintf("format %q does not match path extension %q", f, filepath.Ext(path)))
	}
	return f, nil
}

// sourceExportFormat maps an entry's source container to the matching output format.
func sourceExportFormat(e *library.Entry) ExportFormat {
	switch parser.Format(e.SourceFormat) {
	case parser.FormatPNG:
		return ExportPNG
	case parser.FormatCharX:
		return ExportCharX
	case parser.FormatVoxta:
		return ExportVoxpkg
	}
	return ExportJSON
}

// defaultExportPath generates the default export path.
// Format: ~/.cardforge/exports/<name>-<timestamp>.<ext>
func defaultExportPath(e *library.Entry, format ExportFormat, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}

	// Sanitize the normalized name to prevent path injection via card names
	name := SanitizeForFilename(e.NameNorm)
	timestamp := now.Format("2006-01-02T150405")
	filename := fmt.Sprintf("%s-%s%s", name, timestamp, format.Ext())
	return filepath.Join(dir, filename), nil
}
