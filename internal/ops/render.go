package ops

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/db"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/library"
)

// RenderInput contains parameters for the Render operation.
type RenderInput struct {
	ID             string
	Name           string
	Format         string // optional; default: the card's source format
	IncludeDeleted bool
}

// RenderOutput is an encoded card held in memory.
type RenderOutput struct {
	ID       string
	Format   ExportFormat
	Filename string
	Data     []byte
	Warnings []string
}

// Render encodes a library card without writing it anywhere.
func Render(ctx context.Context, database *sql.DB, cfg *config.Config, input RenderInput) (*RenderOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Name)
	if err != nil {
		return nil, err
	}
	e, err := resolve(ctx, database, addr, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	format, err := resolveExportFormat(input.Format, "", sourceExportFormat(e))
	if err != nil {
		return nil, err
	}
	data, warnings, err := encodeEntry(ctx, database, cfg, e, format)
	if err != nil {
		return nil, err
	}

	return &RenderOutput{
		ID:       e.ID,
		Format:   format,
		Filename: SanitizeForFilename(e.NameNorm) + format.Ext(),
		Data:     data,
		Warnings: warnings,
	}, nil
}

// MainImage returns a card's stored portrait and its sniffed content type.
func MainImage(ctx context.Context, database *sql.DB, id string, includeDeleted bool) ([]byte, string, error) {
	addr, err := ValidateAddress(id, "")
	if err != nil {
		return nil, "", err
	}
	e, err := resolve(ctx, database, addr, includeDeleted)
	if err != nil {
		return nil, "", err
	}
	if len(e.MainImage) == 0 {
		return nil, "", errors.NewNotFound(id + " (no image)")
	}
	return e.MainImage, http.DetectContentType(e.MainImage), nil
}

// encodeEntry loads an entry's assets and encodes it in format.
func encodeEntry(ctx context.Context, database *sql.DB, cfg *config.Config, e *library.Entry, format ExportFormat) ([]byte, []string, error) {
	assets, err := db.GetAssets(ctx, database, e.ID, true)
	if err != nil {
		return nil, nil, err
	}
	bundle, err := BundleFromEntry(e, assets)
	if err != nil {
		return nil, nil, err
	}

	select {
	case <-ctx.Done():
		return nil, nil, errors.NewCancelled("export")
	default:
	}

	return Encode(bundle, format, cfg)
}
