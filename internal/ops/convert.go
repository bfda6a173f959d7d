package ops

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
)

// ConvertInput contains parameters for the Convert operation.
type ConvertInput struct {
	Source
	OutPath string // required
	Format  string // optional; default: from OutPath
}

// ConvertOutput contains the result of the Convert operation.
type ConvertOutput struct {
	Path       string   `json:"path"`
	FromFormat string   `json:"from_format"`
	Format     string   `json:"format"`
	Spec       string   `json:"spec"`
	Bytes      int      `json:"bytes"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Convert reads a card file and writes it in another format without touching the
// library.
func Convert(ctx context.Context, cfg *config.Config, input ConvertInput) (*ConvertOutput, error) {
	if input.OutPath == "" {
		return nil, errors.NewInvalidRequest("output path is required")
	}
	format, err := resolveExportFormat(input.Format, input.OutPath, "")
	if err != nil {
		return nil, err
	}
	if err := ValidatePath(input.OutPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}
	if input.Path != "" && filepath.Clean(input.Path) == filepath.Clean(input.OutPath) {
		return nil, errors.NewInvalidRequest("output path must differ from the input path")
	}

	pc, _, err := parseSource(ctx, cfg, input.Source, nil)
	if err != nil {
		return nil, err
	}

	data, warnings, err := Encode(BundleFromParsed(pc), format, cfg)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(input.OutPath, data); err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn().Str("path", input.OutPath).Msg(w)
	}

	return &ConvertOutput{
		Path:       input.OutPath,
		FromFormat: string(pc.Format),
		Format:     string(format),
		Spec:       pc.Spec,
		Bytes:      len(data),
		Warnings:   append(pc.Warnings, warnings...),
	}, nil
}
