package ops

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/db"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/library"
	"github.com/hpungsan/cardforge/internal/parser"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on name collision
	ImportModeReplace ImportMode = "replace" // soft-delete the existing card
	ImportModeRename  ImportMode = "rename"  // auto-suffix name on collision
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Source
	Name string     // optional library name; default: the card's name
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Format     string   `json:"format"`
	Spec       string   `json:"spec"`
	AssetCount int      `json:"asset_count"`
	HasImage   bool     `json:"has_image"`
	Tokens     int      `json:"tokens_estimate"`
	Renamed    bool     `json:"renamed,omitempty"`
	ReplacedID string   `json:"replaced_id,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	ImportedAt int64    `json:"imported_at"`
}

// Import parses a card file and stores it in the library.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename")
	}

	pc, source, err := parseSource(ctx, cfg, input.Source, nil)
	if err != nil {
		return nil, err
	}

	e, err := newEntry(pc, source, input.Name)
	if err != nil {
		return nil, err
	}
	assets := make([]library.Asset, 0, len(pc.Assets))
	for i, a := range pc.Assets {
		assets = append(assets, library.AssetFrom(e.ID, i, a))
	}

	out := &ImportOutput{}
	switch input.Mode {
	case ImportModeError:
		if err := db.Insert(ctx, database, e, assets, generateULID); err != nil {
			if err == db.ErrUniqueConstraint {
				return nil, errors.NewNameAlreadyExists(e.NameRaw)
			}
			return nil, err
		}

	case ImportModeReplace:
		replaced, err := db.Replace(ctx, database, e, assets, generateULID)
		if err != nil {
			return nil, err
		}
		out.ReplacedID = replaced

	case ImportModeRename:
		unique, err := db.FindUniqueName(ctx, database, e.NameNorm)
		if err != nil {
			return nil, err
		}
		if unique != e.NameNorm {
			e.NameRaw += unique[len(e.NameNorm):]
			e.NameNorm = unique
			out.Renamed = true
		}
		if err := db.Insert(ctx, database, e, assets, generateULID); err != nil {
			if err == db.ErrUniqueConstraint {
				return nil, errors.NewNameAlreadyExists(e.NameRaw)
			}
			return nil, err
		}
	}

	log.Info().
		Str("id", e.ID).
		Str("name", e.NameRaw).
		Str("format", e.SourceFormat).
		Int("assets", len(assets)).
		Msg("card imported")

	out.ID = e.ID
	out.Name = e.NameRaw
	out.Format = e.SourceFormat
	out.Spec = e.Spec
	out.AssetCount = len(assets)
	out.HasImage = len(e.MainImage) > 0
	out.Tokens = e.TokensEstimate
	out.Warnings = e.Warnings
	out.ImportedAt = e.CreatedAt
	return out, nil
}

// newEntry builds a library entry from a parse result. nameOverride replaces the
// card's name as the library name; the document itself is stored unchanged.
func newEntry(pc *parser.ParsedCard, source, nameOverride string) (*library.Entry, error) {
	d := pc.Card.Common()
	nameRaw := strings.TrimSpace(nameOverride)
	if nameRaw == "" {
		nameRaw = strings.TrimSpace(d.Name)
	}
	if nameRaw == "" {
		return nil, errors.NewInvalidRequest("card has no name; pass a library name")
	}

	cardJSON, err := card.Marshal(pc.Card)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate ID: %w", err))
	}

	now := time.Now().Unix()
	e := &library.Entry{
		ID:               id,
		NameRaw:          nameRaw,
		NameNorm:         card.NormalizeName(nameRaw),
		Spec:             pc.Spec,
		SourceFormat:     string(pc.Format),
		Creator:          nonEmptyPtr(d.Creator),
		CharacterVersion: nonEmptyPtr(d.CharacterVersion),
		Tags:             d.Tags,
		CardJSON:         cardJSON,
		MainImage:        pc.MainImage,
		ModuleRisum:      pc.ModuleRisum,
		XMeta:            pc.XMeta,
		Warnings:         pc.Warnings,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if source != "" {
		e.SourceName = nonEmptyPtr(filepath.Base(source))
	}
	if pc.Tokens != nil {
		e.TokensEstimate = pc.Tokens.Total
	}
	return e, nil
}

func nonEmptyPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
