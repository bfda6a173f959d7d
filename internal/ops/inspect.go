package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/charx"
	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/parser"
)

// InspectInput contains parameters for the Inspect operation.
type InspectInput struct {
	Source
	IncludeCard bool // include the full card document
	RenderHTML  bool // render description and creator notes to HTML
}

// ImageInfo describes the promoted portrait.
type ImageInfo struct {
	Bytes    int    `json:"bytes"`
	Size     string `json:"size"`
	MimeType string `json:"mime_type"`
}

// AssetInfo describes one asset without its bytes.
type AssetInfo struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Ext      string `json:"ext"`
	MimeType string `json:"mime_type"`
	URI      string `json:"uri"`
	Path     string `json:"path,omitempty"`
	Found    bool   `json:"found"`
	Bytes    int    `json:"bytes"`
	Size     string `json:"size,omitempty"`
}

// InspectOutput contains the result of the Inspect operation.
type InspectOutput struct {
	Source           string                 `json:"source,omitempty"`
	Format           string                 `json:"format"`
	Spec             string                 `json:"spec"`
	Name             string                 `json:"name"`
	Creator          string                 `json:"creator,omitempty"`
	CharacterVersion string                 `json:"character_version,omitempty"`
	Tags             []string               `json:"tags"`
	Metadata         card.Metadata          `json:"metadata"`
	Tokens           *parser.TokenCounts    `json:"tokens,omitempty"`
	MainImage        *ImageInfo             `json:"main_image,omitempty"`
	Assets           []AssetInfo            `json:"assets"`
	Rejected         []card.AssetDescriptor `json:"rejected,omitempty"`
	Validation       *charx.Validation      `json:"validation,omitempty"`
	HasModuleRisum   bool                   `json:"has_module_risum,omitempty"`
	XMetaIndexes     int                    `json:"x_meta_count,omitempty"`
	Warnings         []string               `json:"warnings,omitempty"`
	DescriptionHTML  string                 `json:"description_html,omitempty"`
	CreatorNotesHTML string                 `json:"creator_notes_html,omitempty"`
	Card             json.RawMessage        `json:"card,omitempty"`
}

// Inspect parses a card file and reports what it contains.
func Inspect(ctx context.Context, cfg *config.Config, input InspectInput) (*InspectOutput, error) {
	pc, name, err := parseSource(ctx, cfg, input.Source, nil)
	if err != nil {
		return nil, err
	}

	d := pc.Card.Common()
	out := &InspectOutput{
		Source:           filepath.Base(name),
		Format:           string(pc.Format),
		Spec:             pc.Spec,
		Name:             d.Name,
		Creator:          d.Creator,
		CharacterVersion: d.CharacterVersion,
		Tags:             d.Tags,
		Metadata:         pc.Metadata,
		Tokens:           pc.Tokens,
		Assets:           make([]AssetInfo, 0, len(pc.Assets)),
		Rejected:         pc.Rejected,
		Validation:       pc.Validation,
		HasModuleRisum:   pc.ModuleRisum != nil,
		XMetaIndexes:     len(pc.XMeta),
		Warnings:         pc.Warnings,
	}
	if name == "" {
		out.Source = ""
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if len(pc.MainImage) > 0 {
		out.MainImage = &ImageInfo{
			Bytes:    len(pc.MainImage),
			Size:     humanize.Bytes(uint64(len(pc.MainImage))),
			MimeType: http.DetectContentType(pc.MainImage),
		}
	}
	for _, a := range pc.Assets {
		out.Assets = append(out.Assets, assetInfo(a))
	}

	if input.RenderHTML {
		out.DescriptionHTML = renderMarkdown(d.Description)
		out.CreatorNotesHTML = renderMarkdown(d.CreatorNotes)
	}
	if input.IncludeCard {
		raw, err := card.Marshal(pc.Card)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out.Card = raw
	}
	return out, nil
}

func assetInfo(a card.ExtractedAsset) AssetInfo {
	ext := a.Descriptor.Ext
	if ext == "" {
		ext = card.ExtOf(a.Path)
	}
	info := AssetInfo{
		Type:     a.Descriptor.Type,
		Name:     a.Descriptor.Name,
		Ext:      a.Descriptor.Ext,
		MimeType: card.MimeFromExt(ext),
		URI:      a.Descriptor.URI,
		Path:     a.Path,
		Found:    a.Found(),
		Bytes:    a.Size(),
	}
	if info.Found {
		info.Size = humanize.Bytes(uint64(info.Bytes))
	}
	return info
}
