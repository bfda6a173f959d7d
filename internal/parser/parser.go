// Package parser sniffs a card file's container format, dispatches to the matching
// codec and assembles a ParsedCard.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hpungsan/cardforge/internal/archive"
	"github.com/hpungsan/cardforge/internal/binutil"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/charx"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/png"
	"github.com/hpungsan/cardforge/internal/voxta"
)

// Format names the container a card was read from.
type Format string

const (
	FormatJSON  Format = "json"
	FormatPNG   Format = "png"
	FormatCharX Format = "charx"
	FormatVoxta Format = "voxta"
)

// Options configures Parse.
type Options struct {
	CharX       charx.Options
	VoxtaLimits archive.Limits
	// Tokenizer, when set, fills ParsedCard.Tokens.
	Tokenizer Tokenizer
}

// DefaultOptions returns the codec defaults with no tokenizer.
func DefaultOptions() Options {
	return Options{
		CharX:       charx.DefaultOptions(),
		VoxtaLimits: voxta.DefaultLimits(),
	}
}

// ParsedCard is the unified result of Parse. Assets excludes the asset promoted to
// MainImage.
type ParsedCard struct {
	Card      card.Card
	Format    Format
	Spec      string
	Metadata  card.Metadata
	Assets    []card.ExtractedAsset
	MainImage []byte
	Warnings  []string

	// Rejected lists asset descriptors with unrecognised URIs (CharX only).
	Rejected []card.AssetDescriptor
	// Validation is the CharX structural check; nil for other formats.
	Validation *charx.Validation
	// ModuleRisum and XMeta carry CharX extras for lossless re-export.
	ModuleRisum []byte
	XMeta       map[int]map[string]any

	Tokens *TokenCounts
}

// Parse reads a card from buf. filename is optional and only its extension is used.
//
// Try order is CharX, Voxta, PNG, JSON. A format is tried when the extension or magic
// bytes point at it, and a failure after that match is returned as is. The one
// exception: a ZIP sniffed as CharX that has no card.json is retried as Voxta.
func Parse(ctx context.Context, buf []byte, filename string, opts Options) (*ParsedCard, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	isPNG := binutil.IsPNG(buf)

	var (
		pc  *ParsedCard
		err error
	)
	switch {
	case ext == ".charx" || ((ext == "" || ext == ".zip") && !isPNG && binutil.HasZipSignature(buf)):
		pc, err = parseCharX(ctx, buf, opts)
		if errors.Is(err, errors.ErrMissingRequired) {
			if vpc, verr := parseVoxta(ctx, buf, opts); verr == nil {
				pc, err = vpc, nil
			}
		}
	case ext == ".voxpkg":
		pc, err = parseVoxta(ctx, buf, opts)
	case isPNG:
		pc, err = parsePNG(buf)
	default:
		pc, err = parseJSON(buf)
	}
	if err != nil {
		return nil, err
	}

	pc.Spec = pc.Card.SpecName()
	pc.Metadata = card.ComputeMetadata(pc.Card)
	if opts.Tokenizer != nil {
		counts := CountTokens(pc.Card, opts.Tokenizer)
		pc.Tokens = &counts
	}
	return pc, nil
}

func parseJSON(buf []byte) (*ParsedCard, error) {
	raw, err := card.ExtractJSONObject(buf)
	if err != nil {
		return nil, err
	}
	c, err := card.Detect(raw)
	if err != nil {
		return nil, err
	}
	return &ParsedCard{Card: c, Format: FormatJSON}, nil
}

func parsePNG(buf []byte) (*ParsedCard, error) {
	res, err := png.Extract(buf)
	if err != nil {
		return nil, err
	}
	c, err := card.Detect(res.CardJSON)
	if err != nil {
		return nil, err
	}

	pc := &ParsedCard{
		Card:      c,
		Format:    FormatPNG,
		MainImage: binutil.Clone(buf),
		Warnings:  res.Warnings,
	}
	if descs := card.Assets(c); len(descs) > 0 {
		assets, warnings := png.ExtractAssets(descs, res.TextChunks)
		pc.Assets = assets
		pc.Warnings = append(pc.Warnings, warnings...)
	}
	return pc, nil
}

func parseCharX(ctx context.Context, buf []byte, opts Options) (*ParsedCard, error) {
	res, err := charx.Extract(ctx, buf, opts.CharX)
	if err != nil {
		return nil, err
	}

	v := charx.Validate(res)
	pc := &ParsedCard{
		Card:        res.Card,
		Format:      FormatCharX,
		Warnings:    append(res.Warnings, v.Warnings...),
		Rejected:    res.Rejected,
		Validation:  &v,
		ModuleRisum: res.ModuleRisum,
		XMeta:       res.Metadata,
	}
	if !v.Valid {
		pc.Warnings = append(pc.Warnings, v.Err().Error())
	}
	pc.MainImage, pc.Assets = PromoteMain(res.Assets)
	return pc, nil
}

func parseVoxta(ctx context.Context, buf []byte, opts Options) (*ParsedCard, error) {
	res, err := voxta.Extract(ctx, buf, opts.VoxtaLimits)
	if err != nil {
		return nil, err
	}
	if len(res.Characters) == 0 {
		return nil, errors.NewMissingRequired("file", "Characters/{id}/"+voxta.CharacterFile)
	}

	ec := res.Characters[0]
	pc := &ParsedCard{
		Card:     voxta.ToCCv3(ec.Character, res.BooksFor(ec.Character)),
		Format:   FormatVoxta,
		Warnings: res.Warnings,
	}
	if n := len(res.Characters); n > 1 {
		pc.Warnings = append(pc.Warnings, fmt.Sprintf("package holds %d characters; using %s", n, ec.Character.Name))
	}
	pc.MainImage, pc.Assets = PromoteMain(ec.CardAssets())
	return pc, nil
}

// PromoteMain picks the portrait: the first icon asset with bytes, preferring one named
// main. It is removed from the returned list; other icons stay.
func PromoteMain(assets []card.ExtractedAsset) ([]byte, []card.ExtractedAsset) {
	pick := -1
	for i, a := range assets {
		if a.Descriptor.Type != card.AssetTypeIcon || !a.Found() {
			continue
		}
		if a.Descriptor.Name == card.MainAssetName {
			pick = i
			break
		}
		if pick < 0 {
			pick = i
		}
	}
	if pick < 0 {
		return nil, assets
	}

	rest := make([]card.ExtractedAsset, 0, len(assets)-1)
	rest = append(rest, assets[:pick]...)
	rest = append(rest, assets[pick+1:]...)
	return assets[pick].Buffer, rest
}
