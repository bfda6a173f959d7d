package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/hpungsan/cardforge/internal/binutil"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/charx"
	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/library"
	"github.com/hpungsan/cardforge/internal/parser"
	cardpng "github.com/hpungsan/cardforge/internal/png"
	"github.com/hpungsan/cardforge/internal/uri"
	"github.com/hpungsan/cardforge/internal/voxta"
)

// ExportFormat is an output container.
type ExportFormat string

const (
	ExportJSON   ExportFormat = "json"
	ExportPNG    ExportFormat = "png"
	ExportCharX  ExportFormat = "charx"
	ExportVoxpkg ExportFormat = "voxpkg"
)

// Ext returns the file extension with the dot.
func (f ExportFormat) Ext() string {
	return "." + string(f)
}

// FormatForExt maps a file extension (with dot, any case) to a format.
func FormatForExt(ext string) (ExportFormat, bool) {
	switch strings.ToLower(ext) {
	case ".json":
		return ExportJSON, true
	case ".png":
		return ExportPNG, true
	case ".charx":
		return ExportCharX, true
	case ".voxpkg":
		return ExportVoxpkg, true
	}
	return "", false
}

// ParseExportFormat accepts a format name. "voxta" is an alias for voxpkg.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return ExportJSON, nil
	case "png":
		return ExportPNG, nil
	case "charx":
		return ExportCharX, nil
	case "voxpkg", "voxta":
		return ExportVoxpkg, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want json, png, charx or voxpkg)", s))
}

// Bundle is everything an encoder needs: the document, the portrait and the assets.
type Bundle struct {
	Card        card.Card
	MainImage   []byte
	Assets      []card.ExtractedAsset
	ModuleRisum []byte
	XMeta       map[int]map[string]any
}

// BundleFromParsed takes the encodable parts of a parse result.
func BundleFromParsed(pc *parser.ParsedCard) Bundle {
	return Bundle{
		Card:        pc.Card,
		MainImage:   pc.MainImage,
		Assets:      pc.Assets,
		ModuleRisum: pc.ModuleRisum,
		XMeta:       pc.XMeta,
	}
}

// BundleFromEntry rebuilds a bundle from a library entry and its asset rows.
func BundleFromEntry(e *library.Entry, assets []library.Asset) (Bundle, error) {
	c, err := e.Card()
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{
		Card:        c,
		MainImage:   e.MainImage,
		ModuleRisum: e.ModuleRisum,
		XMeta:       e.XMeta,
	}
	for _, a := range assets {
		b.Assets = append(b.Assets, a.Extracted())
	}
	return b, nil
}

// Encode writes b in format f. The returned warnings name what the target format
// could not carry.
func Encode(b Bundle, f ExportFormat, cfg *config.Config) ([]byte, []string, error) {
	if b.Card == nil {
		return nil, nil, errors.NewInvalidRequest("card is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	switch f {
	case ExportJSON:
		return encodeJSON(b)
	case ExportPNG:
		return encodePNG(b)
	case ExportCharX:
		return encodeCharX(b, cfg.Level())
	case ExportVoxpkg:
		return encodeVoxta(b, cfg.Level())
	}
	return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("unknown format %q", f))
}

func encodeJSON(b Bundle) ([]byte, []string, error) {
	var warnings []string
	if n := countFound(b.Assets); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d embedded asset(s) dropped: json carries references only", n))
	}
	if len(b.MainImage) > 0 {
		warnings = append(warnings, "main image dropped: json has no image")
	}
	out, err := json.MarshalIndent(b.Card, "", "  ")
	if err != nil {
		return nil, nil, errors.NewInternal(err)
	}
	return out, warnings, nil
}

func encodePNG(b Bundle) ([]byte, []string, error) {
	var warnings []string
	img := b.MainImage
	if !binutil.IsPNG(img) {
		if len(img) > 0 {
			warnings = append(warnings, "main image is not a png; a placeholder image was used")
		} else {
			warnings = append(warnings, "card has no main image; a placeholder image was used")
		}
		var err error
		if img, err = placeholderPNG(); err != nil {
			return nil, nil, err
		}
	}
	if n := countFound(b.Assets); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d asset(s) dropped: png carries the main image only", n))
	}
	out, err := cardpng.EmbedCard(img, b.Card)
	if err != nil {
		return nil, nil, err
	}
	return out, warnings, nil
}

func encodeCharX(b Bundle, level int) ([]byte, []string, error) {
	var (
		warnings []string
		write    []charx.WriteAsset
	)
	if len(b.MainImage) > 0 {
		write = append(write, charx.WriteAsset{
			Data:   portrait(b.MainImage),
			Ext:    card.SniffImageExt(b.MainImage),
			IsMain: true,
		})
	}
	for _, a := range b.Assets {
		if !a.Found() {
			continue
		}
		ext := a.Descriptor.Ext
		if ext == "" {
			ext = card.ExtOf(a.Path)
		}
		write = append(write, charx.WriteAsset{
			Type: a.Descriptor.Type,
			Name: a.Descriptor.Name,
			Ext:  ext,
			Data: a.Buffer,
		})
	}

	// Descriptors whose bytes are written are rebuilt by charx.Build; embedded ones
	// without bytes would dangle.
	v3 := *card.ToV3(b.Card)
	written := make(map[string]bool, len(b.Assets))
	for _, a := range b.Assets {
		if a.Found() {
			written[a.Descriptor.URI] = true
		}
	}
	v3.Data.Assets = nil
	for _, d := range card.Assets(b.Card) {
		if written[d.URI] {
			continue
		}
		if uri.Parse(d.URI).Scheme == uri.SchemeEmbedded {
			// the promoted portrait is written as the main icon
			if len(b.MainImage) > 0 && d.Type == card.AssetTypeIcon {
				continue
			}
			warnings = append(warnings, fmt.Sprintf("asset %q dropped: no data", d.URI))
			continue
		}
		v3.Data.Assets = append(v3.Data.Assets, d)
	}

	res, err := charx.Build(&v3, write, charx.BuildOptions{
		CompressionLevel: level,
		ModuleRisum:      b.ModuleRisum,
		Metadata:         b.XMeta,
	})
	if err != nil {
		return nil, nil, err
	}
	return res.Archive, warnings, nil
}

func encodeVoxta(b Bundle, level int) ([]byte, []string, error) {
	var warnings []string
	if b.ModuleRisum != nil || len(b.XMeta) > 0 {
		warnings = append(warnings, "charx extras dropped: voxta has no module.risum or x_meta")
	}
	var found []card.ExtractedAsset
	for _, a := range b.Assets {
		if a.Found() {
			found = append(found, a)
		}
	}
	res, err := voxta.Build(card.ToV3(b.Card), portrait(b.MainImage), found, voxta.BuildOptions{CompressionLevel: level})
	if err != nil {
		return nil, nil, err
	}
	return res.Archive, warnings, nil
}

func countFound(assets []card.ExtractedAsset) int {
	n := 0
	for _, a := range assets {
		if a.Found() {
			n++
		}
	}
	return n
}

// portrait returns the main image for use as a plain asset. A PNG that came from a
// card file still carries the card chunks, which are removed.
func portrait(img []byte) []byte {
	if !binutil.IsPNG(img) {
		return img
	}
	stripped, err := cardpng.StripCard(img)
	if err != nil {
		return img
	}
	return stripped
}

// placeholderPNG is a 1x1 opaque grey image.
func placeholderPNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.NewInternal(err)
	}
	return buf.Bytes(), nil
}
