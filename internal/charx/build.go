package charx

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hpungsan/cardforge/internal/archive"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/uri"
)

// WriteAsset is an asset to be packed by Build.
type WriteAsset struct {
	Type string
	Name string
	Ext  string
	Data []byte
	// IsMain marks the portrait; it is written as type icon, name main.
	IsMain bool
}

// BuildOptions controls Build.
type BuildOptions struct {
	// CompressionLevel is the deflate level; 0 stores entries uncompressed.
	CompressionLevel int
	ModuleRisum      []byte
	Metadata         map[int]map[string]any
	// ModTime stamps every entry; zero leaves timestamps unset.
	ModTime time.Time
}

// DefaultBuildOptions uses the default compression level.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{CompressionLevel: archive.DefaultCompressionLevel}
}

// BuildResult is a written package plus the card as stored in it.
type BuildResult struct {
	Archive    []byte
	Card       *card.V3
	AssetCount int
}

// Build packs c and assets into a CharX archive. Assets are ordered by (type, name),
// duplicate names within a type get numeric suffixes, and the card's embeded://
// descriptors are replaced by ones pointing at the written files. Descriptors of other
// schemes are kept, except a main icon that a written main asset supersedes.
func Build(c *card.V3, assets []WriteAsset, opts BuildOptions) (*BuildResult, error) {
	if c == nil {
		return nil, errors.NewInvalidRequest("card is required")
	}

	ordered := make([]WriteAsset, len(assets))
	copy(ordered, assets)
	writesMain := false
	for i := range ordered {
		if ordered[i].IsMain {
			ordered[i].Type = card.AssetTypeIcon
			ordered[i].Name = card.MainAssetName
			writesMain = true
		}
		if ordered[i].Type == "" {
			ordered[i].Type = card.AssetTypeOther
		}
		if ordered[i].Name == "" {
			ordered[i].Name = "asset"
		}
		ordered[i].Ext = strings.ToLower(strings.TrimPrefix(ordered[i].Ext, "."))
		if ordered[i].Ext == "" {
			ordered[i].Ext = "bin"
		}
	}
	slices.SortStableFunc(ordered, func(a, b WriteAsset) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.Name, b.Name))
	})
	ordered = DedupeNames(ordered)

	out := *c
	out.Data.Assets = nil
	for _, d := range c.Data.Assets {
		if uri.Parse(d.URI).Scheme == uri.SchemeEmbedded {
			continue
		}
		if writesMain && d.IsMainIcon() {
			continue
		}
		out.Data.Assets = append(out.Data.Assets, d)
	}

	paths := make([]string, len(ordered))
	for i, a := range ordered {
		paths[i] = AssetPath(a.Type, a.Name, a.Ext)
		out.Data.Assets = append(out.Data.Assets, card.AssetDescriptor{
			Type: a.Type,
			URI:  uri.EmbeddedPrefix + paths[i],
			Name: a.Name,
			Ext:  a.Ext,
		})
	}

	cardJSON, err := json.Marshal(&out)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	w, err := archive.NewWriter(opts.CompressionLevel, opts.ModTime)
	if err != nil {
		return nil, err
	}
	if err := w.Add(CardFile, cardJSON); err != nil {
		return nil, err
	}
	for i, a := range ordered {
		if err := w.Add(paths[i], a.Data); err != nil {
			return nil, err
		}
	}
	for _, idx := range slices.Sorted(maps.Keys(opts.Metadata)) {
		meta, err := json.Marshal(opts.Metadata[idx])
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := w.Add(fmt.Sprintf("x_meta/%d.json", idx), meta); err != nil {
			return nil, err
		}
	}
	if opts.ModuleRisum != nil {
		if err := w.Add(ModuleRisumFile, opts.ModuleRisum); err != nil {
			return nil, err
		}
	}

	archiveBytes, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	return &BuildResult{Archive: archiveBytes, Card: &out, AssetCount: len(ordered)}, nil
}

// AssetPath is the archive path an asset is written to.
func AssetPath(typ, name, ext string) string {
	return fmt.Sprintf("%s%s/%s/%s.%s", AssetsDir, typ, card.MediaKind(ext), name, ext)
}

// DedupeNames renames assets that share a name within one type by appending _1, _2, ...
// The first occurrence keeps its name. The input slice is not modified.
func DedupeNames(assets []WriteAsset) []WriteAsset {
	out := make([]WriteAsset, len(assets))
	used := make(map[string]map[string]bool)
	for i, a := range assets {
		names := used[a.Type]
		if names == nil {
			names = make(map[string]bool)
			used[a.Type] = names
		}
		name := a.Name
		for n := 1; names[name]; n++ {
			name = fmt.Sprintf("%s_%d", a.Name, n)
		}
		names[name] = true
		a.Name = name
		out[i] = a
	}
	return out
}
