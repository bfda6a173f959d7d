package voxta

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/cardforge/internal/archive"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/errors"
)

// BuildOptions controls Build.
type BuildOptions struct {
	// CompressionLevel is the deflate level; 0 stores entries uncompressed.
	CompressionLevel int
	// ModTime stamps every entry; zero leaves timestamps unset.
	ModTime time.Time
}

// BuildResult is a written package and the entities stored in it.
type BuildResult struct {
	Archive   []byte
	Package   PackageManifest
	Character Character
	Book      *Book
}

// Build writes c as a single-character .voxpkg. thumbnail may be nil. Assets whose
// descriptors are emotions go under Assets/Avatars/Default/, everything else under
// Assets/Misc/.
func Build(c *card.V3, thumbnail []byte, assets []card.ExtractedAsset, opts BuildOptions) (*BuildResult, error) {
	if c == nil {
		return nil, errors.NewInvalidRequest("card is required")
	}

	ch, book := FromCCv3(c)
	if ch.PackageID == "" {
		ch.PackageID = uuid.NewString()
	}
	if book != nil {
		book.PackageID = ch.PackageID
	}

	pkg := PackageManifest{
		Type:            TypePackage,
		ID:              ch.PackageID,
		Name:            ch.Name,
		Version:         ch.Version,
		Creator:         ch.Creator,
		Description:     ch.CreatorNotes,
		ExplicitContent: ch.ExplicitContent,
		EntryResource:   &Resource{Kind: ResourceCharacter, ID: ch.ID},
		DateCreated:     ch.DateCreated,
		DateModified:    ch.DateModified,
	}
	if thumbnail != nil {
		pkg.ThumbnailResource = &Resource{Kind: ResourceCharacter, ID: ch.ID}
	}

	w, err := archive.NewWriter(opts.CompressionLevel, opts.ModTime)
	if err != nil {
		return nil, err
	}
	add := func(name string, v any) error {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.NewInternal(err)
		}
		return w.Add(name, b)
	}

	if err := add(PackageFile, pkg); err != nil {
		return nil, err
	}
	charDir := fmt.Sprintf("Characters/%s/", ch.ID)
	if err := add(charDir+CharacterFile, ch); err != nil {
		return nil, err
	}
	if thumbnail != nil {
		if err := w.Add(charDir+"thumbnail."+card.SniffImageExt(thumbnail), thumbnail); err != nil {
			return nil, err
		}
	}

	used := make(map[string]bool)
	for _, a := range assets {
		if !a.Found() || a.Descriptor.IsMainIcon() {
			continue
		}
		rel := assetPath(a.Descriptor)
		for n := 1; used[rel]; n++ {
			rel = assetPath(card.AssetDescriptor{
				Type: a.Descriptor.Type,
				Name: fmt.Sprintf("%s_%d", a.Descriptor.Name, n),
				Ext:  a.Descriptor.Ext,
			})
		}
		used[rel] = true
		if err := w.Add(charDir+"Assets/"+rel, a.Buffer); err != nil {
			return nil, err
		}
	}

	if book != nil {
		if err := add(fmt.Sprintf("Books/%s/%s", book.ID, BookFile), book); err != nil {
			return nil, err
		}
	}

	out, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	return &BuildResult{Archive: out, Package: pkg, Character: ch, Book: book}, nil
}

// assetPath places an asset inside a character's Assets/ directory.
func assetPath(d card.AssetDescriptor) string {
	name := d.Name
	if name == "" {
		name = "asset"
	}
	ext := strings.TrimPrefix(d.Ext, ".")
	if ext == "" {
		ext = "bin"
	}
	dir := "Misc"
	if d.Type == card.AssetTypeEmotion {
		dir = "Avatars/Default"
	}
	return path.Join(dir, name+"."+ext)
}
