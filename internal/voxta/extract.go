package voxta

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/hpungsan/cardforge/internal/archive"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/uri"
)

// Default limits. Packages carry audio, so the total is larger than CharX's.
const (
	DefaultMaxJSONSize  = 50 << 20
	DefaultMaxAssetSize = 50 << 20
	DefaultMaxTotalSize = 500 << 20
)

// Fixed entry names.
const (
	PackageFile   = "package.json"
	CharacterFile = "character.json"
	ScenarioFile  = "scenario.json"
	BookFile      = "book.json"
)

var (
	characterPathRegex = regexp.MustCompile(`^(?i:Characters)/([^/]+)/(.+)$`)
	scenarioPathRegex  = regexp.MustCompile(`^(?i:Scenarios)/([^/]+)/(.+)$`)
	bookPathRegex      = regexp.MustCompile(`^(?i:Books)/([^/]+)/(.+)$`)
	thumbnailRegex     = regexp.MustCompile(`^(?i:thumbnail)\.([A-Za-z0-9]+)$`)
	assetsDirRegex     = regexp.MustCompile(`^(?i:Assets)/(.+)$`)
)

// DefaultLimits returns the documented Voxta caps.
func DefaultLimits() archive.Limits {
	return archive.Limits{
		MaxJSONSize:  DefaultMaxJSONSize,
		MaxAssetSize: DefaultMaxAssetSize,
		MaxTotalSize: DefaultMaxTotalSize,
	}
}

// File is a binary entry belonging to a character. Path is relative to the
// character's Assets/ directory.
type File struct {
	Path string
	Data []byte
}

// ExtractedCharacter is a character with its thumbnail and assets.
type ExtractedCharacter struct {
	ID           string
	Character    Character
	Thumbnail    []byte
	ThumbnailExt string
	Assets       []File
}

// ExtractedScenario is a scenario with its thumbnail.
type ExtractedScenario struct {
	ID        string
	Scenario  Scenario
	Thumbnail []byte
}

// ExtractedBook is a memory book.
type ExtractedBook struct {
	ID   string
	Book Book
}

// Result is an extracted package. Entities appear in archive order of first sighting.
type Result struct {
	Package    *PackageManifest
	Characters []ExtractedCharacter
	Scenarios  []ExtractedScenario
	Books      []ExtractedBook
	Warnings   []string
}

// partial records accumulate while walking; only those whose definition file
// was seen are materialized.
type partialCharacter struct {
	def          []byte
	thumbnail    []byte
	thumbnailExt string
	assets       []File
}

type partialScenario struct {
	def       []byte
	thumbnail []byte
}

type accumulator struct {
	characters     map[string]*partialCharacter
	characterOrder []string
	scenarios      map[string]*partialScenario
	scenarioOrder  []string
	books          map[string][]byte
	bookOrder      []string
}

func (a *accumulator) character(id string) *partialCharacter {
	p, ok := a.characters[id]
	if !ok {
		p = &partialCharacter{}
		a.characters[id] = p
		a.characterOrder = append(a.characterOrder, id)
	}
	return p
}

func (a *accumulator) scenario(id string) *partialScenario {
	p, ok := a.scenarios[id]
	if !ok {
		p = &partialScenario{}
		a.scenarios[id] = p
		a.scenarioOrder = append(a.scenarioOrder, id)
	}
	return p
}

// Extract unpacks a .voxpkg. Thumbnails and assets of an id with no definition file are
// dropped. Callers decide whether zero characters is an error.
func Extract(ctx context.Context, buf []byte, limits archive.Limits) (*Result, error) {
	r, err := archive.Open(buf, "voxpkg", limits)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	res.Warnings = append(res.Warnings, r.Warnings()...)
	acc := &accumulator{
		characters: make(map[string]*partialCharacter),
		scenarios:  make(map[string]*partialScenario),
		books:      make(map[string][]byte),
	}

	for _, f := range r.Entries() {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("voxpkg extract")
		}

		if f.Name == PackageFile {
			data, err := r.Read(f, archive.KindJSON)
			if err != nil {
				return nil, err
			}
			var pkg PackageManifest
			if err := json.Unmarshal(data, &pkg); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("ignored invalid %s: %v", PackageFile, err))
				continue
			}
			res.Package = &pkg
			continue
		}

		if m := characterPathRegex.FindStringSubmatch(f.Name); m != nil {
			id, rest := m[1], m[2]
			switch {
			case strings.EqualFold(rest, CharacterFile):
				data, err := r.Read(f, archive.KindJSON)
				if err != nil {
					return nil, err
				}
				acc.character(id).def = data
			case thumbnailRegex.MatchString(rest):
				data, err := r.Read(f, archive.KindAsset)
				if err != nil {
					return nil, err
				}
				p := acc.character(id)
				p.thumbnail = data
				p.thumbnailExt = strings.ToLower(thumbnailRegex.FindStringSubmatch(rest)[1])
			case assetsDirRegex.MatchString(rest):
				data, err := r.Read(f, archive.KindAsset)
				if err != nil {
					return nil, err
				}
				p := acc.character(id)
				p.assets = append(p.assets, File{Path: assetsDirRegex.FindStringSubmatch(rest)[1], Data: data})
			}
			continue
		}

		if m := scenarioPathRegex.FindStringSubmatch(f.Name); m != nil {
			id, rest := m[1], m[2]
			switch {
			case strings.EqualFold(rest, ScenarioFile):
				data, err := r.Read(f, archive.KindJSON)
				if err != nil {
					return nil, err
				}
				acc.scenario(id).def = data
			case thumbnailRegex.MatchString(rest):
				data, err := r.Read(f, archive.KindAsset)
				if err != nil {
					return nil, err
				}
				acc.scenario(id).thumbnail = data
			}
			continue
		}

		if m := bookPathRegex.FindStringSubmatch(f.Name); m != nil && strings.EqualFold(m[2], BookFile) {
			data, err := r.Read(f, archive.KindJSON)
			if err != nil {
				return nil, err
			}
			if _, seen := acc.books[m[1]]; !seen {
				acc.bookOrder = append(acc.bookOrder, m[1])
			}
			acc.books[m[1]] = data
		}
	}

	acc.materialize(res)
	return res, nil
}

// materialize turns complete partial records into results. A definition that does
// not decode is skipped with a warning.
func (a *accumulator) materialize(res *Result) {
	for _, id := range a.characterOrder {
		p := a.characters[id]
		if p.def == nil {
			continue
		}
		var ch Character
		if err := json.Unmarshal(p.def, &ch); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("character %s: invalid %s: %v", id, CharacterFile, err))
			continue
		}
		if ch.ID == "" {
			ch.ID = id
		}
		res.Characters = append(res.Characters, ExtractedCharacter{
			ID:           id,
			Character:    ch,
			Thumbnail:    p.thumbnail,
			ThumbnailExt: p.thumbnailExt,
			Assets:       p.assets,
		})
	}

	for _, id := range a.scenarioOrder {
		p := a.scenarios[id]
		if p.def == nil {
			continue
		}
		var sc Scenario
		if err := json.Unmarshal(p.def, &sc); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("scenario %s: invalid %s: %v", id, ScenarioFile, err))
			continue
		}
		res.Scenarios = append(res.Scenarios, ExtractedScenario{ID: id, Scenario: sc, Thumbnail: p.thumbnail})
	}

	for _, id := range a.bookOrder {
		var b Book
		if err := json.Unmarshal(a.books[id], &b); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("book %s: invalid %s: %v", id, BookFile, err))
			continue
		}
		if b.ID == "" {
			b.ID = id
		}
		res.Books = append(res.Books, ExtractedBook{ID: id, Book: b})
	}
}

// BooksFor returns the books a character references through MemoryBooks, in that
// order. Unknown ids are ignored.
func (res *Result) BooksFor(ch Character) []Book {
	byID := make(map[string]Book, len(res.Books))
	for _, b := range res.Books {
		byID[b.Book.ID] = b.Book
	}
	var out []Book
	for _, id := range ch.MemoryBooks {
		if b, ok := byID[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

// CardAssets converts the thumbnail and asset files into card assets. The thumbnail
// becomes the main icon; files under Avatars/ become emotions.
func (c ExtractedCharacter) CardAssets() []card.ExtractedAsset {
	var out []card.ExtractedAsset
	if c.Thumbnail != nil {
		ext := c.ThumbnailExt
		if ext == "" {
			ext = "png"
		}
		out = append(out, card.ExtractedAsset{
			Path: fmt.Sprintf("Characters/%s/thumbnail.%s", c.ID, ext),
			Descriptor: card.AssetDescriptor{
				Type: card.AssetTypeIcon,
				URI:  uri.CCDefaultPrefix,
				Name: card.MainAssetName,
				Ext:  ext,
			},
			Buffer: append([]byte{}, c.Thumbnail...),
		})
	}
	for _, f := range c.Assets {
		typ := card.AssetTypeOther
		if strings.HasPrefix(strings.ToLower(f.Path), "avatars/") {
			typ = card.AssetTypeEmotion
		}
		ext := card.ExtOf(f.Path)
		out = append(out, card.ExtractedAsset{
			Path: fmt.Sprintf("Characters/%s/Assets/%s", c.ID, f.Path),
			Descriptor: card.AssetDescriptor{
				Type: typ,
				URI:  uri.EmbeddedPrefix + f.Path,
				Name: strings.TrimSuffix(path.Base(f.Path), path.Ext(f.Path)),
				Ext:  ext,
			},
			Buffer: append([]byte{}, f.Data...),
		})
	}
	return out
}
