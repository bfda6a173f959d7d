// Package charx reads and writes CharX packages: a ZIP holding a CCv3 card.json,
// its assets under assets/, optional x_meta/<n>.json and an opaque module.risum.
package charx

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hpungsan/cardforge/internal/archive"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/uri"
)

// Well-known entry names.
const (
	CardFile        = "card.json"
	ModuleRisumFile = "module.risum"
	AssetsDir       = "assets/"
)

// Default limits.
const (
	DefaultMaxJSONSize      = 10 << 20
	DefaultMaxAssetSize     = 50 << 20
	DefaultMaxTotalSize     = 200 << 20
	DefaultFetchConcurrency = 5
)

var xMetaRegex = regexp.MustCompile(`^x_meta/(\d+)\.json$`)

// Options controls extraction.
type Options struct {
	Limits archive.Limits
	Safety uri.SafetyOptions

	// FetchRemote downloads http(s) assets through Fetcher after the walk.
	FetchRemote      bool
	Fetcher          Fetcher
	FetchConcurrency int
}

// DefaultOptions returns the documented limits with remote fetching off.
func DefaultOptions() Options {
	return Options{
		Limits: archive.Limits{
			MaxJSONSize:  DefaultMaxJSONSize,
			MaxAssetSize: DefaultMaxAssetSize,
			MaxTotalSize: DefaultMaxTotalSize,
		},
		FetchConcurrency: DefaultFetchConcurrency,
	}
}

// Result is an extracted CharX package.
type Result struct {
	Card   *card.V3
	Assets []card.ExtractedAsset
	// Metadata holds x_meta/<n>.json documents keyed by n.
	Metadata    map[int]map[string]any
	ModuleRisum []byte
	// Rejected lists descriptors whose URI matched no known scheme.
	Rejected []card.AssetDescriptor
	Warnings []string
}

// Extract unpacks a CharX archive. Size caps are enforced while inflating; a missing
// card.json is MISSING_REQUIRED and a card.json that is not CCv3 is SPEC_MISMATCH.
func Extract(ctx context.Context, buf []byte, opts Options) (*Result, error) {
	r, err := archive.Open(buf, "charx", opts.Limits)
	if err != nil {
		return nil, err
	}

	res := &Result{Metadata: make(map[int]map[string]any)}
	res.Warnings = append(res.Warnings, r.Warnings()...)

	var cardJSON []byte
	pending := make(map[string][]byte)

	for _, f := range r.Entries() {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("charx extract")
		}

		switch {
		case f.Name == CardFile:
			data, err := r.Read(f, archive.KindJSON)
			if err != nil {
				return nil, err
			}
			cardJSON = data
		case xMetaRegex.MatchString(f.Name):
			data, err := r.Read(f, archive.KindJSON)
			if err != nil {
				return nil, err
			}
			idx, _ := strconv.Atoi(xMetaRegex.FindStringSubmatch(f.Name)[1])
			var meta map[string]any
			if json.Unmarshal(data, &meta) == nil {
				res.Metadata[idx] = meta
			}
		case f.Name == ModuleRisumFile:
			data, err := r.Read(f, archive.KindAsset)
			if err != nil {
				return nil, err
			}
			res.ModuleRisum = data
		case strings.HasPrefix(f.Name, AssetsDir):
			data, err := r.Read(f, archive.KindAsset)
			if err != nil {
				return nil, err
			}
			pending[f.Name] = data
		}
	}

	if cardJSON == nil {
		return nil, errors.NewMissingRequired("file", CardFile)
	}
	c, err := decodeCard(cardJSON)
	if err != nil {
		return nil, err
	}
	res.Card = c

	res.matchAssets(pending)

	if opts.FetchRemote && opts.Fetcher != nil {
		if err := fetchRemote(ctx, res, opts); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// decodeCard requires the chara_card_v3 tag before decoding.
func decodeCard(raw []byte) (*card.V3, error) {
	var head struct {
		Spec any `json:"spec"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errors.NewSpecMismatch(fmt.Sprintf("%s is not a JSON object: %v", CardFile, err))
	}
	if head.Spec != card.SpecV3 {
		return nil, errors.NewSpecMismatch(fmt.Sprintf("%s must declare %s, got %v", CardFile, card.SpecV3, head.Spec))
	}

	c, err := card.Detect(raw)
	if err != nil {
		return nil, err
	}
	return c.(*card.V3), nil
}

// matchAssets pairs every descriptor with its bytes. Buffers are copies of the
// pending entries, so two descriptors pointing at one file do not share memory.
func (res *Result) matchAssets(pending map[string][]byte) {
	for _, d := range res.Card.Data.Assets {
		p := uri.Parse(d.URI)
		asset := card.ExtractedAsset{Descriptor: d}

		switch p.Scheme {
		case uri.SchemeEmbedded:
			asset.Path = p.Path
			if data, ok := pending[p.Path]; ok {
				asset.Buffer = append([]byte{}, data...)
			} else {
				res.Warnings = append(res.Warnings, fmt.Sprintf("asset %q not found in archive: %s", d.Name, p.Path))
			}
		case uri.SchemeData:
			data, err := p.DecodeData()
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("asset %q has an undecodable data URI: %v", d.Name, err))
			} else {
				asset.Buffer = data
			}
		case uri.SchemeHTTP, uri.SchemeHTTPS:
			asset.Path = p.URL
		case uri.SchemeCCDefault, uri.SchemeFile, uri.SchemeInternal, uri.SchemePNGChunk:
			// no physical file inside a CharX package
		default:
			res.Rejected = append(res.Rejected, d)
			res.Warnings = append(res.Warnings, fmt.Sprintf("asset %q rejected: unrecognised URI %q", d.Name, d.URI))
			continue
		}
		res.Assets = append(res.Assets, asset)
	}
}
