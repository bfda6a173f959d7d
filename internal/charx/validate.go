package charx

import (
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/uri"
)

// Validation is the outcome of Validate. Warnings never affect Valid.
type Validation struct {
	Valid         bool     `json:"valid"`
	MissingAssets []string `json:"missing_assets,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Err returns ASSET_UNRESOLVED when assets are missing, else nil.
func (v Validation) Err() error {
	if len(v.MissingAssets) == 0 {
		return nil
	}
	return errors.NewAssetUnresolved(v.MissingAssets)
}

// Validate checks structural invariants of an extracted package. An embeded:// asset
// without bytes makes the package invalid; a missing main icon is only a warning.
func Validate(res *Result) Validation {
	v := Validation{Valid: true}

	hasMain := false
	for _, d := range res.Card.Data.Assets {
		if d.IsMainIcon() {
			hasMain = true
			break
		}
	}
	if !hasMain {
		v.Warnings = append(v.Warnings, "no main icon asset (type icon, name main)")
	}

	for _, a := range res.Assets {
		if a.Found() {
			continue
		}
		if uri.Parse(a.Descriptor.URI).Scheme == uri.SchemeEmbedded {
			v.MissingAssets = append(v.MissingAssets, a.Path)
		}
	}
	if len(res.Rejected) > 0 {
		v.Warnings = append(v.Warnings, rejectedWarning(res.Rejected))
	}

	v.Valid = len(v.MissingAssets) == 0
	return v
}

func rejectedWarning(rejected []card.AssetDescriptor) string {
	msg := "assets with unrecognised URIs:"
	for _, d := range rejected {
		msg += " " + d.URI
	}
	return msg
}
