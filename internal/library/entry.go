// Package library defines the records kept in the card library store.
package library

import (
	"github.com/hpungsan/cardforge/internal/card"
)

// Entry is one imported card as stored in the library.
type Entry struct {
	// ID is a ULID that uniquely identifies this entry
	ID string

	// NameRaw is the card name as found in the file
	NameRaw string

	// NameNorm is the normalized name used for lookups (lowercased, trimmed, collapsed spaces)
	NameNorm string

	// Spec is chara_card_v2 or chara_card_v3
	Spec string

	// SourceFormat is the container the card was imported from (json, png, charx, voxta)
	SourceFormat string

	// SourceName is the imported file's base name (nullable)
	SourceName *string

	// Creator and CharacterVersion are copied out of the card for listing (nullable)
	Creator          *string
	CharacterVersion *string

	// Tags mirror the card's tags (stored as JSON in DB)
	Tags []string

	// CardJSON is the detected card re-encoded in its own dialect
	CardJSON []byte

	// MainImage is the promoted portrait, nil when the source had none
	MainImage []byte

	// TokensEstimate is the total heuristic token count of the prompt fields
	TokensEstimate int

	// ModuleRisum and XMeta are CharX extras kept for lossless re-export
	ModuleRisum []byte
	XMeta       map[int]map[string]any

	// Warnings are the non-fatal notes produced at import
	Warnings []string

	// AssetCount is filled by reads; writes derive it from the asset rows
	AssetCount int

	CreatedAt int64
	UpdatedAt int64

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64
}

// Card decodes the stored document.
func (e *Entry) Card() (card.Card, error) {
	return card.Detect(e.CardJSON)
}

// Asset is one stored asset of an entry. Data is nil for references that were never
// resolved to bytes, such as remote URLs that were not fetched.
type Asset struct {
	ID       string `json:"id"`
	CardID   string `json:"card_id"`
	Position int    `json:"position"`
	Type     string `json:"type"`
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Ext      string `json:"ext"`
	Path     string `json:"path,omitempty"`
	Size     int    `json:"size"`
	Data     []byte `json:"-"`
}

// Extracted converts the stored row back into a codec asset.
func (a Asset) Extracted() card.ExtractedAsset {
	return card.ExtractedAsset{
		Path:       a.Path,
		Descriptor: card.AssetDescriptor{Type: a.Type, URI: a.URI, Name: a.Name, Ext: a.Ext},
		Buffer:     a.Data,
	}
}

// AssetFrom converts a codec asset into a row for cardID at position.
func AssetFrom(cardID string, position int, a card.ExtractedAsset) Asset {
	return Asset{
		CardID:   cardID,
		Position: position,
		Type:     a.Descriptor.Type,
		URI:      a.Descriptor.URI,
		Name:     a.Descriptor.Name,
		Ext:      a.Descriptor.Ext,
		Path:     a.Path,
		Size:     a.Size(),
		Data:     a.Buffer,
	}
}
