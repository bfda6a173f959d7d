// Package card models the character-card document in its two JSON dialects and
// classifies arbitrary JSON into one of them.
package card

import (
	"encoding/json"
	"sort"
)

// Spec tags written into the "spec" field.
const (
	SpecV2 = "chara_card_v2"
	SpecV3 = "chara_card_v3"

	SpecVersionV2 = "2.0"
	SpecVersionV3 = "3.0"
)

// Card is a CCv2 or CCv3 document. The set of implementations is closed: *V2 and *V3.
// Consumers switch on the concrete type.
type Card interface {
	// SpecName returns the spec tag the document carries.
	SpecName() string
	// Common returns the fields shared by both dialects.
	Common() *Data

	isCard()
}

// V2 is a wrapped Character Card v2 document.
type V2 struct {
	Spec        string `json:"spec"`
	SpecVersion string `json:"spec_version"`
	Data        Data   `json:"data"`
}

// V3 is a Character Card v3 document.
type V3 struct {
	Spec        string `json:"spec"`
	SpecVersion string `json:"spec_version"`
	Data        V3Data `json:"data"`
}

func (c *V2) SpecName() string { return SpecV2 }
func (c *V2) Common() *Data    { return &c.Data }
func (*V2) isCard()            {}

func (c *V3) SpecName() string { return SpecV3 }
func (c *V3) Common() *Data    { return &c.Data.Data }
func (*V3) isCard()            {}

// Data holds the fields both dialects share.
type Data struct {
	Name                    string         `json:"name"`
	Description             string         `json:"description"`
	Personality             string         `json:"personality"`
	Scenario                string         `json:"scenario"`
	FirstMes                string         `json:"first_mes"`
	MesExample              string         `json:"mes_example"`
	CreatorNotes            string         `json:"creator_notes,omitempty"`
	SystemPrompt            string         `json:"system_prompt,omitempty"`
	PostHistoryInstructions string         `json:"post_history_instructions,omitempty"`
	AlternateGreetings      []string       `json:"alternate_greetings,omitempty"`
	Tags                    []string       `json:"tags"`
	Creator                 string         `json:"creator"`
	CharacterVersion        string         `json:"character_version"`
	CharacterBook           *Lorebook      `json:"character_book,omitempty"`
	Extensions              map[string]any `json:"extensions"`
}

// V3Data adds the v3-only fields to Data.
type V3Data struct {
	Data

	Assets                   []AssetDescriptor `json:"assets,omitempty"`
	Nickname                 string            `json:"nickname,omitempty"`
	CreatorNotesMultilingual map[string]string `json:"creator_notes_multilingual,omitempty"`
	Source                   []string          `json:"source,omitempty"`
	GroupOnlyGreetings       []string          `json:"group_only_greetings"`
	CreationDate             *int64            `json:"creation_date,omitempty"`
	ModificationDate         *int64            `json:"modification_date,omitempty"`
}

// Lorebook is the embedded "character_book".
type Lorebook struct {
	Name              string          `json:"name,omitempty"`
	Description       string          `json:"description,omitempty"`
	ScanDepth         *int            `json:"scan_depth,omitempty"`
	TokenBudget       *int            `json:"token_budget,omitempty"`
	RecursiveScanning *bool           `json:"recursive_scanning,omitempty"`
	Extensions        map[string]any  `json:"extensions"`
	Entries           []LorebookEntry `json:"entries"`
}

// LorebookEntry is one lorebook item. Precedence comes from InsertionOrder, not position.
type LorebookEntry struct {
	Keys           []string       `json:"keys"`
	Content        string         `json:"content"`
	Extensions     map[string]any `json:"extensions"`
	Enabled        bool           `json:"enabled"`
	InsertionOrder int            `json:"insertion_order"`
	CaseSensitive  *bool          `json:"case_sensitive,omitempty"`
	UseRegex       *bool          `json:"use_regex,omitempty"`
	Name           string         `json:"name,omitempty"`
	Priority       int            `json:"priority,omitempty"`
	ID             any            `json:"id,omitempty"`
	Comment        string         `json:"comment,omitempty"`
	Selective      *bool          `json:"selective,omitempty"`
	SecondaryKeys  []string       `json:"secondary_keys,omitempty"`
	Constant       *bool          `json:"constant,omitempty"`
	Position       string         `json:"position,omitempty"`
}

// SortedEntries returns the entries ordered by InsertionOrder. Ties keep array order.
func (b *Lorebook) SortedEntries() []LorebookEntry {
	if b == nil {
		return nil
	}
	out := make([]LorebookEntry, len(b.Entries))
	copy(out, b.Entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InsertionOrder < out[j].InsertionOrder
	})
	return out
}

// NewV2 wraps data as a CCv2 document with empty collections filled in.
func NewV2(data Data) *V2 {
	data.fillDefaults()
	return &V2{Spec: SpecV2, SpecVersion: SpecVersionV2, Data: data}
}

// NewV3 wraps data as a CCv3 document with empty collections filled in.
func NewV3(data V3Data) *V3 {
	data.fillDefaults()
	return &V3{Spec: SpecV3, SpecVersion: SpecVersionV3, Data: data}
}

func (d *Data) fillDefaults() {
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if d.Extensions == nil {
		d.Extensions = map[string]any{}
	}
	if b := d.CharacterBook; b != nil {
		if b.Extensions == nil {
			b.Extensions = map[string]any{}
		}
		if b.Entries == nil {
			b.Entries = []LorebookEntry{}
		}
		for i := range b.Entries {
			if b.Entries[i].Keys == nil {
				b.Entries[i].Keys = []string{}
			}
			if b.Entries[i].Extensions == nil {
				b.Entries[i].Extensions = map[string]any{}
			}
		}
	}
}

// fillDefaults fills the shared collections and group_only_greetings, which CCv3
// requires to be an array.
func (d *V3Data) fillDefaults() {
	d.Data.fillDefaults()
	if d.GroupOnlyGreetings == nil {
		d.GroupOnlyGreetings = []string{}
	}
}

// Marshal encodes c as JSON.
func Marshal(c Card) ([]byte, error) {
	return json.Marshal(c)
}
