// Package voxta reads and writes Voxta packages (.voxpkg) and maps Voxta characters
// to and from CCv3 cards.
package voxta

// Values of the "$type" discriminator.
const (
	TypePackage   = "package"
	TypeCharacter = "character"
	TypeScenario  = "scenario"
	TypeBook      = "book"
)

// Character mirrors Characters/{id}/character.json.
//
// Description is the character's physical appearance; the narrative description a
// CCv3 card calls "description" lives in Profile.
type Character struct {
	Type      string `json:"$type"`
	ID        string `json:"Id"`
	PackageID string `json:"PackageId,omitempty"`
	Name      string `json:"Name"`
	Label     string `json:"Label,omitempty"`
	Version   string `json:"Version,omitempty"`
	Creator   string `json:"Creator,omitempty"`

	CreatorNotes    string   `json:"CreatorNotes,omitempty"`
	Tags            []string `json:"Tags,omitempty"`
	Culture         string   `json:"Culture,omitempty"`
	ExplicitContent bool     `json:"ExplicitContent,omitempty"`

	Description              string   `json:"Description,omitempty"`
	Personality              string   `json:"Personality,omitempty"`
	Profile                  string   `json:"Profile,omitempty"`
	Scenario                 string   `json:"Scenario,omitempty"`
	FirstMessage             string   `json:"FirstMessage,omitempty"`
	AlternativeFirstMessages []string `json:"AlternativeFirstMessages,omitempty"`
	MessageExamples          string   `json:"MessageExamples,omitempty"`
	SystemPrompt             string   `json:"SystemPrompt,omitempty"`
	PostHistoryInstructions  string   `json:"PostHistoryInstructions,omitempty"`

	// Voxta-only blocks, kept opaque so they survive a CCv3 round trip unchanged.
	ChatSettings map[string]any `json:"ChatSettings,omitempty"`
	Scripts      []any          `json:"Scripts,omitempty"`
	TextToSpeech []any          `json:"TextToSpeech,omitempty"`

	MemoryBooks  []string `json:"MemoryBooks,omitempty"`
	DateCreated  string   `json:"DateCreated,omitempty"`
	DateModified string   `json:"DateModified,omitempty"`
}

// Book mirrors Books/{id}/book.json.
type Book struct {
	Type         string     `json:"$type"`
	ID           string     `json:"Id"`
	PackageID    string     `json:"PackageId,omitempty"`
	Name         string     `json:"Name"`
	Version      string     `json:"Version,omitempty"`
	Creator      string     `json:"Creator,omitempty"`
	Description  string     `json:"Description,omitempty"`
	Items        []BookItem `json:"Items"`
	DateCreated  string     `json:"DateCreated,omitempty"`
	DateModified string     `json:"DateModified,omitempty"`
}

// BookItem is one memory entry. Deleted items are kept but disabled.
type BookItem struct {
	ID          string   `json:"Id"`
	Keywords    []string `json:"Keywords"`
	Text        string   `json:"Text"`
	Weight      int      `json:"Weight,omitempty"`
	Deleted     bool     `json:"Deleted,omitempty"`
	CreatedAt   string   `json:"CreatedAt,omitempty"`
	LastUpdated string   `json:"LastUpdated,omitempty"`
}

// Scenario mirrors Scenarios/{id}/scenario.json.
type Scenario struct {
	Type          string `json:"$type"`
	ID            string `json:"Id"`
	PackageID     string `json:"PackageId,omitempty"`
	Name          string `json:"Name"`
	Version       string `json:"Version,omitempty"`
	Creator       string `json:"Creator,omitempty"`
	Description   string `json:"Description,omitempty"`
	SharedScripts []any  `json:"SharedScripts,omitempty"`
	DateCreated   string `json:"DateCreated,omitempty"`
	DateModified  string `json:"DateModified,omitempty"`
}

// PackageManifest mirrors the optional package.json.
type PackageManifest struct {
	Type              string    `json:"$type"`
	ID                string    `json:"Id"`
	Name              string    `json:"Name"`
	Version           string    `json:"Version,omitempty"`
	Creator           string    `json:"Creator,omitempty"`
	Description       string    `json:"Description,omitempty"`
	ExplicitContent   bool      `json:"ExplicitContent,omitempty"`
	EntryResource     *Resource `json:"EntryResource,omitempty"`
	ThumbnailResource *Resource `json:"ThumbnailResource,omitempty"`
	DateCreated       string    `json:"DateCreated,omitempty"`
	DateModified      string    `json:"DateModified,omitempty"`
}

// Resource points at an entity inside the package.
type Resource struct {
	Kind int    `json:"Kind"`
	ID   string `json:"Id"`
}

// Resource kinds.
const (
	ResourceCharacter = 1
	ResourceScenario  = 2
	ResourceBook      = 3
)
