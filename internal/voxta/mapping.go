package voxta

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/cardforge/internal/card"
)

// Extension keys written into CCv3 extensions.
const (
	ExtensionKey         = "voxta"
	VisualDescriptionKey = "visual_description"
)

// DefaultWeight is the priority given to book items without a weight.
const DefaultWeight = 10

// ToCCv3 maps a Voxta character and its books to a CCv3 card.
//
// Profile becomes description. The Voxta Description (appearance) goes to
// extensions.visual_description and extensions.voxta.appearance. Every Voxta-only
// field is kept under extensions.voxta so FromCCv3 can restore it.
func ToCCv3(ch Character, books []Book) *card.V3 {
	data := card.V3Data{
		Data: card.Data{
			Name:                    ch.Name,
			Description:             MacrosToCard(ch.Profile),
			Personality:             MacrosToCard(ch.Personality),
			Scenario:                MacrosToCard(ch.Scenario),
			FirstMes:                MacrosToCard(ch.FirstMessage),
			MesExample:              MacrosToCard(ch.MessageExamples),
			CreatorNotes:            ch.CreatorNotes,
			SystemPrompt:            MacrosToCard(ch.SystemPrompt),
			PostHistoryInstructions: MacrosToCard(ch.PostHistoryInstructions),
			Tags:                    append([]string{}, ch.Tags...),
			Creator:                 ch.Creator,
			CharacterVersion:        ch.Version,
			Extensions:              map[string]any{},
		},
	}
	for _, g := range ch.AlternativeFirstMessages {
		data.AlternateGreetings = append(data.AlternateGreetings, MacrosToCard(g))
	}
	if ch.Label != "" {
		data.Nickname = ch.Label
	}
	data.CreationDate = unixTime(ch.DateCreated)
	data.ModificationDate = unixTime(ch.DateModified)

	if ch.Description != "" {
		data.Extensions[VisualDescriptionKey] = MacrosToCard(ch.Description)
	}

	ext := map[string]any{"id": ch.ID}
	setIf(ext, "packageId", ch.PackageID)
	setIf(ext, "appearance", MacrosToCard(ch.Description))
	setIf(ext, "label", ch.Label)
	setIf(ext, "culture", ch.Culture)
	setIf(ext, "dateCreated", ch.DateCreated)
	setIf(ext, "dateModified", ch.DateModified)
	if ch.ExplicitContent {
		ext["explicitContent"] = true
	}
	if ch.ChatSettings != nil {
		ext["chatSettings"] = ch.ChatSettings
	}
	if ch.Scripts != nil {
		ext["scripts"] = ch.Scripts
	}
	if ch.TextToSpeech != nil {
		ext["textToSpeech"] = ch.TextToSpeech
	}
	data.Extensions[ExtensionKey] = ext

	if len(books) > 0 {
		data.CharacterBook = BooksToLorebook(books)
	}

	return card.NewV3(data)
}

// FromCCv3 maps a card back to a Voxta character and, if the card has a lorebook, a
// book the character references. Ids stored under extensions.voxta are reused; missing
// ones are generated as UUID v4.
func FromCCv3(c *card.V3) (Character, *Book) {
	d := c.Data
	ext, _ := d.Extensions[ExtensionKey].(map[string]any)

	ch := Character{
		Type:                    TypeCharacter,
		ID:                      stringOr(ext, "id", ""),
		PackageID:               stringOr(ext, "packageId", ""),
		Name:                    d.Name,
		Label:                   stringOr(ext, "label", d.Nickname),
		Version:                 d.CharacterVersion,
		Creator:                 d.Creator,
		CreatorNotes:            d.CreatorNotes,
		Tags:                    append([]string(nil), d.Tags...),
		Culture:                 stringOr(ext, "culture", ""),
		Profile:                 MacrosToVoxta(d.Description),
		Personality:             MacrosToVoxta(d.Personality),
		Scenario:                MacrosToVoxta(d.Scenario),
		FirstMessage:            MacrosToVoxta(d.FirstMes),
		MessageExamples:         MacrosToVoxta(d.MesExample),
		SystemPrompt:            MacrosToVoxta(d.SystemPrompt),
		PostHistoryInstructions: MacrosToVoxta(d.PostHistoryInstructions),
		DateCreated:             stringOr(ext, "dateCreated", formatUnix(d.CreationDate)),
		DateModified:            stringOr(ext, "dateModified", formatUnix(d.ModificationDate)),
	}
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	for _, g := range d.AlternateGreetings {
		ch.AlternativeFirstMessages = append(ch.AlternativeFirstMessages, MacrosToVoxta(g))
	}

	appearance, _ := d.Extensions[VisualDescriptionKey].(string)
	if appearance == "" {
		appearance = stringOr(ext, "appearance", "")
	}
	ch.Description = MacrosToVoxta(appearance)

	if v, ok := ext["explicitContent"].(bool); ok {
		ch.ExplicitContent = v
	}
	if v, ok := ext["chatSettings"].(map[string]any); ok {
		ch.ChatSettings = v
	}
	if v, ok := ext["scripts"].([]any); ok {
		ch.Scripts = v
	}
	if v, ok := ext["textToSpeech"].([]any); ok {
		ch.TextToSpeech = v
	}

	if d.CharacterBook == nil || len(d.CharacterBook.Entries) == 0 {
		return ch, nil
	}
	book := LorebookToBook(d.CharacterBook, ch)
	ch.MemoryBooks = []string{book.ID}
	return ch, &book
}

// BooksToLorebook merges books into one lorebook. Insertion order is the item's index
// across all books, priority is the weight (DefaultWeight when unset), and deleted items
// are kept disabled.
func BooksToLorebook(books []Book) *card.Lorebook {
	lb := &card.Lorebook{
		Name:        books[0].Name,
		Description: books[0].Description,
		Extensions: map[string]any{
			ExtensionKey: map[string]any{"id": books[0].ID},
		},
		Entries: []card.LorebookEntry{},
	}

	idx := 0
	for _, b := range books {
		for _, item := range b.Items {
			weight := item.Weight
			if weight == 0 {
				weight = DefaultWeight
			}
			entry := card.LorebookEntry{
				Keys:           append([]string{}, item.Keywords...),
				Content:        MacrosToCard(item.Text),
				Extensions:     map[string]any{},
				Enabled:        !item.Deleted,
				InsertionOrder: idx,
				Priority:       weight,
			}
			if item.ID != "" {
				entry.ID = item.ID
			}
			lb.Entries = append(lb.Entries, entry)
			idx++
		}
	}
	return lb
}

// LorebookToBook converts a lorebook to a Voxta book owned by ch. Entries are written in
// insertion order.
func LorebookToBook(lb *card.Lorebook, ch Character) Book {
	ext, _ := lb.Extensions[ExtensionKey].(map[string]any)
	name := lb.Name
	if name == "" {
		name = ch.Name
	}

	b := Book{
		Type:         TypeBook,
		ID:           stringOr(ext, "id", ""),
		PackageID:    ch.PackageID,
		Name:         name,
		Version:      ch.Version,
		Creator:      ch.Creator,
		Description:  lb.Description,
		Items:        []BookItem{},
		DateCreated:  ch.DateCreated,
		DateModified: ch.DateModified,
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	for _, e := range lb.SortedEntries() {
		item := BookItem{
			ID:       entryID(e.ID),
			Keywords: append([]string{}, e.Keys...),
			Text:     MacrosToVoxta(e.Content),
			Weight:   e.Priority,
			Deleted:  !e.Enabled,
		}
		if item.Weight == 0 {
			item.Weight = DefaultWeight
		}
		b.Items = append(b.Items, item)
	}
	return b
}

// entryID turns a lorebook entry id (string or number in the wild) into a Voxta id.
func entryID(id any) string {
	switch v := id.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%d", int64(v))
	case int:
		return fmt.Sprintf("%d", v)
	}
	return uuid.NewString()
}

func stringOr(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// unixTime parses a Voxta RFC 3339 timestamp into Unix seconds.
func unixTime(s string) *int64 {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	sec := t.Unix()
	return &sec
}

func formatUnix(sec *int64) string {
	if sec == nil {
		return ""
	}
	return time.Unix(*sec, 0).UTC().Format(time.RFC3339)
}
