package card

import "regexp"

var (
	markdownImageRegex = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	htmlImageRegex     = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	dataImageRegex     = regexp.MustCompile(`data:image/`)
)

// Metadata holds the flags and counts derived from a parsed card.
type Metadata struct {
	HasAlternateGreetings   bool `json:"has_alternate_greetings"`
	AlternateGreetingsCount int  `json:"alternate_greetings_count"`
	HasLorebook             bool `json:"has_lorebook"`
	LorebookEntriesCount    int  `json:"lorebook_entries_count"`
	HasEmbeddedImages       bool `json:"has_embedded_images"`
	EmbeddedImagesCount     int  `json:"embedded_images_count"`
}

// ComputeMetadata derives greeting, lorebook and inline-image statistics.
func ComputeMetadata(c Card) Metadata {
	d := c.Common()

	var m Metadata
	m.AlternateGreetingsCount = len(d.AlternateGreetings)
	m.HasAlternateGreetings = m.AlternateGreetingsCount > 0

	if d.CharacterBook != nil {
		m.LorebookEntriesCount = len(d.CharacterBook.Entries)
	}
	m.HasLorebook = m.LorebookEntriesCount > 0

	m.EmbeddedImagesCount = CountEmbeddedImages(imageBearingFields(d)...)
	m.HasEmbeddedImages = m.EmbeddedImagesCount > 0

	return m
}

// imageBearingFields lists the text fields scanned for inline images.
func imageBearingFields(d *Data) []string {
	fields := []string{d.Description, d.FirstMes, d.MesExample, d.CreatorNotes}
	return append(fields, d.AlternateGreetings...)
}

// CountEmbeddedImages sums markdown image, <img> tag and data:image/ matches across texts.
// The patterns overlap (an <img> with a data URI counts twice); matches are not de-duplicated.
func CountEmbeddedImages(texts ...string) int {
	n := 0
	for _, s := range texts {
		if s == "" {
			continue
		}
		n += len(markdownImageRegex.FindAllStringIndex(s, -1))
		n += len(htmlImageRegex.FindAllStringIndex(s, -1))
		n += len(dataImageRegex.FindAllStringIndex(s, -1))
	}
	return n
}
