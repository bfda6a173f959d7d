package png

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/cardforge/internal/binutil"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/uri"
)

// Card-carrying keywords. ccv3 holds CCv3 JSON and wins over chara.
const (
	KeywordV2 = "chara"
	KeywordV3 = "ccv3"
)

// cardKeywords lists the recognised keywords in priority order.
var cardKeywords = []string{KeywordV3, KeywordV2}

// IsCardKeyword reports whether keyword names a card chunk. Case is ignored.
func IsCardKeyword(keyword string) bool {
	for _, k := range cardKeywords {
		if strings.EqualFold(keyword, k) {
			return true
		}
	}
	return false
}

// Result is the outcome of Extract.
type Result struct {
	// CardJSON is the decoded card document.
	CardJSON []byte
	// Keyword is the chunk keyword CardJSON was read from.
	Keyword string
	// TextChunks maps every text chunk keyword to its decoded text. The first
	// occurrence of a keyword wins.
	TextChunks map[string]string
	Warnings   []string
}

// Extract reads the embedded card JSON from a PNG. ccv3 is preferred over chara; if the
// preferred payload does not decode, the next keyword is tried and a warning recorded.
func Extract(buf []byte) (*Result, error) {
	chunks, err := ReadChunks(buf)
	if err != nil {
		return nil, err
	}

	res := &Result{TextChunks: make(map[string]string)}
	cardTexts := make(map[string]string)
	for _, c := range chunks {
		if !c.IsText() {
			continue
		}
		tc, err := DecodeText(c)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
			continue
		}
		if _, seen := res.TextChunks[tc.Keyword]; !seen {
			res.TextChunks[tc.Keyword] = tc.Text
		}
		if IsCardKeyword(tc.Keyword) {
			key := strings.ToLower(tc.Keyword)
			if _, seen := cardTexts[key]; !seen {
				cardTexts[key] = tc.Text
			}
		}
	}

	var firstErr error
	for _, k := range cardKeywords {
		text, ok := cardTexts[k]
		if !ok {
			continue
		}
		payload, err := DecodePayload(text)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s chunk unreadable: %v", k, err))
			continue
		}
		res.CardJSON = payload
		res.Keyword = k
		return res, nil
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, errors.NewMissingRequired("chunk", KeywordV2)
}

// DecodePayload turns a card chunk's text into JSON. The text is normally base64;
// raw JSON is accepted as well.
func DecodePayload(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		return card.ExtractJSONObject([]byte(trimmed))
	}

	decoded, err := binutil.DecodeBase64(trimmed)
	if err != nil {
		return nil, errors.NewSpecMismatch(fmt.Sprintf("card chunk is not base64: %v", err))
	}
	decoded = bytes.TrimSpace(decoded)
	if !json.Valid(decoded) {
		return card.ExtractJSONObject(decoded)
	}
	return decoded, nil
}

// Embed writes cardJSON into image under keyword. Every existing card chunk is removed,
// the new tEXt chunk goes immediately before IEND, and all other chunks are copied
// byte-for-byte in their original order.
func Embed(image, cardJSON []byte, keyword string) ([]byte, error) {
	return embed(image, []textEntry{{keyword, binutil.EncodeBase64(cardJSON)}})
}

// EmbedCard writes c into image. A v3 card is stored as ccv3 plus a v2 projection under
// chara so older readers still find a card; a v2 card is stored as chara only.
func EmbedCard(image []byte, c card.Card) ([]byte, error) {
	v2JSON, err := card.Marshal(card.ToV2(c))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	entries := []textEntry{{KeywordV2, binutil.EncodeBase64(v2JSON)}}

	if v3, ok := c.(*card.V3); ok {
		v3JSON, err := card.Marshal(v3)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, textEntry{KeywordV3, binutil.EncodeBase64(v3JSON)})
	}
	return embed(image, entries)
}

// StripCard removes every card chunk from image. All other chunks are copied
// byte-for-byte in their original order.
func StripCard(image []byte) ([]byte, error) {
	return embed(image, nil)
}

type textEntry struct {
	keyword string
	text    string
}

func embed(image []byte, entries []textEntry) ([]byte, error) {
	chunks, err := ReadChunks(image)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 || chunks[len(chunks)-1].Type != TypeEnd {
		return nil, errors.NewMalformedContainer("png", "missing IEND chunk")
	}

	out := make([]byte, 0, len(image)+estimateSize(entries))
	out = append(out, binutil.PNGSignature...)
	for _, c := range chunks {
		if c.Type == TypeEnd {
			for _, e := range entries {
				out = append(out, encodeChunk(TypeText, encodeText(e.keyword, e.text))...)
			}
		}
		if c.IsText() && isCardChunk(c) {
			continue
		}
		out = append(out, c.Raw...)
	}
	return out, nil
}

// isCardChunk reports whether a text chunk carries card data. Only the keyword is read,
// so compressed payloads are not inflated.
func isCardChunk(c Chunk) bool {
	keyword, _, found := bytes.Cut(c.Data, []byte{0})
	return found && IsCardKeyword(string(keyword))
}

func estimateSize(entries []textEntry) int {
	n := 0
	for _, e := range entries {
		n += 13 + len(e.keyword) + len(e.text)
	}
	return n
}

// ExtractAssets resolves pngchunk descriptors against the text chunks of a PNG and
// decodes their base64 payloads. Descriptors of other schemes are skipped. A reference
// with no matching chunk yields an asset without a buffer plus a warning.
func ExtractAssets(descriptors []card.AssetDescriptor, textChunks map[string]string) ([]card.ExtractedAsset, []string) {
	var assets []card.ExtractedAsset
	var warnings []string

	for _, d := range descriptors {
		p := uri.Parse(d.URI)
		if p.Scheme != uri.SchemePNGChunk {
			continue
		}
		asset := card.ExtractedAsset{Descriptor: d}

		key, ok := p.ResolveChunk(textChunks)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("asset %q: no PNG chunk for %s", d.Name, d.URI))
			assets = append(assets, asset)
			continue
		}
		asset.Path = key

		data, err := binutil.DecodeBase64(textChunks[key])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("asset %q: chunk %s is not base64: %v", d.Name, key, err))
		} else {
			asset.Buffer = data
		}
		assets = append(assets, asset)
	}
	return assets, warnings
}
