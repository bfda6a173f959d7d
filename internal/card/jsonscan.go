package card

import (
	"bytes"
	"encoding/json"

	"github.com/hpungsan/cardforge/internal/errors"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// ExtractJSONObject returns the first complete JSON object in text, ignoring anything
// after its closing brace. Braces inside strings are skipped and backslash escapes honored.
func ExtractJSONObject(text []byte) ([]byte, error) {
	text = bytes.TrimPrefix(text, utf8BOM)

	trimmed := bytes.TrimSpace(text)
	if json.Valid(trimmed) {
		return trimmed, nil
	}

	start := bytes.IndexByte(text, '{')
	if start < 0 {
		return nil, errors.NewSpecMismatch("no JSON object found")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return nil, errors.NewSpecMismatch("unterminated JSON object")
}
