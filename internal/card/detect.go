package card

import (
	"encoding/json"
	"fmt"

	"github.com/hpungsan/cardforge/internal/errors"
)

// Detect classifies raw card JSON and decodes it into the matching dialect.
//
//   - spec == chara_card_v3 → *V3 (field completeness is not checked)
//   - spec == chara_card_v2 → *V2
//   - no spec, but a CCv2-shaped "data" object → *V2 (unwrapped but tagged)
//   - anything else without spec → legacy upgrade to *V2
func Detect(raw []byte) (Card, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, errors.NewSpecMismatch(fmt.Sprintf("card is not valid JSON: %v", err))
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, errors.NewSpecMismatch("card JSON root must be an object")
	}

	specVal, hasSpec := obj["spec"]
	if hasSpec {
		spec, isString := specVal.(string)
		if !isString {
			return nil, errors.NewSpecMismatch("spec field must be a string")
		}
		switch spec {
		case SpecV3:
			var c V3
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, errors.NewSpecMismatch(fmt.Sprintf("invalid %s document: %v", SpecV3, err))
			}
			c.Data.fillDefaults()
			return &c, nil
		case SpecV2:
			var c V2
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, errors.NewSpecMismatch(fmt.Sprintf("invalid %s document: %v", SpecV2, err))
			}
			c.Data.fillDefaults()
			return &c, nil
		case "":
			// Treat an empty tag like a missing one.
		default:
			return nil, errors.NewSpecMismatch(fmt.Sprintf("unsupported spec %q", spec))
		}
	}

	if data, ok := obj["data"].(map[string]any); ok && looksLikeV2Data(data) {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		var d Data
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, errors.NewSpecMismatch(fmt.Sprintf("invalid card data object: %v", err))
		}
		return NewV2(d), nil
	}

	return UpgradeLegacy(obj)
}

// looksLikeV2Data reports whether obj has the shape of a CCv2 data object.
func looksLikeV2Data(obj map[string]any) bool {
	if _, ok := obj["name"].(string); !ok {
		return false
	}
	for _, key := range []string{"description", "personality", "first_mes", "scenario", "mes_example"} {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

// UpgradeLegacy converts an unwrapped, pre-v2 card object into a CCv2 document.
// Fields with the wrong type are dropped rather than failing the upgrade; only a
// missing or non-string name is fatal.
func UpgradeLegacy(obj map[string]any) (*V2, error) {
	name, ok := obj["name"].(string)
	if !ok {
		return nil, errors.NewMissingRequired("field", "name")
	}

	d := Data{
		Name:                    name,
		Description:             stringField(obj, "description"),
		Personality:             stringField(obj, "personality"),
		Scenario:                stringField(obj, "scenario"),
		FirstMes:                stringFieldOr(obj, "first_mes", "greeting"),
		MesExample:              stringFieldOr(obj, "mes_example", "example_dialogue"),
		CreatorNotes:            stringField(obj, "creator_notes"),
		SystemPrompt:            stringField(obj, "system_prompt"),
		PostHistoryInstructions: stringField(obj, "post_history_instructions"),
		AlternateGreetings:      stringSliceField(obj, "alternate_greetings"),
		Tags:                    stringSliceField(obj, "tags"),
		Creator:                 stringField(obj, "creator"),
		CharacterVersion:        stringField(obj, "character_version"),
	}
	if ext, ok := obj["extensions"].(map[string]any); ok {
		d.Extensions = ext
	}
	if book, ok := obj["character_book"].(map[string]any); ok {
		d.CharacterBook = decodeLorebook(book)
	}

	return NewV2(d), nil
}

// stringField returns obj[key] if it is a string, else "".
func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// stringFieldOr reads key, falling back to legacyKey only when key is absent.
func stringFieldOr(obj map[string]any, key, legacyKey string) string {
	if _, present := obj[key]; present {
		return stringField(obj, key)
	}
	return stringField(obj, legacyKey)
}

// stringSliceField returns the string elements of obj[key]; non-strings are skipped.
func stringSliceField(obj map[string]any, key string) []string {
	arr, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// decodeLorebook converts a loosely typed book object; a book that does not decode is omitted.
func decodeLorebook(obj map[string]any) *Lorebook {
	b, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	var book Lorebook
	if err := json.Unmarshal(b, &book); err != nil {
		return nil
	}
	return &book
}
