package voxta

import "regexp"

var (
	// {{ user }}, {{  char}} ...
	spacedMacroRegex = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.:]*)\s*\}\}`)
	// {{user}} exactly
	tightMacroRegex = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_.:]*)\}\}`)
)

// MacrosToCard rewrites Voxta-style macros ({{ user }}) to the card form ({{user}}).
func MacrosToCard(s string) string {
	return spacedMacroRegex.ReplaceAllString(s, "{{$1}}")
}

// MacrosToVoxta rewrites card-style macros ({{user}}) to the Voxta form ({{ user }}).
// Macros already spaced are left alone.
func MacrosToVoxta(s string) string {
	return tightMacroRegex.ReplaceAllString(s, "{{ $1 }}")
}
