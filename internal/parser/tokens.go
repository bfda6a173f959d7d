package parser

import "github.com/hpungsan/cardforge/internal/card"

// Tokenizer counts tokens in text. The real model tokenizer lives outside this module.
type Tokenizer interface {
	Count(text string) int
}

// TokenizerFunc adapts a function to Tokenizer.
type TokenizerFunc func(text string) int

// Count calls f.
func (f TokenizerFunc) Count(text string) int { return f(text) }

// HeuristicTokenizer estimates tokens from word count.
var HeuristicTokenizer Tokenizer = TokenizerFunc(card.EstimateTokens)

// TokenCounts are per-field token counts. Lorebook counts enabled entries only.
type TokenCounts struct {
	Description             int `json:"description"`
	Personality             int `json:"personality"`
	Scenario                int `json:"scenario"`
	FirstMes                int `json:"first_mes"`
	MesExample              int `json:"mes_example"`
	SystemPrompt            int `json:"system_prompt"`
	PostHistoryInstructions int `json:"post_history_instructions"`
	AlternateGreetings      int `json:"alternate_greetings"`
	Lorebook                int `json:"lorebook"`
	Total                   int `json:"total"`
}

// CountTokens runs tok over the prompt-bearing fields of c.
func CountTokens(c card.Card, tok Tokenizer) TokenCounts {
	d := c.Common()
	tc := TokenCounts{
		Description:             tok.Count(d.Description),
		Personality:             tok.Count(d.Personality),
		Scenario:                tok.Count(d.Scenario),
		FirstMes:                tok.Count(d.FirstMes),
		MesExample:              tok.Count(d.MesExample),
		SystemPrompt:            tok.Count(d.SystemPrompt),
		PostHistoryInstructions: tok.Count(d.PostHistoryInstructions),
	}
	for _, g := range d.AlternateGreetings {
		tc.AlternateGreetings += tok.Count(g)
	}
	if d.CharacterBook != nil {
		for _, e := range d.CharacterBook.Entries {
			if e.Enabled {
				tc.Lorebook += tok.Count(e.Content)
			}
		}
	}
	tc.Total = tc.Description + tc.Personality + tc.Scenario + tc.FirstMes + tc.MesExample +
		tc.SystemPrompt + tc.PostHistoryInstructions + tc.AlternateGreetings + tc.Lorebook
	return tc
}
