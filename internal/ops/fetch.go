package ops

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/cardforge/internal/db"
	"github.com/hpungsan/cardforge/internal/library"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID             string
	Name           string
	IncludeDeleted bool
	IncludeCard    *bool // default: true (nil means default)
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	library.Summary
	Warnings []string        `json:"warnings,omitempty"`
	Assets   []library.Asset `json:"assets"`
	Card     json.RawMessage `json:"card,omitempty"`
}

// Fetch retrieves a library card by ID or name.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Name)
	if err != nil {
		return nil, err
	}

	e, err := resolve(ctx, database, addr, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	assets, err := db.GetAssets(ctx, database, e.ID, false)
	if err != nil {
		return nil, err
	}
	if assets == nil {
		assets = []library.Asset{}
	}

	output := &FetchOutput{
		Summary:  e.ToSummary(),
		Warnings: e.Warnings,
		Assets:   assets,
	}

	includeCard := true
	if input.IncludeCard != nil {
		includeCard = *input.IncludeCard
	}
	if includeCard {
		output.Card = json.RawMessage(e.CardJSON)
	}

	return output, nil
}
