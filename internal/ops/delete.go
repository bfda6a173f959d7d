package ops

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/cardforge/internal/db"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID   string
	Name string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete soft-deletes a library card. Its assets stay until the card is purged.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Name)
	if err != nil {
		return nil, err
	}

	// Resolve to an active card so name addressing never hits a deleted row
	e, err := resolve(ctx, database, addr, false)
	if err != nil {
		return nil, err
	}

	if err := db.SoftDelete(ctx, database, e.ID); err != nil {
		return nil, err
	}
	log.Debug().Str("id", e.ID).Str("name", e.NameRaw).Msg("card deleted")

	return &DeleteOutput{
		Deleted: true,
		ID:      e.ID,
	}, nil
}
