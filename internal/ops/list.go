package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/db"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/library"
	"github.com/hpungsan/cardforge/internal/parser"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Tag            string // optional, case-insensitive
	Spec           string // optional: v2, v3, chara_card_v2 or chara_card_v3
	Format         string // optional source format: json, png, charx, voxta
	Limit          int    // default: 20, max: 100
	Offset         int    // default: 0
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []library.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// List retrieves card summaries with pagination.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	spec, err := normalizeSpecFilter(input.Spec)
	if err != nil {
		return nil, err
	}
	format, err := normalizeFormatFilter(input.Format)
	if err != nil {
		return nil, err
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	// Ensure offset is non-negative
	offset := max(input.Offset, 0)

	summaries, total, err := db.ListCards(ctx, database, db.ListFilter{
		Tag:            strings.TrimSpace(input.Tag),
		Spec:           spec,
		Format:         format,
		IncludeDeleted: input.IncludeDeleted,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []library.Summary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}

func normalizeSpecFilter(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "v2", card.SpecV2:
		return card.SpecV2, nil
	case "v3", card.SpecV3:
		return card.SpecV3, nil
	}
	return "", errors.NewInvalidRequest("spec must be one of: v2, v3")
}

func normalizeFormatFilter(s string) (string, error) {
	f := parser.Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return "", nil
	case parser.FormatJSON, parser.FormatPNG, parser.FormatCharX, parser.FormatVoxta:
		return string(f), nil
	}
	return "", errors.NewInvalidRequest("format must be one of: json, png, charx, voxta")
}
