package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/charx"
	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/db"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/fetch"
	"github.com/hpungsan/cardforge/internal/library"
	"github.com/hpungsan/cardforge/internal/parser"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Address represents a validated library address.
type Address struct {
	ByID bool
	ID   string
	Name string // normalized
}

// ValidateAddress validates addressing parameters and returns a normalized Address.
// Exactly one of id or name must be given.
func ValidateAddress(id, name string) (*Address, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)

	if id != "" && name != "" {
		return nil, errors.NewAmbiguousAddressing()
	}
	if id == "" && name == "" {
		return nil, errors.NewInvalidRequest("must specify either id or name")
	}
	if id != "" {
		return &Address{ByID: true, ID: id}, nil
	}
	return &Address{Name: card.NormalizeName(name)}, nil
}

// resolve loads the entry an address points at.
func resolve(ctx context.Context, database *sql.DB, addr *Address, includeDeleted bool) (*library.Entry, error) {
	if addr.ByID {
		return db.GetByID(ctx, database, addr.ID, includeDeleted)
	}
	return db.GetByName(ctx, database, addr.Name, includeDeleted)
}

// ParserOptions derives parse options from config. f is used for remote assets when
// fetching is enabled; nil selects the HTTP fetcher.
func ParserOptions(cfg *config.Config, f charx.Fetcher) parser.Options {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	opts := parser.DefaultOptions()
	opts.CharX.Limits = cfg.CharXLimits()
	opts.CharX.Safety = cfg.Safety()
	opts.CharX.FetchConcurrency = cfg.FetchConcurrency
	opts.VoxtaLimits = cfg.VoxtaLimits()
	opts.Tokenizer = parser.HeuristicTokenizer

	if cfg.FetchRemoteAssets {
		if f == nil {
			f = fetch.New(cfg.FetchTimeout(),
				fetch.WithMaxBytes(cfg.CharX.MaxAssetSize),
				fetch.WithLogger(log.Logger))
		}
		opts.CharX.FetchRemote = true
		opts.CharX.Fetcher = f
	}
	return opts
}

// Source names a card file to read: a path on disk, or bytes supplied directly with an
// optional filename used for format sniffing.
type Source struct {
	Path     string
	Data     []byte
	Filename string

	// CheckPath applies the allowed-directory policy to Path.
	CheckPath bool
}

// parseSource reads and parses a card from src.
func parseSource(ctx context.Context, cfg *config.Config, src Source, f charx.Fetcher) (*parser.ParsedCard, string, error) {
	buf, name := src.Data, src.Filename
	if src.Path != "" {
		if src.Data != nil {
			return nil, "", errors.NewInvalidRequest("specify either path or data, not both")
		}
		if src.CheckPath {
			if err := ValidatePath(src.Path, PathCheckRead, cfg); err != nil {
				return nil, "", err
			}
		}
		var err error
		buf, err = readCardFile(src.Path, cfg)
		if err != nil {
			return nil, "", err
		}
		name = src.Path
	}
	if len(buf) == 0 {
		return nil, "", errors.NewInvalidRequest("path or data is required")
	}

	start := time.Now()
	pc, err := parser.Parse(ctx, buf, name, ParserOptions(cfg, f))
	if err != nil {
		log.Debug().Err(err).Str("source", name).Msg("parse failed")
		return nil, "", err
	}
	log.Debug().
		Str("source", name).
		Str("format", string(pc.Format)).
		Str("spec", pc.Spec).
		Int("assets", len(pc.Assets)).
		Dur("elapsed", time.Since(start)).
		Msg("card parsed")
	for _, w := range pc.Warnings {
		log.Warn().Str("source", name).Msg(w)
	}
	return pc, name, nil
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
