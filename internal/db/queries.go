package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/library"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.CardError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

const cardColumns = `
	c.id, c.name_raw, c.name_norm, c.spec, c.source_format, c.source_name,
	c.creator, c.character_version, c.tags_json, c.card_json, c.main_image,
	c.tokens_estimate, c.module_risum, c.x_meta_json, c.warnings_json,
	c.created_at, c.updated_at, c.deleted_at,
	(SELECT COUNT(*) FROM assets a WHERE a.card_id = c.id)`

// Insert stores a new card and its assets in one transaction. Asset rows get IDs
// from newID and their CardID set to e.ID.
func Insert(ctx context.Context, db *sql.DB, e *library.Entry, assets []library.Asset, newID func() (string, error)) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if err := insertTx(ctx, tx, e, assets, newID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	e.AssetCount = len(assets)
	return nil
}

// Replace soft-deletes the active card named e.NameNorm, if any, and inserts e in the
// same transaction. It returns the replaced card's ID, or "" when nothing was replaced.
func Replace(ctx context.Context, db *sql.DB, e *library.Entry, assets []library.Asset, newID func() (string, error)) (string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	defer tx.Rollback()

	var replaced string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM cards WHERE name_norm = ? AND deleted_at IS NULL`, e.NameNorm,
	).Scan(&replaced)
	if err != nil && err != sql.ErrNoRows {
		return "", errors.NewInternal(err)
	}
	if replaced != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE cards SET deleted_at = ? WHERE id = ?`, time.Now().Unix(), replaced,
		); err != nil {
			return "", errors.NewInternal(err)
		}
	}

	if err := insertTx(ctx, tx, e, assets, newID); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", errors.NewInternal(err)
	}
	e.AssetCount = len(assets)
	return replaced, nil
}

func insertTx(ctx context.Context, tx *sql.Tx, e *library.Entry, assets []library.Asset, newID func() (string, error)) error {
	tagsJSON, err := toNullJSON(e.Tags, len(e.Tags) > 0)
	if err != nil {
		return err
	}
	xMetaJSON, err := toNullJSON(e.XMeta, len(e.XMeta) > 0)
	if err != nil {
		return err
	}
	warningsJSON, err := toNullJSON(e.Warnings, len(e.Warnings) > 0)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cards (
			id, name_raw, name_norm, spec, source_format, source_name,
			creator, character_version, tags_json, card_json, main_image,
			tokens_estimate, module_risum, x_meta_json, warnings_json,
			created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = tx.ExecContext(ctx, query,
		e.ID, e.NameRaw, e.NameNorm, e.Spec, e.SourceFormat, toNullString(e.SourceName),
		toNullString(e.Creator), toNullString(e.CharacterVersion), tagsJSON, string(e.CardJSON), nullBlob(e.MainImage),
		e.TokensEstimate, nullBlob(e.ModuleRisum), xMetaJSON, warningsJSON,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	for i := range assets {
		a := &assets[i]
		if a.ID == "" {
			id, err := newID()
			if err != nil {
				return errors.NewInternal(err)
			}
			a.ID = id
		}
		a.CardID = e.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assets (id, card_id, position, type, uri, name, ext, path, size, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.CardID, a.Position, a.Type, a.URI, a.Name, a.Ext, toNullString(nonEmpty(a.Path)), a.Size, nullBlob(a.Data),
		)
		if err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a card by its ULID.
// If includeDeleted is false, soft-deleted cards are excluded.
func GetByID(ctx context.Context, db *sql.DB, id string, includeDeleted bool) (*library.Entry, error) {
	query := `SELECT ` + cardColumns + ` FROM cards c WHERE c.id = ?`
	if !includeDeleted {
		query += " AND c.deleted_at IS NULL"
	}

	e, err := scanEntry(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// GetByName retrieves a card by normalized name.
// If includeDeleted is true and no active card matches, the most recently updated
// deleted card is returned.
func GetByName(ctx context.Context, db *sql.DB, nameNorm string, includeDeleted bool) (*library.Entry, error) {
	query := `SELECT ` + cardColumns + ` FROM cards c WHERE c.name_norm = ?`
	if !includeDeleted {
		query += " AND c.deleted_at IS NULL"
	} else {
		query += " ORDER BY (c.deleted_at IS NULL) DESC, c.updated_at DESC LIMIT 1"
	}

	e, err := scanEntry(db.QueryRowContext(ctx, query, nameNorm))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(nameNorm)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// CheckNameExists checks if an active card with the given name exists.
func CheckNameExists(ctx context.Context, db *sql.DB, nameNorm string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM cards WHERE name_norm = ? AND deleted_at IS NULL LIMIT 1`, nameNorm,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// MaxRenameAttempts bounds FindUniqueName.
const MaxRenameAttempts = 100

// FindUniqueName returns the first "<base> (n)", n >= 2, not held by an active card.
// base is returned unchanged when it is free.
func FindUniqueName(ctx context.Context, db *sql.DB, base string) (string, error) {
	exists, err := CheckNameExists(ctx, db, base)
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}
	for n := 2; n <= MaxRenameAttempts; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		exists, err := CheckNameExists(ctx, db, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", errors.NewNameAlreadyExists(base)
}

// ListFilter narrows ListCards.
type ListFilter struct {
	Tag            string
	Spec           string
	Format         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// ListCards returns summaries ordered by updated_at descending, plus the total number of
// matches before pagination.
func ListCards(ctx context.Context, db *sql.DB, f ListFilter) ([]library.Summary, int, error) {
	var (
		where []string
		args  []any
	)
	if !f.IncludeDeleted {
		where = append(where, "c.deleted_at IS NULL")
	}
	if f.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(c.tags_json) t WHERE lower(t.value) = lower(?))")
		args = append(args, f.Tag)
	}
	if f.Spec != "" {
		where = append(where, "c.spec = ?")
		args = append(args, f.Spec)
	}
	if f.Format != "" {
		where = append(where, "c.source_format = ?")
		args = append(args, f.Format)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards c`+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + cardColumns + ` FROM cards c` + clause +
		` ORDER BY c.updated_at DESC, c.id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []library.Summary
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, e.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// GetAssets returns a card's assets in stored order. withData=false leaves Data nil.
func GetAssets(ctx context.Context, db *sql.DB, cardID string, withData bool) ([]library.Asset, error) {
	dataCol := "NULL"
	if withData {
		dataCol = "data"
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, card_id, position, type, uri, name, ext, path, size, `+dataCol+`
		FROM assets WHERE card_id = ? ORDER BY position`, cardID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []library.Asset
	for rows.Next() {
		var (
			a    library.Asset
			path sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.CardID, &a.Position, &a.Type, &a.URI, &a.Name, &a.Ext, &path, &a.Size, &a.Data); err != nil {
			return nil, errors.NewInternal(err)
		}
		a.Path = path.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SoftDelete marks a card as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE cards SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// PurgeDeleted permanently removes soft-deleted cards and, through the foreign key,
// their assets. olderThanDays limits the purge to cards deleted before now minus N days.
func PurgeDeleted(ctx context.Context, db *sql.DB, olderThanDays *int) (int, error) {
	query := `DELETE FROM cards WHERE deleted_at IS NOT NULL`
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEntry scans one row selected with cardColumns.
func scanEntry(row scanner) (*library.Entry, error) {
	var (
		e            library.Entry
		sourceName   sql.NullString
		creator      sql.NullString
		version      sql.NullString
		tagsJSON     sql.NullString
		cardJSON     string
		xMetaJSON    sql.NullString
		warningsJSON sql.NullString
		deletedAt    sql.NullInt64
	)

	err := row.Scan(
		&e.ID, &e.NameRaw, &e.NameNorm, &e.Spec, &e.SourceFormat, &sourceName,
		&creator, &version, &tagsJSON, &cardJSON, &e.MainImage,
		&e.TokensEstimate, &e.ModuleRisum, &xMetaJSON, &warningsJSON,
		&e.CreatedAt, &e.UpdatedAt, &deletedAt,
		&e.AssetCount,
	)
	if err != nil {
		return nil, err
	}

	e.CardJSON = []byte(cardJSON)
	e.SourceName = fromNullString(sourceName)
	e.Creator = fromNullString(creator)
	e.CharacterVersion = fromNullString(version)
	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Int64
	}

	if err := fromNullJSON(tagsJSON, &e.Tags); err != nil {
		return nil, err
	}
	if err := fromNullJSON(xMetaJSON, &e.XMeta); err != nil {
		return nil, err
	}
	if err := fromNullJSON(warningsJSON, &e.Warnings); err != nil {
		return nil, err
	}

	return &e, nil
}

func toNullJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, errors.NewInternal(err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func fromNullJSON(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// nullBlob stores nil slices as NULL rather than an empty blob.
func nullBlob(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
