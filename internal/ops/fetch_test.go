package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/errors"
)

func TestFetch_ByIDAndName(t *testing.T) {
	database, cfg, work := setupTest(t)
	p := writeTestFile(t, work, "aria.charx", testCardCharX(t, testCardV3("Aria")))
	imp, err := Import(context.Background(), database, cfg, ImportInput{Source: Source{Path: p}})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	byID, err := Fetch(context.Background(), database, FetchInput{ID: imp.ID})
	if err != nil {
		t.Fatalf("Fetch by ID failed: %v", err)
	}
	byName, err := Fetch(context.Background(), database, FetchInput{Name: " aria "})
	if err != nil {
		t.Fatalf("Fetch by name failed: %v", err)
	}
	if byID.ID != byName.ID {
		t.Errorf("ID mismatch: %s vs %s", byID.ID, byName.ID)
	}

	if byID.SourceFormat != "charx" || !byID.HasImage || byID.AssetCount != 1 {
		t.Errorf("unexpected summary: %+v", byID.Summary)
	}
	if len(byID.Assets) != 1 || byID.Assets[0].Size == 0 {
		t.Errorf("unexpected assets: %+v", byID.Assets)
	}
	c, err := card.Detect(byID.Card)
	if err != nil {
		t.Fatalf("card does not decode: %v", err)
	}
	if c.Common().Name != "Aria" {
		t.Errorf("card name = %q, want Aria", c.Common().Name)
	}
}

func TestFetch_ExcludeCard(t *testing.T) {
	database, cfg, _ := setupTest(t)
	imp := importData(t, database, cfg, testCardJSON(t, testCardV2("Bram")), "", "")

	out, err := Fetch(context.Background(), database, FetchInput{ID: imp.ID, IncludeCard: boolPtr(false)})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if out.Card != nil {
		t.Errorf("Card = %s, want omitted", out.Card)
	}
	if out.Assets == nil {
		t.Error("Assets = nil, want empty slice")
	}
}

func TestFetch_NotFound(t *testing.T) {
	database, _, _ := setupTest(t)
	_, err := Fetch(context.Background(), database, FetchInput{Name: "nobody"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestFetch_Deleted(t *testing.T) {
	database, cfg, _ := setupTest(t)
	imp := importData(t, database, cfg, testCardJSON(t, testCardV2("Bram")), "", "")
	if _, err := Delete(context.Background(), database, DeleteInput{ID: imp.ID}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := Fetch(context.Background(), database, FetchInput{ID: imp.ID}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted card, got: %v", err)
	}
	out, err := Fetch(context.Background(), database, FetchInput{ID: imp.ID, IncludeDeleted: true})
	if err != nil {
		t.Fatalf("Fetch include_deleted failed: %v", err)
	}
	if out.DeletedAt == nil {
		t.Error("DeletedAt = nil, want timestamp")
	}
}
