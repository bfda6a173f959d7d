package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/cardforge/internal/errors"
)

func TestDelete_ByID(t *testing.T) {
	database, cfg, _ := setupTest(t)
	imp := importData(t, database, cfg, testCardJSON(t, testCardV3("Aria")), "", "")

	out, err := Delete(context.Background(), database, DeleteInput{ID: imp.ID})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !out.Deleted || out.ID != imp.ID {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestDelete_ByName(t *testing.T) {
	database, cfg, _ := setupTest(t)
	imp := importData(t, database, cfg, testCardJSON(t, testCardV3("Aria")), "", "")

	out, err := Delete(context.Background(), database, DeleteInput{Name: "ARIA"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if out.ID != imp.ID {
		t.Errorf("ID = %q, want %q", out.ID, imp.ID)
	}

	// The name is free again
	importData(t, database, cfg, testCardJSON(t, testCardV3("Aria")), "", ImportModeError)
}

func TestDelete_Twice(t *testing.T) {
	database, cfg, _ := setupTest(t)
	imp := importData(t, database, cfg, testCardJSON(t, testCardV3("Aria")), "", "")

	if _, err := Delete(context.Background(), database, DeleteInput{ID: imp.ID}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, err := Delete(context.Background(), database, DeleteInput{ID: imp.ID})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestDelete_Addressing(t *testing.T) {
	database, _, _ := setupTest(t)

	if _, err := Delete(context.Background(), database, DeleteInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
	if _, err := Delete(context.Background(), database, DeleteInput{ID: "x", Name: "y"}); !errors.Is(err, errors.ErrAmbiguousAddressing) {
		t.Errorf("expected ErrAmbiguousAddressing, got: %v", err)
	}
}
