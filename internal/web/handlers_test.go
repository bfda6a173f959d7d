package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hpungsan/cardforge/internal/binutil"
	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/db"
	"github.com/hpungsan/cardforge/internal/ops"
	cardpng "github.com/hpungsan/cardforge/internal/png"
)

func setupTest(t *testing.T) *Handlers {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}

	return &Handlers{
		db:       database,
		cfg:      config.DefaultConfig(),
		renderer: NewRenderer(templateSub, "test"),
	}
}

// seedCard imports a PNG card and returns its ID.
func seedCard(t *testing.T, h *Handlers, name string, tags ...string) string {
	t.Helper()
	c := card.NewV3(card.V3Data{Data: card.Data{
		Name:               name,
		Description:        "Guards the **north gate**.",
		FirstMes:           "Halt!",
		CreatorNotes:       "<script>alert(1)</script>notes",
		AlternateGreetings: []string{"Back again?"},
		Tags:               tags,
		Creator:            "tester",
		CharacterBook: &card.Lorebook{Entries: []card.LorebookEntry{
			{Keys: []string{"gate"}, Content: "The north gate.", Enabled: true},
		}},
	}})
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	data, err := cardpng.EmbedCard(img.Bytes(), c)
	if err != nil {
		t.Fatalf("embed card: %v", err)
	}
	out, err := ops.Import(context.Background(), h.db, h.cfg, ops.ImportInput{
		Source: ops.Source{Data: data, Filename: strings.ToLower(name) + ".png"},
	})
	if err != nil {
		t.Fatalf("seed card %q: %v", name, err)
	}
	return out.ID
}

// serve routes req through a mux so PathValue is populated.
func serve(pattern string, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, handler)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// --- HandleList ---

func TestHandleList_Default(t *testing.T) {
	h := setupTest(t)
	seedCard(t, h, "Warden", "guard")

	req := httptest.NewRequest("GET", "/cards", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Warden") || !strings.Contains(body, "<html") {
		t.Errorf("expected full page listing Warden, got:\n%s", body)
	}
	if !strings.Contains(body, "/image") {
		t.Error("expected a thumbnail for a card with an image")
	}
}

func TestHandleList_TagFilter(t *testing.T) {
	h := setupTest(t)
	seedCard(t, h, "Warden", "guard")
	seedCard(t, h, "Scholar", "library")

	req := httptest.NewRequest("GET", "/cards?tag=GUARD", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "Warden") || strings.Contains(body, "Scholar") {
		t.Errorf("tag filter not applied:\n%s", body)
	}
}

func TestHandleList_Empty(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/cards", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if !strings.Contains(rec.Body.String(), "No cards found") {
		t.Error("expected empty state message")
	}
}

func TestHandleList_JSON(t *testing.T) {
	h := setupTest(t)
	seedCard(t, h, "Warden")

	req := httptest.NewRequest("GET", "/cards", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	var out ops.ListOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "Warden" {
		t.Errorf("items = %+v", out.Items)
	}
}

func TestHandleList_HtmxReturnsContentOnly(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/cards", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if strings.Contains(rec.Body.String(), "<html") {
		t.Error("htmx request should not render the layout")
	}
}

func TestHandleList_BadSpec(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/cards?spec=v9", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- HandleDetail ---

func TestHandleDetail_Found(t *testing.T) {
	h := setupTest(t)
	id := seedCard(t, h, "Warden", "guard")

	rec := serve("GET /cards/{id}", h.HandleDetail, httptest.NewRequest("GET", "/cards/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<strong>north gate</strong>", "Halt!", "download?format=charx", "Lorebook entries"} {
		if !strings.Contains(body, want) {
			t.Errorf("detail page missing %q", want)
		}
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("raw HTML in creator notes must not be rendered")
	}
}

func TestHandleDetail_NotFound(t *testing.T) {
	h := setupTest(t)

	rec := serve("GET /cards/{id}", h.HandleDetail, httptest.NewRequest("GET", "/cards/01NOPE", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error 404") {
		t.Error("expected full error page")
	}
}

func TestHandleDetail_EmptyID(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/cards/", nil)
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- HandleImage / HandleDownload ---

func TestHandleImage(t *testing.T) {
	h := setupTest(t)
	id := seedCard(t, h, "Warden")

	rec := serve("GET /cards/{id}/image", h.HandleImage, httptest.NewRequest("GET", "/cards/"+id+"/image", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !binutil.IsPNG(rec.Body.Bytes()) {
		t.Error("body is not a PNG")
	}
}

func TestHandleDownload(t *testing.T) {
	h := setupTest(t)
	id := seedCard(t, h, "Warden")

	tests := []struct {
		format      string
		contentType string
		filename    string
	}{
		{"", "image/png", "warden.png"},
		{"json", "application/json", "warden.json"},
		{"charx", "application/zip", "warden.charx"},
		{"voxpkg", "application/zip", "warden.voxpkg"},
	}
	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			target := "/cards/" + id + "/download?format=" + url.QueryEscape(tt.format)
			rec := serve("GET /cards/{id}/download", h.HandleDownload, httptest.NewRequest("GET", target, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, tt.filename) {
				t.Errorf("Content-Disposition = %q, want filename %q", cd, tt.filename)
			}
		})
	}

	rec := serve("GET /cards/{id}/download", h.HandleDownload,
		httptest.NewRequest("GET", "/cards/"+id+"/download?format=gif", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format: status = %d, want 400", rec.Code)
	}
}

// --- HandleDelete ---

func TestHandleDelete_JSONRequest(t *testing.T) {
	h := setupTest(t)
	id := seedCard(t, h, "Warden")

	req := httptest.NewRequest("DELETE", "/cards/"+id, nil)
	req.Header.Set("Accept", "application/json")
	rec := serve("DELETE /cards/{id}", h.HandleDelete, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.DeleteOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Deleted || out.ID != id {
		t.Errorf("out = %+v", out)
	}
}

func TestHandleDelete_FormRedirect(t *testing.T) {
	h := setupTest(t)
	id := seedCard(t, h, "Warden")

	rec := serve("POST /cards/{id}/delete", h.HandleDelete, httptest.NewRequest("POST", "/cards/"+id+"/delete", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/cards" {
		t.Errorf("status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHandleDelete_HtmxRequest(t *testing.T) {
	h := setupTest(t)
	id := seedCard(t, h, "Warden")

	req := httptest.NewRequest("DELETE", "/cards/"+id, nil)
	req.Header.Set("HX-Request", "true")
	rec := serve("DELETE /cards/{id}", h.HandleDelete, req)

	if rec.Header().Get("HX-Redirect") != "/cards" {
		t.Errorf("HX-Redirect = %q, want /cards", rec.Header().Get("HX-Redirect"))
	}
}

func TestHandleDelete_NotFound_JSON(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("DELETE", "/cards/01NOPE", nil)
	req.Header.Set("Accept", "application/json")
	rec := serve("DELETE /cards/{id}", h.HandleDelete, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var payload map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"]["code"] != "NOT_FOUND" {
		t.Errorf("code = %v, want NOT_FOUND", payload["error"]["code"])
	}
}

// --- HandlePurge ---

func TestHandlePurge_MissingConfirm(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("POST", "/cards/purge", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandlePurge(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePurge_InvalidOlderThanDays(t *testing.T) {
	h := setupTest(t)

	form := url.Values{"confirm": {"true"}, "older_than_days": {"soon"}}
	req := httptest.NewRequest("POST", "/cards/purge", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandlePurge(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePurge_JSONResponse(t *testing.T) {
	h := setupTest(t)
	id := seedCard(t, h, "Warden")
	if _, err := ops.Delete(context.Background(), h.db, ops.DeleteInput{ID: id}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	form := url.Values{"confirm": {"true"}}
	req := httptest.NewRequest("POST", "/cards/purge", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandlePurge(rec, req)

	var out ops.PurgeOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Purged != 1 {
		t.Errorf("purged = %d, want 1", out.Purged)
	}
}

func TestHandlePurge_DefaultRedirect(t *testing.T) {
	h := setupTest(t)

	form := url.Values{"confirm": {"true"}}
	req := httptest.NewRequest("POST", "/cards/purge", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandlePurge(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", rec.Code)
	}
}

// --- Rendering helpers ---

func TestErrorRendering_HtmxFragment(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/cards/01NOPE", nil)
	req.Header.Set("HX-Request", "true")
	rec := serve("GET /cards/{id}", h.HandleDetail, req)

	body := rec.Body.String()
	if !strings.Contains(body, `class="error-message"`) || strings.Contains(body, "<html") {
		t.Errorf("expected error fragment, got:\n%s", body)
	}
}

func TestServer_SecurityHeadersAndStatic(t *testing.T) {
	h := setupTest(t)
	srv, err := NewServer(h.db, h.cfg, "test", "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("static status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/cards" {
		t.Errorf("root: status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestFormatBytes(t *testing.T) {
	if got := formatBytes(0); got != "-" {
		t.Errorf("formatBytes(0) = %q, want -", got)
	}
	if got := formatBytes(1500); got != "1.5 kB" {
		t.Errorf("formatBytes(1500) = %q, want 1.5 kB", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	if got := renderMarkdown("   "); got != "" {
		t.Errorf("blank input rendered %q", got)
	}
	if got := string(renderMarkdown("*hi*")); !strings.Contains(got, "<em>hi</em>") {
		t.Errorf("renderMarkdown = %q", got)
	}
}

func TestParseIntParam(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=5&bad=x", nil)
	if got := parseIntParam(req, "limit", 20); got != 5 {
		t.Errorf("limit = %d, want 5", got)
	}
	if got := parseIntParam(req, "bad", 20); got != 20 {
		t.Errorf("bad = %d, want default 20", got)
	}
	if got := parseIntParam(req, "missing", 7); got != 7 {
		t.Errorf("missing = %d, want default 7", got)
	}
}

func TestParseBoolParam(t *testing.T) {
	req := httptest.NewRequest("GET", "/?a=true&b=1&c=yes", nil)
	if !parseBoolParam(req, "a") || !parseBoolParam(req, "b") || parseBoolParam(req, "c") {
		t.Error("parseBoolParam accepts only true and 1")
	}
}
