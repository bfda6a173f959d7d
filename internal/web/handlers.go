package web

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/cardforge/internal/card"
	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// exportFormats are offered as download links on the detail page.
var exportFormats = []ops.ExportFormat{ops.ExportJSON, ops.ExportPNG, ops.ExportCharX, ops.ExportVoxpkg}

// HandleList handles GET /cards: list library cards.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := ops.ListInput{
		Tag:            q.Get("tag"),
		Spec:           q.Get("spec"),
		Format:         q.Get("format"),
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}

	result, err := ops.List(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Cards",
			Version: h.renderer.version,
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Tag:        input.Tag,
		Spec:       input.Spec,
		Format:     input.Format,
		Deleted:    input.IncludeDeleted,
	})
}

// HandleDetail handles GET /cards/{id}: view a single card.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("card ID is required"))
		return
	}

	out, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{
		ID:             id,
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	c, err := card.Detect(out.Card)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	d := c.Common()
	lore := 0
	if d.CharacterBook != nil {
		lore = len(d.CharacterBook.Entries)
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   out.Name,
			Version: h.renderer.version,
		},
		Card:             out,
		Data:             d,
		DescriptionHTML:  renderMarkdown(d.Description),
		CreatorNotesHTML: renderMarkdown(d.CreatorNotes),
		LoreEntries:      lore,
		Formats:          exportFormats,
	})
}

// HandleImage handles GET /cards/{id}/image: serve the stored portrait.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := ops.MainImage(r.Context(), h.db, r.PathValue("id"), true)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleDownload handles GET /cards/{id}/download?format=: encode and send a card.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Render(r.Context(), h.db, h.cfg, ops.RenderInput{
		ID:             r.PathValue("id"),
		Format:         r.URL.Query().Get("format"),
		IncludeDeleted: true,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	for _, warning := range out.Warnings {
		log.Warn().Str("id", out.ID).Str("format", string(out.Format)).Msg(warning)
	}

	w.Header().Set("Content-Type", contentTypeFor(out.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

// HandleDelete handles DELETE /cards/{id} and POST /cards/{id}/delete: soft-delete a card.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("card ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/cards")
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/cards", http.StatusSeeOther)
}

// HandlePurge handles POST /cards/purge: permanently delete soft-deleted cards.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	input := ops.PurgeInput{}
	if days := r.FormValue("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/cards?include_deleted=true", http.StatusSeeOther)
}

// contentTypeFor maps an export format to its response content type.
func contentTypeFor(f ops.ExportFormat) string {
	switch f {
	case ops.ExportJSON:
		return "application/json"
	case ops.ExportPNG:
		return "image/png"
	}
	return "application/zip"
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
