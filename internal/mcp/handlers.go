package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/cardforge/internal/binutil"
	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg}
}

// Request types for each tool

// SourceRequest identifies a card file by path or inline bytes.
type SourceRequest struct {
	Path       string `json:"path,omitempty"`
	DataBase64 string `json:"data_base64,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// InspectRequest represents the arguments for card_inspect.
type InspectRequest struct {
	SourceRequest
	IncludeCard bool `json:"include_card,omitempty"`
	RenderHTML  bool `json:"render_html,omitempty"`
}

// ValidateRequest represents the arguments for card_validate.
type ValidateRequest struct {
	SourceRequest
}

// ImportRequest represents the arguments for card_import.
type ImportRequest struct {
	SourceRequest
	Name string `json:"name,omitempty"`
	Mode string `json:"mode,omitempty"`
}

// FetchRequest represents the arguments for card_fetch.
type FetchRequest struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	IncludeCard    *bool  `json:"include_card,omitempty"`
}

// ListRequest represents the arguments for card_list.
type ListRequest struct {
	Tag            string `json:"tag,omitempty"`
	Spec           string `json:"spec,omitempty"`
	Format         string `json:"format,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// DeleteRequest represents the arguments for card_delete.
type DeleteRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// PurgeRequest represents the arguments for card_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// ExportRequest represents the arguments for card_export.
type ExportRequest struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	Format         string `json:"format,omitempty"`
	Path           string `json:"path,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ConvertRequest represents the arguments for card_convert.
type ConvertRequest struct {
	SourceRequest
	OutPath string `json:"out_path"`
	Format  string `json:"format,omitempty"`
}

// source maps the request onto an ops source. Paths are always checked
// against the allowed directories.
func (r SourceRequest) source() (ops.Source, error) {
	src := ops.Source{
		Path:      r.Path,
		Filename:  r.Filename,
		CheckPath: true,
	}
	if r.DataBase64 != "" {
		data, err := binutil.DecodeBase64(r.DataBase64)
		if err != nil {
			return ops.Source{}, errors.NewInvalidRequest("data_base64 is not valid base64")
		}
		src.Data = data
	}
	return src, nil
}

// Handler implementations

// HandleInspect handles the card_inspect tool call.
func (h *Handlers) HandleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InspectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	src, err := input.source()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Inspect(ctx, h.cfg, ops.InspectInput{
		Source:      src,
		IncludeCard: input.IncludeCard,
		RenderHTML:  input.RenderHTML,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleValidate handles the card_validate tool call.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ValidateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	src, err := input.source()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Validate(ctx, h.cfg, ops.ValidateInput{Source: src})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the card_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	src, err := input.source()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
		Source: src,
		Name:   input.Name,
		Mode:   ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the card_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.db, ops.FetchInput{
		ID:             input.ID,
		Name:           input.Name,
		IncludeDeleted: input.IncludeDeleted,
		IncludeCard:    input.IncludeCard,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the card_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		Tag:            input.Tag,
		Spec:           input.Spec,
		Format:         input.Format,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the card_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.db, ops.DeleteInput{
		ID:   input.ID,
		Name: input.Name,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the card_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(ctx, h.db, ops.PurgeInput{
		OlderThanDays: input.OlderThanDays,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the card_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		ID:             input.ID,
		Name:           input.Name,
		Format:         input.Format,
		Path:           input.Path,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleConvert handles the card_convert tool call.
func (h *Handlers) HandleConvert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConvertRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	src, err := input.source()
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Convert(ctx, h.cfg, ops.ConvertInput{
		Source:  src,
		OutPath: input.OutPath,
		Format:  input.Format,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if cardErr, ok := errors.As(err); ok {
		// Keep wrapper context ("x: CODE: msg" -> "x: msg")
		msg := cardErr.Message
		if prefix, found := strings.CutSuffix(err.Error(), cardErr.Error()); found {
			msg = prefix + cardErr.Message
		}
		errorObj := map[string]any{
			"code":    cardErr.Code,
			"message": msg,
			"status":  cardErr.Status,
		}
		if cardErr.Code != errors.ErrInternal && cardErr.Details != nil {
			errorObj["details"] = cardErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
