package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Source arguments shared by the tools that read a card file.
func sourceOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("path", mcp.Description("Card file path (.json, .png, .charx, .zip, .voxpkg); must be directly in an allowed directory")),
		mcp.WithString("data_base64", mcp.Description("Card file bytes, base64 encoded; alternative to path")),
		mcp.WithString("filename", mcp.Description("Filename hint for data_base64; only the extension is used")),
	}
}

func addressOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("id", mcp.Description("Library card ID (ULID); exclusive with name")),
		mcp.WithString("name", mcp.Description("Library card name, case-insensitive; exclusive with id")),
	}
}

func newTool(name, description string, groups ...[]mcp.ToolOption) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, g := range groups {
		opts = append(opts, g...)
	}
	return mcp.NewTool(name, opts...)
}

var inspectToolDef = newTool("card_inspect",
	"Parse a character card file (PNG, CharX, Voxta or JSON) and report its format, spec, metadata, token counts and assets.",
	sourceOptions(),
	[]mcp.ToolOption{
		mcp.WithBoolean("include_card", mcp.Description("Include the full card document")),
		mcp.WithBoolean("render_html", mcp.Description("Render description and creator notes from markdown to HTML")),
	},
)

var validateToolDef = newTool("card_validate",
	"Check that a card file parses and that every embedded asset it declares is present.",
	sourceOptions(),
)

var importToolDef = newTool("card_import",
	"Parse a card file and store it, with its image and assets, in the card library.",
	sourceOptions(),
	[]mcp.ToolOption{
		mcp.WithString("name", mcp.Description("Library name; default: the card's name")),
		mcp.WithString("mode", mcp.Description("Name collision behavior"), mcp.Enum("error", "replace", "rename")),
	},
)

var fetchToolDef = newTool("card_fetch",
	"Get a library card with its document and asset list.",
	addressOptions(),
	[]mcp.ToolOption{
		mcp.WithBoolean("include_deleted", mcp.Description("Also match soft-deleted cards")),
		mcp.WithBoolean("include_card", mcp.Description("Include the card document (default true)")),
	},
)

var listToolDef = newTool("card_list",
	"List library cards, most recently updated first.",
	[]mcp.ToolOption{
		mcp.WithString("tag", mcp.Description("Only cards with this tag (case-insensitive)")),
		mcp.WithString("spec", mcp.Description("Only cards of this spec"), mcp.Enum("v2", "v3")),
		mcp.WithString("format", mcp.Description("Only cards imported from this format"), mcp.Enum("json", "png", "charx", "voxta")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
		mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted cards")),
	},
)

var deleteToolDef = newTool("card_delete",
	"Soft-delete a library card. It can still be fetched with include_deleted until purged.",
	addressOptions(),
)

var purgeToolDef = newTool("card_purge",
	"Permanently remove soft-deleted cards and their assets.",
	[]mcp.ToolOption{
		mcp.WithNumber("older_than_days", mcp.Description("Only purge cards deleted more than N days ago")),
	},
)

var exportToolDef = newTool("card_export",
	"Write a library card to a file as JSON, PNG, CharX or Voxta package.",
	addressOptions(),
	[]mcp.ToolOption{
		mcp.WithString("format", mcp.Description("Output format; default: from path, else the format it was imported from"), mcp.Enum("json", "png", "charx", "voxpkg")),
		mcp.WithString("path", mcp.Description("Output path; default: ~/.cardforge/exports/<name>-<timestamp>.<ext>")),
		mcp.WithBoolean("include_deleted", mcp.Description("Also match soft-deleted cards")),
	},
)

var convertToolDef = newTool("card_convert",
	"Convert a card file to another format without storing it.",
	sourceOptions(),
	[]mcp.ToolOption{
		mcp.WithString("out_path", mcp.Required(), mcp.Description("Output path; its extension picks the format")),
		mcp.WithString("format", mcp.Description("Output format; must match out_path's extension"), mcp.Enum("json", "png", "charx", "voxpkg")),
	},
)
