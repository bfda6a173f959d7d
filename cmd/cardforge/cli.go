package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/library"
	"github.com/hpungsan/cardforge/internal/ops"
	"github.com/hpungsan/cardforge/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "cardforge",
		Usage:   "Read, convert and store character cards",
		Version: Version,
		Commands: []*cli.Command{
			inspectCmd(cfg),
			validateCmd(cfg),
			convertCmd(cfg),
			importCmd(db, cfg),
			fetchCmd(db),
			listCmd(db),
			deleteCmd(db),
			purgeCmd(db),
			exportCmd(db, cfg),
			serveCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// filenameFlag names stdin input so the parser can use its extension.
var filenameFlag = &cli.StringFlag{Name: "filename", Usage: "Filename hint when reading the card from stdin (-)"}

// inspectCmd creates the inspect command.
func inspectCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show what a card file contains",
		ArgsUsage: "<path|->",
		Flags: []cli.Flag{
			filenameFlag,
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "json", Usage: "Output format: json|yaml"},
			&cli.BoolFlag{Name: "card", Usage: "Include the full card document"},
			&cli.BoolFlag{Name: "html", Usage: "Render description and creator notes to HTML"},
		},
		Action: func(c *cli.Context) error {
			src, err := sourceArg(c, cfg)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Inspect(c.Context, cfg, ops.InspectInput{
				Source:      src,
				IncludeCard: c.Bool("card"),
				RenderHTML:  c.Bool("html"),
			})
			if err != nil {
				return outputError(err)
			}

			switch c.String("output") {
			case "json":
				return outputJSON(output)
			case "yaml":
				return outputYAML(output)
			default:
				return outputError(errors.NewInvalidRequest("output must be json or yaml"))
			}
		},
	}
}

// validateCmd creates the validate command. An invalid card exits non-zero after
// printing the report.
func validateCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check that a card file parses and its assets resolve",
		ArgsUsage: "<path|->",
		Flags:     []cli.Flag{filenameFlag},
		Action: func(c *cli.Context) error {
			src, err := sourceArg(c, cfg)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Validate(c.Context, cfg, ops.ValidateInput{Source: src})
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(output); err != nil {
				return err
			}
			if !output.Valid {
				return cli.Exit(fmt.Sprintf("[%s] %s", output.ErrorCode, output.ErrorMessage), 1)
			}
			return nil
		},
	}
}

// convertCmd creates the convert command.
func convertCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert a card file to another format",
		ArgsUsage: "<path|->",
		Flags: []cli.Flag{
			filenameFlag,
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "Output path; its extension picks the format"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: json|png|charx|voxpkg (must match --out)"},
		},
		Action: func(c *cli.Context) error {
			src, err := sourceArg(c, cfg)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Convert(c.Context, cfg, ops.ConvertInput{
				Source:  src,
				OutPath: c.String("out"),
				Format:  c.String("format"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Store a card file in the library",
		ArgsUsage: "<path|->",
		Flags: []cli.Flag{
			filenameFlag,
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Library name (defaults to the card's name)"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			src, err := sourceArg(c, cfg)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Import(c.Context, db, cfg, ops.ImportInput{
				Source: src,
				Name:   c.String("name"),
				Mode:   ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a library card by ID or name",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Card name"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted cards"},
			&cli.BoolFlag{Name: "no-card", Usage: "Exclude the card document from output"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FetchInput{
				IncludeDeleted: c.Bool("include-deleted"),
			}

			// Check for positional ID argument
			if c.NArg() > 0 {
				input.ID = c.Args().First()
			} else {
				input.Name = c.String("name")
			}

			if c.Bool("no-card") {
				includeCard := false
				input.IncludeCard = &includeCard
			}

			output, err := ops.Fetch(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List library cards",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tag", Usage: "Filter by tag"},
			&cli.StringFlag{Name: "spec", Usage: "Filter by spec: v2|v3"},
			&cli.StringFlag{Name: "format", Usage: "Filter by source format: json|png|charx|voxta"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Usage: "Number of items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted cards"},
			&cli.BoolFlag{Name: "table", Aliases: []string{"t"}, Usage: "Print a table instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, db, ops.ListInput{
				Tag:            c.String("tag"),
				Spec:           c.String("spec"),
				Format:         c.String("format"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("table") {
				renderListTable(os.Stdout, output, time.Now())
				return nil
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a library card",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Card name"},
		},
		Action: func(c *cli.Context) error {
			input := ops.DeleteInput{}

			// Check for positional ID argument
			if c.NArg() > 0 {
				input.ID = c.Args().First()
			} else {
				input.Name = c.String("name")
			}

			output, err := ops.Delete(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted cards",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}

			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a library card to a file",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Card name"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: json|png|charx|voxpkg (default: from --path, else the imported format)"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.cardforge/exports/<name>-<timestamp>.<ext>)"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted cards"},
		},
		Action: func(c *cli.Context) error {
			input := ops.ExportInput{
				Format:         c.String("format"),
				Path:           c.String("path"),
				IncludeDeleted: c.Bool("include-deleted"),
			}

			// Check for positional ID argument
			if c.NArg() > 0 {
				input.ID = c.Args().First()
			} else {
				input.Name = c.String("name")
			}

			output, err := ops.Export(c.Context, db, cfg, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse the library in a local web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8484, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(db, cfg, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv); err != nil && err != http.ErrServerClosed {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// sourceArg reads the card source from the first argument. "-" reads the card
// bytes from stdin.
func sourceArg(c *cli.Context, cfg *config.Config) (ops.Source, error) {
	path := c.Args().First()
	if path == "" {
		return ops.Source{}, errors.NewInvalidRequest("card file path is required (use - for stdin)")
	}
	if path != "-" {
		return ops.Source{Path: path}, nil
	}

	data, err := readStdin(maxStdinBytes(cfg))
	if err != nil {
		return ops.Source{}, err
	}
	return ops.Source{Data: data, Filename: c.String("filename")}, nil
}

// maxStdinBytes is the larger of the container size caps.
func maxStdinBytes(cfg *config.Config) int64 {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return max(cfg.CharX.MaxTotalSize, cfg.Voxta.MaxTotalSize)
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputYAML writes result to stdout as YAML, keyed by the JSON field names.
func outputYAML(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return outputError(errors.NewInternal(err))
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return outputError(errors.NewInternal(err))
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// renderListTable prints one row per card.
func renderListTable(w io.Writer, output *ops.ListOutput, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Spec", "Format", "Tags", "Tokens", "Image", "Assets", "Updated"})
	for _, s := range output.Items {
		t.AppendRow(table.Row{
			s.ID,
			listName(s),
			s.Spec,
			s.SourceFormat,
			strings.Join(s.Tags, ", "),
			humanize.Comma(int64(s.TokensEstimate)),
			imageSize(s),
			s.AssetCount,
			humanize.RelTime(time.Unix(s.UpdatedAt, 0), now, "ago", "from now"),
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d", len(output.Items), output.Pagination.Total)})
	t.Render()
}

func listName(s library.Summary) string {
	if s.DeletedAt != nil {
		return s.Name + " (deleted)"
	}
	return s.Name
}

func imageSize(s library.Summary) string {
	if !s.HasImage {
		return "-"
	}
	return humanize.Bytes(uint64(s.ImageBytes))
}

// outputError formats error for CLI.
func outputError(err error) error {
	if cardErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", cardErr.Code, cardErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readStdin reads all of stdin, failing if it exceeds limit bytes.
func readStdin(limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return nil, errors.NewSizeLimitExceeded("stdin", "", limit, int64(len(data)))
	}
	if len(data) == 0 {
		return nil, errors.NewInvalidRequest("stdin is empty")
	}
	return data, nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
