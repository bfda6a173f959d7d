package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
)

// PathCheckMode tells ValidatePath whether the path is a card source or a destination.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // card file handed to inspect, validate, import or convert
	PathCheckWrite                      // export or convert output
)

// exportsSubdir is the default destination under ~/.cardforge.
const exportsSubdir = "exports"

// ValidatePath applies the card path policy:
//
//   - no ".." components
//   - a card extension (.json, .png, .charx, .voxpkg; reads also accept .zip)
//   - the file sits directly in ~/.cardforge/exports or an allowed_paths entry
//   - neither the file nor its parent directory is a symlink
//
// Subdirectories of an allowed directory are refused so no intermediate component can
// be swapped for a symlink between the check and the O_NOFOLLOW open. AllowUnsafePaths
// lifts the directory rule only.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if err := checkCardExt(cleaned, mode); err != nil {
		return err
	}
	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		dirs, err := allowedDirs(cfg)
		if err != nil {
			return err
		}
		parent := filepath.Dir(absPath)
		if !isDirectlyInAllowedDir(parent, dirs) {
			return errors.NewInvalidRequest(
				fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v", dirs))
		}
		if isSymlink(parent) {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(absPath) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// checkCardExt accepts any readable card extension for reads and only the export
// formats for writes.
func checkCardExt(path string, mode PathCheckMode) error {
	ext := strings.ToLower(filepath.Ext(path))
	if mode == PathCheckWrite {
		if _, ok := FormatForExt(ext); !ok {
			return errors.NewInvalidRequest("path must have one of the extensions .json, .png, .charx, .voxpkg")
		}
		return nil
	}
	if !readableExts[ext] {
		return errors.NewInvalidRequest(fmt.Sprintf("unsupported card file extension %q", ext))
	}
	return nil
}

func isSymlink(p string) bool {
	info, err := os.Lstat(p)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// allowedDirs returns the exports dir plus every absolute allowed_paths entry. A
// symlinked entry is resolved so it matches its real target.
func allowedDirs(cfg *config.Config) ([]string, error) {
	exports, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}
	dirs := []string{exports}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, p)
			}
		}
	}

	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if isSymlink(abs) {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		out = append(out, abs)
	}
	return out, nil
}

// isDirectlyInAllowedDir reports whether parentDir is one of dirs exactly.
func isDirectlyInAllowedDir(parentDir string, dirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range dirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// DefaultExportsDir returns ~/.cardforge/exports, where exports land when no path is given.
func DefaultExportsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(homeDir, config.DirName, exportsSubdir), nil
}

// containsTraversal reports whether any path component is "..". Forward slashes are
// split on every platform since paths arrive from MCP clients as well as the shell.
func containsTraversal(path string) bool {
	split := func(r rune) bool { return r == '/' || r == filepath.Separator }
	for _, part := range strings.FieldsFunc(path, split) {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename turns a card name into a safe file stem. Separators and ".."
// become dashes, control characters are dropped, and an empty result becomes "unnamed".
func SanitizeForFilename(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", "..", "-")
	name = replacer.Replace(name)

	name = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, name)

	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	name = strings.Trim(name, "-")
	if name == "" {
		return "unnamed"
	}
	return name
}
