package ops

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hpungsan/cardforge/internal/config"
	"github.com/hpungsan/cardforge/internal/errors"
)

// readableExts are the file extensions card reads accept.
var readableExts = map[string]bool{
	".json":   true,
	".png":    true,
	".charx":  true,
	".zip":    true,
	".voxpkg": true,
}

// readCardFile reads a card file without following a final-component symlink. The
// file is capped at the larger archive total limit; an oversize file is rejected
// before it is fully buffered.
func readCardFile(path string, cfg *config.Config) ([]byte, error) {
	if containsTraversal(path) {
		return nil, errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !readableExts[ext] {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported card file extension %q", ext))
	}

	f, err := openFileNoFollowRead(filepath.Clean(path))
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open card file: %w", err))
	}
	defer f.Close()

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	limit := max(cfg.CharX.MaxTotalSize, cfg.Voxta.MaxTotalSize)

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read card file: %w", err))
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errors.NewSizeLimitExceeded("file", path, limit, int64(len(data)))
	}
	return data, nil
}
