package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/cardforge/internal/charx"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CharX.MaxTotalSize != charx.DefaultMaxTotalSize {
		t.Fatalf("CharX.MaxTotalSize = %d, want %d", cfg.CharX.MaxTotalSize, charx.DefaultMaxTotalSize)
	}
	if cfg.FetchConcurrency != 5 {
		t.Fatalf("FetchConcurrency = %d, want 5", cfg.FetchConcurrency)
	}
	if cfg.Level() != 6 {
		t.Fatalf("Level() = %d, want 6", cfg.Level())
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"charx": {"max_total_size": 1024}, "compression_level": 0, "allow_http_assets": true}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CharX.MaxTotalSize != 1024 {
		t.Fatalf("CharX.MaxTotalSize = %d, want 1024", cfg.CharX.MaxTotalSize)
	}
	if cfg.CharX.MaxAssetSize != charx.DefaultMaxAssetSize {
		t.Fatalf("CharX.MaxAssetSize = %d, want default", cfg.CharX.MaxAssetSize)
	}
	if cfg.Level() != 0 {
		t.Fatalf("Level() = %d, want 0 (store)", cfg.Level())
	}
	if !cfg.Safety().AllowHTTP || cfg.Safety().AllowFile {
		t.Fatalf("Safety() = %+v, want http only", cfg.Safety())
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["card_delete", "card_import"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "card_delete" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "card_delete")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"fetch_concurrency": 8, "disabled_tools": ["card_delete"]}`)
	writeConfig(t, filepath.Join(repoRoot, DirName), `{"fetch_concurrency": 2, "disabled_tools": ["card_import"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.FetchConcurrency != 2 {
		t.Errorf("FetchConcurrency = %d, want 2 (repo override)", cfg.FetchConcurrency)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.FetchTimeoutSeconds != 30 {
		t.Errorf("FetchTimeoutSeconds = %d, want 30", cfg.FetchTimeoutSeconds)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, DirName), `{"voxta": {"max_json_size": 99}}`)

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if got := cfg.VoxtaLimits().MaxJSONSize; got != 99 {
		t.Errorf("VoxtaLimits().MaxJSONSize = %d, want 99", got)
	}
}

func TestLoadAll_EnvOverrides(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, globalDir, `{"compression_level": 9, "log_level": "warn"}`)

	t.Setenv("CARDFORGE_COMPRESSION_LEVEL", "0")
	t.Setenv("CARDFORGE_CHARX_MAX_TOTAL_SIZE", "4096")
	t.Setenv("CARDFORGE_FETCH_REMOTE_ASSETS", "true")
	t.Setenv("CARDFORGE_DISABLED_TOOLS", "card_delete,card_export")

	cfg, err := LoadAll(globalDir, t.TempDir())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if cfg.Level() != 0 {
		t.Errorf("Level() = %d, want 0 (env)", cfg.Level())
	}
	if cfg.CharXLimits().MaxTotalSize != 4096 {
		t.Errorf("CharXLimits().MaxTotalSize = %d, want 4096", cfg.CharXLimits().MaxTotalSize)
	}
	if !cfg.FetchRemoteAssets {
		t.Error("FetchRemoteAssets should be true")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (file, env unset)", cfg.LogLevel)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want 2 entries", cfg.DisabledTools)
	}
}

func TestLoadAll_BadEnv(t *testing.T) {
	t.Setenv("CARDFORGE_FETCH_CONCURRENCY", "many")
	if _, err := LoadAll(t.TempDir(), t.TempDir()); err == nil {
		t.Fatal("LoadAll() expected error for non-numeric env value")
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{FetchConcurrency: 5, DBMaxOpenConns: 5}
	overlay := &Config{FetchConcurrency: 3}

	result := Merge(base, overlay)

	if result.FetchConcurrency != 3 {
		t.Errorf("FetchConcurrency = %d, want 3 (overlay)", result.FetchConcurrency)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{FetchRemoteAssets: true})

	if !result.AllowUnsafePaths || !result.FetchRemoteAssets {
		t.Error("booleans should be base OR overlay")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"card_delete", "card_import"}}
	overlay := &Config{DisabledTools: []string{" card_import ", "card_export"}}

	result := Merge(base, overlay)

	if len(result.DisabledTools) != 3 {
		t.Errorf("DisabledTools = %v, want 3 (merged, deduped)", result.DisabledTools)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}
