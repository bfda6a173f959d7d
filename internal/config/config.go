package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/hpungsan/cardforge/internal/archive"
	"github.com/hpungsan/cardforge/internal/charx"
	"github.com/hpungsan/cardforge/internal/uri"
	"github.com/hpungsan/cardforge/internal/voxta"
)

// DirName is the per-user and per-repo configuration directory name.
const DirName = ".cardforge"

// Limits caps archive reads. Zero fields inherit from the layer below.
type Limits struct {
	MaxJSONSize  int64 `json:"max_json_size,omitempty"`
	MaxAssetSize int64 `json:"max_asset_size,omitempty"`
	MaxTotalSize int64 `json:"max_total_size,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// CharX and Voxta cap ZIP decompression per container format.
	CharX Limits `json:"charx,omitempty"`
	Voxta Limits `json:"voxta,omitempty"`

	// AllowHTTPAssets lets plain http:// asset references be followed.
	AllowHTTPAssets bool `json:"allow_http_assets,omitempty"`

	// AllowFileAssets lets file:// asset references be followed.
	AllowFileAssets bool `json:"allow_file_assets,omitempty"`

	// FetchRemoteAssets downloads http(s) assets while reading CharX files.
	FetchRemoteAssets bool `json:"fetch_remote_assets,omitempty"`

	// FetchConcurrency is the remote fetch batch size.
	FetchConcurrency int `json:"fetch_concurrency,omitempty"`

	// FetchTimeoutSeconds bounds a single remote download.
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds,omitempty"`

	// CompressionLevel is the deflate level for written archives, 0 stores.
	// Nil means charx.DefaultBuildOptions.
	CompressionLevel *int `json:"compression_level,omitempty"`

	// AllowedPaths lists the directories MCP clients may read card files from and
	// export or convert into, besides ~/.cardforge/exports. Relative entries are ignored.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths lets card reads and export destinations sit in any directory.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 1 serializes all access. 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// LogLevel is a zerolog level name.
	LogLevel string `json:"log_level,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	level := charx.DefaultBuildOptions().CompressionLevel
	return &Config{
		CharX: Limits{
			MaxJSONSize:  charx.DefaultMaxJSONSize,
			MaxAssetSize: charx.DefaultMaxAssetSize,
			MaxTotalSize: charx.DefaultMaxTotalSize,
		},
		Voxta: Limits{
			MaxJSONSize:  voxta.DefaultMaxJSONSize,
			MaxAssetSize: voxta.DefaultMaxAssetSize,
			MaxTotalSize: voxta.DefaultMaxTotalSize,
		},
		FetchConcurrency:    charx.DefaultFetchConcurrency,
		FetchTimeoutSeconds: 30,
		CompressionLevel:    &level,
		LogLevel:            "info",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.cardforge) and repo (.cardforge) directories.
// Repo config is found by walking upward from startDir to find the nearest .cardforge/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// LoadAll is LoadWithRepo followed by environment overrides.
func LoadAll(globalDir, startDir string) (*Config, error) {
	cfg, err := LoadWithRepo(globalDir, startDir)
	if err != nil {
		return nil, err
	}
	env, err := FromEnv()
	if err != nil {
		return nil, err
	}
	return Merge(cfg, env), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .cardforge/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// envConfig mirrors Config for envconfig. Tags carry the full variable name so that
// envconfig never falls back to unprefixed names like LOG_LEVEL. CompressionLevel is a
// pointer so that 0 can be set.
type envConfig struct {
	CharXMaxJSONSize    int64    `envconfig:"CARDFORGE_CHARX_MAX_JSON_SIZE"`
	CharXMaxAssetSize   int64    `envconfig:"CARDFORGE_CHARX_MAX_ASSET_SIZE"`
	CharXMaxTotalSize   int64    `envconfig:"CARDFORGE_CHARX_MAX_TOTAL_SIZE"`
	VoxtaMaxJSONSize    int64    `envconfig:"CARDFORGE_VOXTA_MAX_JSON_SIZE"`
	VoxtaMaxAssetSize   int64    `envconfig:"CARDFORGE_VOXTA_MAX_ASSET_SIZE"`
	VoxtaMaxTotalSize   int64    `envconfig:"CARDFORGE_VOXTA_MAX_TOTAL_SIZE"`
	AllowHTTPAssets     bool     `envconfig:"CARDFORGE_ALLOW_HTTP_ASSETS"`
	AllowFileAssets     bool     `envconfig:"CARDFORGE_ALLOW_FILE_ASSETS"`
	FetchRemoteAssets   bool     `envconfig:"CARDFORGE_FETCH_REMOTE_ASSETS"`
	FetchConcurrency    int      `envconfig:"CARDFORGE_FETCH_CONCURRENCY"`
	FetchTimeoutSeconds int      `envconfig:"CARDFORGE_FETCH_TIMEOUT_SECONDS"`
	CompressionLevel    *int     `envconfig:"CARDFORGE_COMPRESSION_LEVEL"`
	AllowedPaths        []string `envconfig:"CARDFORGE_ALLOWED_PATHS"`
	AllowUnsafePaths    bool     `envconfig:"CARDFORGE_ALLOW_UNSAFE_PATHS"`
	DBMaxOpenConns      int      `envconfig:"CARDFORGE_DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns      int      `envconfig:"CARDFORGE_DB_MAX_IDLE_CONNS"`
	DisabledTools       []string `envconfig:"CARDFORGE_DISABLED_TOOLS"`
	LogLevel            string   `envconfig:"CARDFORGE_LOG_LEVEL"`
}

// FromEnv reads CARDFORGE_* variables into an overlay config. Unset variables stay zero.
func FromEnv() (*Config, error) {
	var env envConfig
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}
	return &Config{
		CharX:               Limits{env.CharXMaxJSONSize, env.CharXMaxAssetSize, env.CharXMaxTotalSize},
		Voxta:               Limits{env.VoxtaMaxJSONSize, env.VoxtaMaxAssetSize, env.VoxtaMaxTotalSize},
		AllowHTTPAssets:     env.AllowHTTPAssets,
		AllowFileAssets:     env.AllowFileAssets,
		FetchRemoteAssets:   env.FetchRemoteAssets,
		FetchConcurrency:    env.FetchConcurrency,
		FetchTimeoutSeconds: env.FetchTimeoutSeconds,
		CompressionLevel:    env.CompressionLevel,
		AllowedPaths:        env.AllowedPaths,
		AllowUnsafePaths:    env.AllowUnsafePaths,
		DBMaxOpenConns:      env.DBMaxOpenConns,
		DBMaxIdleConns:      env.DBMaxIdleConns,
		DisabledTools:       env.DisabledTools,
		LogLevel:            env.LogLevel,
	}, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		CharX:               mergeLimits(base.CharX, overlay.CharX),
		Voxta:               mergeLimits(base.Voxta, overlay.Voxta),
		FetchConcurrency:    orInt(overlay.FetchConcurrency, base.FetchConcurrency),
		FetchTimeoutSeconds: orInt(overlay.FetchTimeoutSeconds, base.FetchTimeoutSeconds),
		DBMaxOpenConns:      orInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:      orInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		LogLevel:            overlay.LogLevel,
	}
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}

	// Level 0 is meaningful, so presence rather than zero decides.
	result.CompressionLevel = overlay.CompressionLevel
	if result.CompressionLevel == nil {
		result.CompressionLevel = base.CompressionLevel
	}

	// Booleans: overlay wins if true, else base
	result.AllowHTTPAssets = base.AllowHTTPAssets || overlay.AllowHTTPAssets
	result.AllowFileAssets = base.AllowFileAssets || overlay.AllowFileAssets
	result.FetchRemoteAssets = base.FetchRemoteAssets || overlay.FetchRemoteAssets
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// Safety returns the URI scheme opt-ins.
func (c *Config) Safety() uri.SafetyOptions {
	return uri.SafetyOptions{AllowHTTP: c.AllowHTTPAssets, AllowFile: c.AllowFileAssets}
}

// CharXLimits returns the CharX read caps.
func (c *Config) CharXLimits() archive.Limits {
	return archive.Limits(c.CharX)
}

// VoxtaLimits returns the Voxta read caps.
func (c *Config) VoxtaLimits() archive.Limits {
	return archive.Limits(c.Voxta)
}

// FetchTimeout returns the per-download timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Level returns the archive compression level.
func (c *Config) Level() int {
	if c.CompressionLevel == nil {
		return charx.DefaultBuildOptions().CompressionLevel
	}
	return *c.CompressionLevel
}

func mergeLimits(base, overlay Limits) Limits {
	return Limits{
		MaxJSONSize:  orInt(overlay.MaxJSONSize, base.MaxJSONSize),
		MaxAssetSize: orInt(overlay.MaxAssetSize, base.MaxAssetSize),
		MaxTotalSize: orInt(overlay.MaxTotalSize, base.MaxTotalSize),
	}
}

func orInt[T int | int64](overlay, base T) T {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
