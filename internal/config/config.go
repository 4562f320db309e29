package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/coderag/internal/chunk"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
)

const (
	// ProjectConfigName is the per-repository config file.
	ProjectConfigName = ".coderag.yaml"
	// EnvPrefix prefixes every environment override (CODERAG_DENSE_WEIGHT, ...).
	EnvPrefix = "CODERAG"
	// DefaultDataDir holds the corpus and vector files, relative to the project root.
	DefaultDataDir = ".coderag"
	// TransportStdio is the only supported MCP transport.
	TransportStdio = "stdio"
)

// Config represents the complete coderag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures which files are indexed.
type PathsConfig struct {
	Include    []string `yaml:"include" json:"include"`
	Exclude    []string `yaml:"exclude" json:"exclude"`
	Extensions []string `yaml:"extensions" json:"extensions"`
}

// SearchConfig configures ensemble retrieval.
// Weights are used when a caller does not supply explicit ones and does not
// ask for adaptive weighting. They must sum to 1.0.
type SearchConfig struct {
	DenseWeight  float64 `yaml:"dense_weight" json:"dense_weight"`
	SparseWeight float64 `yaml:"sparse_weight" json:"sparse_weight"`

	// RRFConstant is the K in 1/(K+rank+1).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	DefaultK int `yaml:"default_k" json:"default_k"`
	MaxK     int `yaml:"max_k" json:"max_k"`

	// Timeout bounds a whole ensemble search. 0 disables the deadline.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ChunkingConfig configures the recursive character splitter.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbeddingsConfig configures the local embedder.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport   string `yaml:"transport" json:"transport"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/__pycache__/**",
	"**/.gradle/**",
	"**/build/**",
	"**/target/**",
	"**/*.min.js",
	"**/package-lock.json",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: DefaultDataDir,
		Paths: PathsConfig{
			Include:    []string{},
			Exclude:    append([]string(nil), defaultExcludePatterns...),
			Extensions: chunk.DefaultExtensions(),
		},
		Search: SearchConfig{
			DenseWeight:  0.6,
			SparseWeight: 0.4,
			RRFConstant:  60,
			DefaultK:     5,
			MaxK:         50,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    chunk.DefaultChunkSize,
			ChunkOverlap: chunk.DefaultChunkOverlap,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Dimensions: 256,
			BatchSize:  64,
			CacheSize:  1000,
		},
		Server: ServerConfig{
			Transport: TransportStdio,
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/coderag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/coderag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coderag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "coderag", "config.yaml")
	}
	return filepath.Join(home, ".config", "coderag", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig returns nil, nil when no user config exists.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the project rooted at dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/coderag/config.yaml)
//  3. Project config (.coderag.yaml in project root)
//  4. .env file in project root (never overrides variables already set)
//  5. Environment variables (CODERAG_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, cerrors.ConfigError(fmt.Sprintf("failed to load user config: %v", err), err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, cerrors.ConfigError(fmt.Sprintf("failed to load project config: %v", err), err)
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, cerrors.ConfigError(fmt.Sprintf("failed to load .env: %v", err), err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, cerrors.ConfigError(fmt.Sprintf("invalid environment override: %v", err), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, cerrors.ConfigError(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	return cfg, nil
}

// loadFromFile attempts to load .coderag.yaml, then .coderag.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectConfigName)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".coderag.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = appendUnique(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if len(other.Paths.Extensions) > 0 {
		c.Paths.Extensions = other.Paths.Extensions
	}

	// A zero weight in YAML is indistinguishable from "unset"; use
	// CODERAG_DENSE_WEIGHT=0 to disable one side explicitly.
	if other.Search.DenseWeight != 0 {
		c.Search.DenseWeight = other.Search.DenseWeight
	}
	if other.Search.SparseWeight != 0 {
		c.Search.SparseWeight = other.Search.SparseWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DefaultK != 0 {
		c.Search.DefaultK = other.Search.DefaultK
	}
	if other.Search.MaxK != 0 {
		c.Search.MaxK = other.Search.MaxK
	}
	if other.Search.Timeout != 0 {
		c.Search.Timeout = other.Search.Timeout
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.MetricsAddr != "" {
		c.Server.MetricsAddr = other.Server.MetricsAddr
	}
}

// envOverrides mirrors the overridable settings. Pointer fields stay nil
// when the variable is unset, so an explicit zero still applies.
type envOverrides struct {
	DataDir      *string        `envconfig:"DATA_DIR"`
	DenseWeight  *float64       `envconfig:"DENSE_WEIGHT"`
	SparseWeight *float64       `envconfig:"SPARSE_WEIGHT"`
	RRFConstant  *int           `envconfig:"RRF_CONSTANT"`
	DefaultK     *int           `envconfig:"DEFAULT_K"`
	MaxK         *int           `envconfig:"MAX_K"`
	Timeout      *time.Duration `envconfig:"SEARCH_TIMEOUT"`
	ChunkSize    *int           `envconfig:"CHUNK_SIZE"`
	ChunkOverlap *int           `envconfig:"CHUNK_OVERLAP"`
	Provider     *string        `envconfig:"EMBEDDINGS_PROVIDER"`
	Dimensions   *int           `envconfig:"EMBEDDINGS_DIMENSIONS"`
	CacheSize    *int           `envconfig:"EMBEDDINGS_CACHE_SIZE"`
	Transport    *string        `envconfig:"TRANSPORT"`
	LogLevel     *string        `envconfig:"LOG_LEVEL"`
	MetricsAddr  *string        `envconfig:"METRICS_ADDR"`
}

// applyEnvOverrides applies CODERAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	setString(&c.DataDir, env.DataDir)
	setFloat(&c.Search.DenseWeight, env.DenseWeight)
	setFloat(&c.Search.SparseWeight, env.SparseWeight)
	setInt(&c.Search.RRFConstant, env.RRFConstant)
	setInt(&c.Search.DefaultK, env.DefaultK)
	setInt(&c.Search.MaxK, env.MaxK)
	if env.Timeout != nil {
		c.Search.Timeout = *env.Timeout
	}
	setInt(&c.Chunking.ChunkSize, env.ChunkSize)
	setInt(&c.Chunking.ChunkOverlap, env.ChunkOverlap)
	setString(&c.Embeddings.Provider, env.Provider)
	setInt(&c.Embeddings.Dimensions, env.Dimensions)
	setInt(&c.Embeddings.CacheSize, env.CacheSize)
	setString(&c.Server.Transport, env.Transport)
	setString(&c.Server.LogLevel, env.LogLevel)
	setString(&c.Server.MetricsAddr, env.MetricsAddr)
	return nil
}

// loadDotEnv loads <dir>/.env into the process environment. A missing file is fine.
func loadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DataPath resolves DataDir against the project root.
func (c *Config) DataPath(root string) string {
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(root, c.DataDir)
}

// ClampK maps a requested result count into [1, MaxK]; k <= 0 selects DefaultK.
func (c *Config) ClampK(k int) int {
	if k <= 0 {
		k = c.Search.DefaultK
	}
	if c.Search.MaxK > 0 && k > c.Search.MaxK {
		k = c.Search.MaxK
	}
	return k
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.DenseWeight < 0 || c.Search.DenseWeight > 1 {
		return fmt.Errorf("dense_weight must be between 0 and 1, got %f", c.Search.DenseWeight)
	}
	if c.Search.SparseWeight < 0 || c.Search.SparseWeight > 1 {
		return fmt.Errorf("sparse_weight must be between 0 and 1, got %f", c.Search.SparseWeight)
	}
	sum := c.Search.DenseWeight + c.Search.SparseWeight
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("dense_weight + sparse_weight must equal 1.0, got %.3f", sum)
	}
	if c.Search.RRFConstant < 0 {
		return fmt.Errorf("rrf_constant must be non-negative, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultK < 1 {
		return fmt.Errorf("default_k must be at least 1, got %d", c.Search.DefaultK)
	}
	if c.Search.MaxK < c.Search.DefaultK {
		return fmt.Errorf("max_k (%d) must be >= default_k (%d)", c.Search.MaxK, c.Search.DefaultK)
	}
	if c.Search.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", c.Search.Timeout)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}

	if strings.ToLower(c.Embeddings.Provider) != "static" {
		return fmt.Errorf("embeddings.provider must be 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	if strings.ToLower(c.Server.Transport) != TransportStdio {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// FindProjectRoot walks up from startDir to the nearest directory holding a
// .git directory or a project config file. It returns startDir (absolute)
// when none is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := absDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir, nil
		}
		if fileExists(filepath.Join(dir, ProjectConfigName)) || fileExists(filepath.Join(dir, ".coderag.yml")) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}
