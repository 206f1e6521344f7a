package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is doclex's complete runtime configuration: index location,
// crawler behavior, and server transport/logging, under the lucene.*
// key namespace.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Crawler CrawlerConfig `yaml:"crawler" json:"crawler"`
	Server  ServerConfig  `yaml:"server" json:"server"`
}

// IndexConfig configures the on-disk inverted index (lucene.index.*).
type IndexConfig struct {
	// Path is the directory holding the index's own files, schema.version,
	// and the native lock file.
	Path string `yaml:"path" json:"path"`

	// SchemaMismatchAction controls what happens when the persisted
	// schema.version disagrees with the code's current version: "fail"
	// (default) or "reindex".
	SchemaMismatchAction string `yaml:"schema-mismatch-action" json:"schema_mismatch_action"`

	// CommitTimeoutMs is the timer-triggered commit interval, independent
	// of batch completion (commit policy default 5000ms).
	CommitTimeoutMs int `yaml:"commit-timeout-ms" json:"commit_timeout_ms"`

	// FastRefreshIntervalMs is the NRT reopen interval while the pending
	// change count is below Crawler.BulkIndexThreshold.
	FastRefreshIntervalMs int `yaml:"fast-refresh-interval-ms" json:"fast_refresh_interval_ms"`
}

// CrawlerConfig configures discovery, extraction, batching, and the watch
// processor (lucene.crawler.*).
type CrawlerConfig struct {
	Directories []string `yaml:"directories" json:"directories"`

	IncludePatterns []string `yaml:"include-patterns" json:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude-patterns" json:"exclude_patterns"`

	// ThreadPoolSize is the worker-pool size driving extraction + indexing.
	ThreadPoolSize int `yaml:"thread-pool-size" json:"thread_pool_size"`

	BatchSize      int `yaml:"batch-size" json:"batch_size"`
	BatchTimeoutMs int `yaml:"batch-timeout-ms" json:"batch_timeout_ms"`

	WatchEnabled    bool `yaml:"watch-enabled" json:"watch_enabled"`
	WatchDebounceMs int  `yaml:"watch-debounce-ms" json:"watch_debounce_ms"`

	BulkIndexThreshold       int `yaml:"bulk-index-threshold" json:"bulk_index_threshold"`
	SlowNRTRefreshIntervalMs int `yaml:"slow-nrt-refresh-interval-ms" json:"slow_nrt_refresh_interval_ms"`

	ExtractMetadata  bool `yaml:"extract-metadata" json:"extract_metadata"`
	DetectLanguage   bool `yaml:"detect-language" json:"detect_language"`
	MaxContentLength int  `yaml:"max-content-length" json:"max_content_length"`

	CrawlOnStartup        bool `yaml:"crawl-on-startup" json:"crawl_on_startup"`
	ReconciliationEnabled bool `yaml:"reconciliation-enabled" json:"reconciliation_enabled"`

	// ProgressNotificationFiles / ProgressNotificationIntervalMs gate how
	// often reconciliation and crawl progress is reported.
	ProgressNotificationFiles      int `yaml:"progress-notification-files" json:"progress_notification_files"`
	ProgressNotificationIntervalMs int `yaml:"progress-notification-interval-ms" json:"progress_notification_interval_ms"`

	// ReconciliationWorkerPoolSize is loaded from config and defaults to 4.
	// Startup reconciliation does not read it; its worker count comes from
	// ThreadPoolSize.
	ReconciliationWorkerPoolSize int `yaml:"reconciliation-worker-pool-size" json:"reconciliation_worker_pool_size"`
}

// ServerConfig configures the MCP transport and logging.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log-level" json:"log_level"`
}

// defaultExcludePatterns are always excluded from crawling.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/.svn/**",
}

// defaultIncludePatterns match the document types the extractor knows how
// to read by default: plain text, markdown, and common office/PDF formats.
var defaultIncludePatterns = []string{
	"*.txt", "*.md", "*.markdown", "*.pdf", "*.docx", "*.html", "*.htm",
}

// NewConfig returns a Config populated with built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Path:                  defaultIndexPath(),
			SchemaMismatchAction:  "fail",
			CommitTimeoutMs:       5000,
			FastRefreshIntervalMs: 100,
		},
		Crawler: CrawlerConfig{
			Directories:     []string{},
			IncludePatterns: defaultIncludePatterns,
			ExcludePatterns: defaultExcludePatterns,

			ThreadPoolSize: runtime.NumCPU(),

			BatchSize:      100,
			BatchTimeoutMs: 5000,

			WatchEnabled:    true,
			WatchDebounceMs: 200,

			BulkIndexThreshold:       1000,
			SlowNRTRefreshIntervalMs: 5000,

			ExtractMetadata:  true,
			DetectLanguage:   true,
			MaxContentLength: 50 * 1024 * 1024,

			CrawlOnStartup:        true,
			ReconciliationEnabled: true,

			ProgressNotificationFiles:      100,
			ProgressNotificationIntervalMs: 30000,

			ReconciliationWorkerPoolSize: 4,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// defaultIndexPath returns the default on-disk index directory.
func defaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".doclex", "index")
	}
	return filepath.Join(home, ".doclex", "index")
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/doclex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/doclex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "doclex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "doclex", "config.yaml")
	}
	return filepath.Join(home, ".config", "doclex", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if present.
// A nil config and nil error means there is no user config, which is fine.
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

// LoadUserConfig loads the user configuration file. Returns a nil config
// and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load loads configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/doclex/config.yaml)
//  3. Project config (.doclex.yaml in the project root)
//  4. Environment variables (DOCLEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .doclex.yaml or
// .doclex.yml in dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".doclex.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".doclex.yml")
	if _, err := os.Stat(ymlPath); err == nil {
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

	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}
	if other.Index.SchemaMismatchAction != "" {
		c.Index.SchemaMismatchAction = other.Index.SchemaMismatchAction
	}
	if other.Index.CommitTimeoutMs != 0 {
		c.Index.CommitTimeoutMs = other.Index.CommitTimeoutMs
	}
	if other.Index.FastRefreshIntervalMs != 0 {
		c.Index.FastRefreshIntervalMs = other.Index.FastRefreshIntervalMs
	}

	if len(other.Crawler.Directories) > 0 {
		c.Crawler.Directories = other.Crawler.Directories
	}
	if len(other.Crawler.IncludePatterns) > 0 {
		c.Crawler.IncludePatterns = other.Crawler.IncludePatterns
	}
	if len(other.Crawler.ExcludePatterns) > 0 {
		c.Crawler.ExcludePatterns = append(c.Crawler.ExcludePatterns, other.Crawler.ExcludePatterns...)
	}
	if other.Crawler.ThreadPoolSize != 0 {
		c.Crawler.ThreadPoolSize = other.Crawler.ThreadPoolSize
	}
	if other.Crawler.BatchSize != 0 {
		c.Crawler.BatchSize = other.Crawler.BatchSize
	}
	if other.Crawler.BatchTimeoutMs != 0 {
		c.Crawler.BatchTimeoutMs = other.Crawler.BatchTimeoutMs
	}
	if other.Crawler.WatchDebounceMs != 0 {
		c.Crawler.WatchDebounceMs = other.Crawler.WatchDebounceMs
	}
	if other.Crawler.BulkIndexThreshold != 0 {
		c.Crawler.BulkIndexThreshold = other.Crawler.BulkIndexThreshold
	}
	if other.Crawler.SlowNRTRefreshIntervalMs != 0 {
		c.Crawler.SlowNRTRefreshIntervalMs = other.Crawler.SlowNRTRefreshIntervalMs
	}
	if other.Crawler.MaxContentLength != 0 {
		c.Crawler.MaxContentLength = other.Crawler.MaxContentLength
	}
	if other.Crawler.ProgressNotificationFiles != 0 {
		c.Crawler.ProgressNotificationFiles = other.Crawler.ProgressNotificationFiles
	}
	if other.Crawler.ProgressNotificationIntervalMs != 0 {
		c.Crawler.ProgressNotificationIntervalMs = other.Crawler.ProgressNotificationIntervalMs
	}
	if other.Crawler.ReconciliationWorkerPoolSize != 0 {
		c.Crawler.ReconciliationWorkerPoolSize = other.Crawler.ReconciliationWorkerPoolSize
	}
	// Booleans: a project/user file that mentions the crawler block at all
	// is taken to mean its boolean fields are intentional, not zero-value
	// omissions. We merge these unconditionally from a non-empty Crawler.
	if !isZeroCrawler(other.Crawler) {
		c.Crawler.WatchEnabled = other.Crawler.WatchEnabled
		c.Crawler.ExtractMetadata = other.Crawler.ExtractMetadata
		c.Crawler.DetectLanguage = other.Crawler.DetectLanguage
		c.Crawler.CrawlOnStartup = other.Crawler.CrawlOnStartup
		c.Crawler.ReconciliationEnabled = other.Crawler.ReconciliationEnabled
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

func isZeroCrawler(c CrawlerConfig) bool {
	return len(c.Directories) == 0 && len(c.IncludePatterns) == 0 && len(c.ExcludePatterns) == 0 &&
		c.ThreadPoolSize == 0 && c.BatchSize == 0 && c.BatchTimeoutMs == 0 && c.WatchDebounceMs == 0 &&
		c.BulkIndexThreshold == 0 && c.SlowNRTRefreshIntervalMs == 0 && c.MaxContentLength == 0 &&
		!c.WatchEnabled && !c.ExtractMetadata && !c.DetectLanguage && !c.CrawlOnStartup && !c.ReconciliationEnabled
}

// applyEnvOverrides applies DOCLEX_* environment variable overrides; these
// take precedence over file-based configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCLEX_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("DOCLEX_SCHEMA_MISMATCH_ACTION"); v != "" {
		c.Index.SchemaMismatchAction = v
	}

	if v := os.Getenv("DOCLEX_CRAWLER_DIRECTORIES"); v != "" {
		c.Crawler.Directories = splitCSV(v)
	}
	if v := os.Getenv("DOCLEX_CRAWLER_INCLUDE_PATTERNS"); v != "" {
		c.Crawler.IncludePatterns = splitCSV(v)
	}
	if v := os.Getenv("DOCLEX_CRAWLER_EXCLUDE_PATTERNS"); v != "" {
		c.Crawler.ExcludePatterns = append(c.Crawler.ExcludePatterns, splitCSV(v)...)
	}
	if v := os.Getenv("DOCLEX_CRAWLER_THREAD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Crawler.ThreadPoolSize = n
		}
	}
	if v := os.Getenv("DOCLEX_CRAWLER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Crawler.BatchSize = n
		}
	}
	if v := os.Getenv("DOCLEX_CRAWLER_WATCH_ENABLED"); v != "" {
		c.Crawler.WatchEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DOCLEX_CRAWLER_WATCH_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Crawler.WatchDebounceMs = n
		}
	}
	if v := os.Getenv("DOCLEX_CRAWLER_CRAWL_ON_STARTUP"); v != "" {
		c.Crawler.CrawlOnStartup = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DOCLEX_CRAWLER_RECONCILIATION_ENABLED"); v != "" {
		c.Crawler.ReconciliationEnabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("DOCLEX_SERVER_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("DOCLEX_SERVER_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	// DOCLEX_LOG_LEVEL is a shorter alias for DOCLEX_SERVER_LOG_LEVEL.
	if v := os.Getenv("DOCLEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Index.Path == "" {
		return fmt.Errorf("index.path must not be empty")
	}

	validSchemaActions := map[string]bool{"fail": true, "reindex": true}
	if !validSchemaActions[strings.ToLower(c.Index.SchemaMismatchAction)] {
		return fmt.Errorf("index.schema-mismatch-action must be 'fail' or 'reindex', got %s", c.Index.SchemaMismatchAction)
	}

	if c.Crawler.ThreadPoolSize <= 0 {
		return fmt.Errorf("crawler.thread-pool-size must be positive, got %d", c.Crawler.ThreadPoolSize)
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch-size must be positive, got %d", c.Crawler.BatchSize)
	}
	if c.Crawler.WatchDebounceMs < 0 {
		return fmt.Errorf("crawler.watch-debounce-ms must be non-negative, got %d", c.Crawler.WatchDebounceMs)
	}
	if c.Crawler.BulkIndexThreshold <= 0 {
		return fmt.Errorf("crawler.bulk-index-threshold must be positive, got %d", c.Crawler.BulkIndexThreshold)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log-level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .doclex.yaml/.yml file, returning the first directory found, or startDir
// itself if neither is found before reaching the filesystem root.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".doclex.yaml")) ||
			fileExists(filepath.Join(currentDir, ".doclex.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists reports whether path exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists reports whether path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
