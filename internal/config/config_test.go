package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Default configuration
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)

	assert.NotEmpty(t, cfg.Index.Path)
	assert.Equal(t, "fail", cfg.Index.SchemaMismatchAction)
	assert.Equal(t, 5000, cfg.Index.CommitTimeoutMs)
	assert.Equal(t, 100, cfg.Index.FastRefreshIntervalMs)

	assert.Empty(t, cfg.Crawler.Directories)
	assert.Contains(t, cfg.Crawler.ExcludePatterns, "**/node_modules/**")
	assert.Contains(t, cfg.Crawler.ExcludePatterns, "**/.git/**")
	assert.Equal(t, runtime.NumCPU(), cfg.Crawler.ThreadPoolSize)
	assert.Equal(t, 100, cfg.Crawler.BatchSize)
	assert.Equal(t, 5000, cfg.Crawler.BatchTimeoutMs)
	assert.True(t, cfg.Crawler.WatchEnabled)
	assert.Equal(t, 200, cfg.Crawler.WatchDebounceMs)
	assert.Equal(t, 1000, cfg.Crawler.BulkIndexThreshold)
	assert.Equal(t, 5000, cfg.Crawler.SlowNRTRefreshIntervalMs)
	assert.True(t, cfg.Crawler.ExtractMetadata)
	assert.True(t, cfg.Crawler.DetectLanguage)
	assert.True(t, cfg.Crawler.CrawlOnStartup)
	assert.True(t, cfg.Crawler.ReconciliationEnabled)
	assert.Equal(t, 100, cfg.Crawler.ProgressNotificationFiles)
	assert.Equal(t, 30000, cfg.Crawler.ProgressNotificationIntervalMs)
	assert.Equal(t, 4, cfg.Crawler.ReconciliationWorkerPoolSize)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "info", cfg.Server.LogLevel)
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
}

// =============================================================================
// File loading and precedence
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "stdio", cfg.Server.Transport)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
crawler:
  directories: ["/srv/docs", "/srv/contracts"]
  thread-pool-size: 8
  batch-size: 250
server:
  log-level: debug
`
	err := os.WriteFile(filepath.Join(tmpDir, ".doclex.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/docs", "/srv/contracts"}, cfg.Crawler.Directories)
	assert.Equal(t, 8, cfg.Crawler.ThreadPoolSize)
	assert.Equal(t, 250, cfg.Crawler.BatchSize)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_YmlExtensionFallback(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := "server:\n  log-level: warn\n"
	err := os.WriteFile(filepath.Join(tmpDir, ".doclex.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	homeDir := t.TempDir()
	os.Setenv("XDG_CONFIG_HOME", homeDir)
	defer os.Unsetenv("XDG_CONFIG_HOME")

	userConfigDir := filepath.Join(homeDir, "doclex")
	require.NoError(t, os.MkdirAll(userConfigDir, 0o755))
	userConfig := "server:\n  log-level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(userConfigDir, "config.yaml"), []byte(userConfig), 0o644))

	projectDir := t.TempDir()
	projectConfig := "server:\n  log-level: error\n"
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".doclex.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Server.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := "server:\n  log-level: warn\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".doclex.yaml"), []byte(configContent), 0o644))

	os.Setenv("DOCLEX_SERVER_LOG_LEVEL", "error")
	defer os.Unsetenv("DOCLEX_SERVER_LOG_LEVEL")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Server.LogLevel)
}

func TestLoad_EnvOverridesCrawlerDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	os.Setenv("DOCLEX_CRAWLER_DIRECTORIES", "/a, /b ,/c")
	defer os.Unsetenv("DOCLEX_CRAWLER_DIRECTORIES")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b", "/c"}, cfg.Crawler.Directories)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".doclex.yaml"), []byte("not: valid: yaml: [["), 0o644))

	_, err := Load(tmpDir)

	assert.Error(t, err)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_RejectsEmptyIndexPath(t *testing.T) {
	cfg := NewConfig()
	cfg.Index.Path = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadSchemaMismatchAction(t *testing.T) {
	cfg := NewConfig()
	cfg.Index.SchemaMismatchAction = "explode"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveThreadPoolSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Crawler.ThreadPoolSize = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveBatchSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Crawler.BatchSize = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadTransport(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// Paths and discovery
// =============================================================================

func TestGetUserConfigPath_HonorsXDG(t *testing.T) {
	tmpDir := t.TempDir()
	os.Setenv("XDG_CONFIG_HOME", tmpDir)
	defer os.Unsetenv("XDG_CONFIG_HOME")

	path := GetUserConfigPath()
	assert.Equal(t, filepath.Join(tmpDir, "doclex", "config.yaml"), path)
}

func TestFindProjectRoot_FindsGitDir(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755))
	nested := filepath.Join(tmpDir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	root, err := FindProjectRoot(nested)

	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_FindsDotfileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".doclex.yaml"), []byte("version: 1\n"), 0o644))
	nested := filepath.Join(tmpDir, "sub")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	root, err := FindProjectRoot(nested)

	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_FallsBackToStartDir(t *testing.T) {
	tmpDir := t.TempDir()

	root, err := FindProjectRoot(tmpDir)

	require.NoError(t, err)
	absTmp, err := filepath.Abs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, absTmp, root)
}
