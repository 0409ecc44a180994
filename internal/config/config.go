package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Hydrus contains connection settings for the Hydrus client API.
type Hydrus struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Rules contains the location of the rule document.
type Rules struct {
	Path string `toml:"path"`
}

// Storage contains persistence settings.
type Storage struct {
	DatabasePath string `toml:"database_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Dir           string `toml:"log_dir"`
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Scheduler contains the automation tick intervals.
type Scheduler struct {
	RuleIntervalSeconds        int `toml:"rule_interval_seconds"`
	TickSeconds                int `toml:"tick_seconds"`
	InitialDelaySeconds        int `toml:"initial_delay_seconds"`
	LastViewedThresholdSeconds int `toml:"last_viewed_threshold_seconds"`
}

// Actions contains batch sizes and per-call timeouts for Hydrus operations.
type Actions struct {
	MigrateBatchSize      int `toml:"migrate_batch_size"`
	DeleteBatchSize       int `toml:"delete_batch_size"`
	MetadataBatchSize     int `toml:"metadata_batch_size"`
	TagBatchSize          int `toml:"tag_batch_size"`
	MigrateTimeoutSeconds int `toml:"migrate_timeout_seconds"`
	DeleteTimeoutSeconds  int `toml:"delete_timeout_seconds"`
	TagTimeoutSeconds     int `toml:"tag_timeout_seconds"`
	RatingTimeoutSeconds  int `toml:"rating_timeout_seconds"`
}

// Overrides contains conflict-resolution behaviour switches.
type Overrides struct {
	LogOverriddenActions bool `toml:"log_overridden_actions"`
}

// Pruning contains the duplicate-log sweep settings.
type Pruning struct {
	EnableLogPruning bool `toml:"enable_log_pruning"`
	KeepOldest       int  `toml:"keep_oldest"`
	KeepNewest       int  `toml:"keep_newest"`
	Hour             int  `toml:"hour"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyURL               string `toml:"ntfy_url"`
	NtfyTopic             string `toml:"ntfy_topic"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
	ButlerName            string `toml:"butler_name"`
	NotifyRunSummaries    bool   `toml:"notify_run_summaries"`
	NotifyRunAllSummaries bool   `toml:"notify_run_all_summaries"`
	NotifyFailures        bool   `toml:"notify_failures"`
}

// Config encapsulates all configuration values for Butler.
//
// Configuration sections by subsystem:
//   - Hydrus: client API address, access key, and request timeout
//   - Rules: rule document location
//   - Storage: SQLite database path
//   - Logging: log directory, format, level, and retention
//   - Scheduler: tick cadence and the global rule interval
//   - Actions: batch sizes and timeouts for Hydrus operations
//   - Overrides: conflict-resolution logging
//   - Pruning: duplicate run-log sweep settings
//   - Notifications: ntfy push notification settings
type Config struct {
	Hydrus        Hydrus        `toml:"hydrus"`
	Rules         Rules         `toml:"rules"`
	Storage       Storage       `toml:"storage"`
	Logging       Logging       `toml:"logging"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Actions       Actions       `toml:"actions"`
	Overrides     Overrides     `toml:"overrides"`
	Pruning       Pruning       `toml:"pruning"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/butler/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/butler/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("butler.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Logging.Dir,
		filepath.Dir(c.Storage.DatabasePath),
		filepath.Dir(c.Rules.Path),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
