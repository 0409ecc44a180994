package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHydrus()
	c.normalizeScheduler()
	c.normalizeActions()
	c.normalizePruning()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = defaultLogDir
	}
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.DatabasePath) == "" {
		c.Storage.DatabasePath = defaultDatabasePath
	}
	if c.Storage.DatabasePath, err = expandPath(c.Storage.DatabasePath); err != nil {
		return fmt.Errorf("storage.database_path: %w", err)
	}
	if strings.TrimSpace(c.Rules.Path) == "" {
		c.Rules.Path = defaultRulesPath
	}
	if c.Rules.Path, err = expandPath(c.Rules.Path); err != nil {
		return fmt.Errorf("rules.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeHydrus() {
	c.Hydrus.APIURL = strings.TrimSpace(c.Hydrus.APIURL)
	c.Hydrus.APIKey = strings.TrimSpace(c.Hydrus.APIKey)
	if c.Hydrus.APIKey == "" {
		if value, ok := os.LookupEnv("HYDRUS_API_KEY"); ok {
			c.Hydrus.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Hydrus.TimeoutSeconds <= 0 {
		c.Hydrus.TimeoutSeconds = defaultHydrusTimeout
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.TickSeconds <= 0 {
		c.Scheduler.TickSeconds = defaultTickSeconds
	}
	if c.Scheduler.InitialDelaySeconds < 0 {
		c.Scheduler.InitialDelaySeconds = defaultInitialDelay
	}
	if c.Scheduler.RuleIntervalSeconds < 0 {
		c.Scheduler.RuleIntervalSeconds = 0
	}
	if c.Scheduler.LastViewedThresholdSeconds < 0 {
		c.Scheduler.LastViewedThresholdSeconds = 0
	}
}

func (c *Config) normalizeActions() {
	defaults := Default().Actions
	if c.Actions.MigrateBatchSize <= 0 {
		c.Actions.MigrateBatchSize = defaults.MigrateBatchSize
	}
	if c.Actions.DeleteBatchSize <= 0 {
		c.Actions.DeleteBatchSize = defaults.DeleteBatchSize
	}
	if c.Actions.MetadataBatchSize <= 0 {
		c.Actions.MetadataBatchSize = defaults.MetadataBatchSize
	}
	if c.Actions.TagBatchSize <= 0 {
		c.Actions.TagBatchSize = defaults.TagBatchSize
	}
	if c.Actions.MigrateTimeoutSeconds <= 0 {
		c.Actions.MigrateTimeoutSeconds = defaults.MigrateTimeoutSeconds
	}
	if c.Actions.DeleteTimeoutSeconds <= 0 {
		c.Actions.DeleteTimeoutSeconds = defaults.DeleteTimeoutSeconds
	}
	if c.Actions.TagTimeoutSeconds <= 0 {
		c.Actions.TagTimeoutSeconds = defaults.TagTimeoutSeconds
	}
	if c.Actions.RatingTimeoutSeconds <= 0 {
		c.Actions.RatingTimeoutSeconds = defaults.RatingTimeoutSeconds
	}
}

func (c *Config) normalizePruning() {
	if c.Pruning.KeepOldest < 0 {
		c.Pruning.KeepOldest = defaultPruneKeepOldest
	}
	if c.Pruning.KeepNewest < 0 {
		c.Pruning.KeepNewest = defaultPruneKeepNewest
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyURL = strings.TrimSpace(c.Notifications.NtfyURL)
	if c.Notifications.NtfyURL == "" {
		c.Notifications.NtfyURL = defaultNtfyURL
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.ButlerName = strings.TrimSpace(c.Notifications.ButlerName)
	if c.Notifications.ButlerName == "" {
		c.Notifications.ButlerName = defaultButlerName
	}
	if c.Notifications.TimeoutSeconds <= 0 {
		c.Notifications.TimeoutSeconds = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
