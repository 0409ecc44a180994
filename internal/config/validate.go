package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateHydrus(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateActions(); err != nil {
		return err
	}
	if err := c.validatePruning(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateHydrus() error {
	if strings.TrimSpace(c.Hydrus.APIURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/butler/config.toml"
		}
		return fmt.Errorf("hydrus.api_url is required. Edit %s (create with 'butler config init')", defaultPath)
	}
	if strings.TrimSpace(c.Hydrus.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/butler/config.toml"
		}
		return fmt.Errorf("hydrus.api_key is required. Set HYDRUS_API_KEY env var or edit %s", defaultPath)
	}
	if c.Hydrus.TimeoutSeconds <= 0 {
		return errors.New("hydrus.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.TickSeconds <= 0 {
		return errors.New("scheduler.tick_seconds must be positive")
	}
	if c.Scheduler.InitialDelaySeconds < 0 {
		return errors.New("scheduler.initial_delay_seconds must be >= 0")
	}
	if c.Scheduler.RuleIntervalSeconds < 0 {
		return errors.New("scheduler.rule_interval_seconds must be >= 0 (0 disables the global interval)")
	}
	if c.Scheduler.LastViewedThresholdSeconds < 0 {
		return errors.New("scheduler.last_viewed_threshold_seconds must be >= 0 (0 disables the filter)")
	}
	return nil
}

func (c *Config) validateActions() error {
	return ensurePositiveMap(map[string]int{
		"actions.migrate_batch_size":      c.Actions.MigrateBatchSize,
		"actions.delete_batch_size":       c.Actions.DeleteBatchSize,
		"actions.metadata_batch_size":     c.Actions.MetadataBatchSize,
		"actions.tag_batch_size":          c.Actions.TagBatchSize,
		"actions.migrate_timeout_seconds": c.Actions.MigrateTimeoutSeconds,
		"actions.delete_timeout_seconds":  c.Actions.DeleteTimeoutSeconds,
		"actions.tag_timeout_seconds":     c.Actions.TagTimeoutSeconds,
		"actions.rating_timeout_seconds":  c.Actions.RatingTimeoutSeconds,
	})
}

func (c *Config) validatePruning() error {
	if c.Pruning.Hour < 0 || c.Pruning.Hour > 23 {
		return errors.New("pruning.hour must be between 0 and 23")
	}
	if c.Pruning.EnableLogPruning && c.Pruning.KeepNewest < 1 {
		return errors.New("pruning.keep_newest must be >= 1 when pruning is enabled")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.TimeoutSeconds <= 0 {
		return errors.New("notifications.timeout_seconds must be positive")
	}
	if c.Notifications.NtfyTopic != "" && strings.TrimSpace(c.Notifications.NtfyURL) == "" {
		return errors.New("notifications.ntfy_url must be set when a topic is configured")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
