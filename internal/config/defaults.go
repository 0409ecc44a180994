package config

const (
	defaultLogDir            = "~/.local/share/butler/logs"
	defaultDatabasePath      = "~/.local/share/butler/butler.db"
	defaultRulesPath         = "~/.config/butler/rules.json"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 60
	defaultHydrusTimeout     = 30
	defaultTickSeconds       = 10
	defaultInitialDelay      = 30
	defaultMigrateBatchSize  = 64
	defaultDeleteBatchSize   = 64
	defaultMetadataBatchSize = 256
	defaultTagBatchSize      = 256
	defaultMigrateTimeout    = 180
	defaultDeleteTimeout     = 180
	defaultTagTimeout        = 120
	defaultRatingTimeout     = 60
	defaultPruneKeepOldest   = 2
	defaultPruneKeepNewest   = 3
	defaultPruneHour         = 3
	defaultNotifyTimeout     = 10
	defaultNtfyURL           = "https://ntfy.sh"
	defaultButlerName        = "Butler"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Hydrus: Hydrus{
			TimeoutSeconds: defaultHydrusTimeout,
		},
		Rules: Rules{
			Path: defaultRulesPath,
		},
		Storage: Storage{
			DatabasePath: defaultDatabasePath,
		},
		Logging: Logging{
			Dir:           defaultLogDir,
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Scheduler: Scheduler{
			RuleIntervalSeconds:        0,
			TickSeconds:                defaultTickSeconds,
			InitialDelaySeconds:        defaultInitialDelay,
			LastViewedThresholdSeconds: 0,
		},
		Actions: Actions{
			MigrateBatchSize:      defaultMigrateBatchSize,
			DeleteBatchSize:       defaultDeleteBatchSize,
			MetadataBatchSize:     defaultMetadataBatchSize,
			TagBatchSize:          defaultTagBatchSize,
			MigrateTimeoutSeconds: defaultMigrateTimeout,
			DeleteTimeoutSeconds:  defaultDeleteTimeout,
			TagTimeoutSeconds:     defaultTagTimeout,
			RatingTimeoutSeconds:  defaultRatingTimeout,
		},
		Overrides: Overrides{
			LogOverriddenActions: true,
		},
		Pruning: Pruning{
			EnableLogPruning: false,
			KeepOldest:       defaultPruneKeepOldest,
			KeepNewest:       defaultPruneKeepNewest,
			Hour:             defaultPruneHour,
		},
		Notifications: Notifications{
			NtfyURL:               defaultNtfyURL,
			TimeoutSeconds:        defaultNotifyTimeout,
			ButlerName:            defaultButlerName,
			NotifyRunSummaries:    true,
			NotifyRunAllSummaries: true,
			NotifyFailures:        true,
		},
	}
}
