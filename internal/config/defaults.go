package config

const (
	defaultStagingDir       = "~/.local/share/vidcast/staging"
	defaultLogDir           = "~/.local/share/vidcast/logs"
	defaultAPIBind          = "127.0.0.1:7521"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultUploadProfile    = "ugcupos/bup"
	defaultRequestTimeout   = 60
	defaultMaxUploadGiB     = 8
	defaultChunkParallelism = 4
	defaultChunkRetries     = 3
	defaultChunkBackoffMS   = 1000
	defaultMergeRetries     = 2
	defaultWarningWindow    = 7
	defaultProbeTimeout     = 10
	defaultCheckDelay       = 1
	defaultVipWeight        = 10.0
	defaultLevelWeight      = 2.0
	defaultIdleWeight       = 1.0
	defaultMaxConcurrent    = 3
	defaultPollInterval     = 2
	defaultErrorRetry       = 5
	defaultLockTTLSeconds   = 1800
	defaultMaxRetries       = 3
	defaultRetryBackoff     = 30
	defaultStarvationBoost  = 600
	defaultNotifyTimeout    = 10
	defaultProgressStep     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Platform: Platform{
			UploadProfile:    defaultUploadProfile,
			RequestTimeout:   defaultRequestTimeout,
			MaxUploadGiB:     defaultMaxUploadGiB,
			ChunkParallelism: defaultChunkParallelism,
			ChunkRetries:     defaultChunkRetries,
			ChunkBackoffMS:   defaultChunkBackoffMS,
			MergeRetries:     defaultMergeRetries,
		},
		Accounts: Accounts{
			WarningWindowDays:   defaultWarningWindow,
			ProbeTimeout:        defaultProbeTimeout,
			CheckDelaySeconds:   defaultCheckDelay,
			SelectorVipWeight:   defaultVipWeight,
			SelectorLevelWeight: defaultLevelWeight,
			SelectorIdleWeight:  defaultIdleWeight,
		},
		Scheduler: Scheduler{
			MaxConcurrent:          defaultMaxConcurrent,
			QueuePollInterval:      defaultPollInterval,
			ErrorRetryInterval:     defaultErrorRetry,
			LockTTLSeconds:         defaultLockTTLSeconds,
			MaxRetries:             defaultMaxRetries,
			RetryBackoffSeconds:    defaultRetryBackoff,
			StarvationBoostSeconds: defaultStarvationBoost,
		},
		Notifications: Notifications{
			RequestTimeout:      defaultNotifyTimeout,
			TaskEvents:          true,
			AccountAlerts:       true,
			Progress:            true,
			ProgressStepPercent: defaultProgressStep,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
