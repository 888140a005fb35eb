package config

// Config is the full application configuration tree.
type Config struct {
	Log    LogConfig    `koanf:"log"`
	Worker WorkerConfig `koanf:"worker"`
	Poll   PollConfig   `koanf:"poll"`
	Cache  CacheConfig  `koanf:"cache"`
	Assets AssetsConfig `koanf:"assets"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// WorkerConfig describes the local worker process and how to reach it.
// Intervals and timeouts are in seconds.
type WorkerConfig struct {
	BaseURL         string `koanf:"base_url"`
	APIKey          string `koanf:"api_key"`
	Interpreter     string `koanf:"interpreter"`
	Script          string `koanf:"script"`
	WorkDir         string `koanf:"work_dir"`
	HealthInterval  int    `koanf:"health_interval_seconds"`
	ProbeTimeout    int    `koanf:"probe_timeout_seconds"`
	MaxRetries      int    `koanf:"max_retries"`
	GracefulTimeout int    `koanf:"graceful_timeout_seconds"`
	KillTimeout     int    `koanf:"kill_timeout_seconds"`
}

// PollConfig tunes the job status poller. Intervals are in milliseconds;
// the remaining fields are poll counts.
type PollConfig struct {
	BaseIntervalMS       int `koanf:"base_interval_ms"`
	MaxIntervalMS        int `koanf:"max_interval_ms"`
	GrowThreshold        int `koanf:"grow_threshold"`
	BackgroundThreshold  int `koanf:"background_threshold"`
	BackgroundResume     int `koanf:"background_resume"`
	ErrorPromptThreshold int `koanf:"error_prompt_threshold"`
	ErrorPromptReset     int `koanf:"error_prompt_reset"`
}

// CacheConfig sets the per-class asset cache budgets in megabytes.
type CacheConfig struct {
	StaticBudgetMB   int `koanf:"static_budget_mb"`
	AnimatedBudgetMB int `koanf:"animated_budget_mb"`
}

// AssetsConfig points at the shared asset manifest used for preloading.
type AssetsConfig struct {
	Dir      string `koanf:"dir"`
	Manifest string `koanf:"manifest"`
}
