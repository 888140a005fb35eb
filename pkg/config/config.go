package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
)

// Global Koanf instance, initialized once at startup.
var (
	k    *koanf.Koanf
	once sync.Once
)

// InitGlobalConfig initializes the global Koanf instance. It should be
// called early in the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = koanf.New(".")
	})
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex // To protect currentConfig during runtime updates
}

// NewManager creates a new config Manager, initializing the global Koanf
// instance if not already done.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{
		koanfInstance: k,
	}
}

// DefaultConfig returns a Config populated with hardcoded default values.
// These serve as the baseline if no other sources override them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Worker: WorkerConfig{
			BaseURL:         "http://127.0.0.1:8000",
			APIKey:          "",
			Interpreter:     "python3",
			Script:          "",
			WorkDir:         "",
			HealthInterval:  10,
			ProbeTimeout:    5,
			MaxRetries:      30,
			GracefulTimeout: 40,
			KillTimeout:     3,
		},
		Poll: PollConfig{
			BaseIntervalMS:       2000,
			MaxIntervalMS:        10000,
			GrowThreshold:        10,
			BackgroundThreshold:  60,
			BackgroundResume:     40,
			ErrorPromptThreshold: 10,
			ErrorPromptReset:     4,
		},
		Cache: CacheConfig{
			StaticBudgetMB:   32,
			AnimatedBudgetMB: 64,
		},
		Assets: AssetsConfig{
			Dir:      "static/images",
			Manifest: "",
		},
	}
}

// Load loads configuration from the default sources based on precedence.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (--log.level=debug)
//  2. Environment variables (DECKHAND_LOG_LEVEL=debug)
//  3. Config file (YAML)
//  4. Default values
//
// Environment variables use the DECKHAND_ prefix and underscore-to-dot
// mapping:
//
//	DECKHAND_LOG_LEVEL       -> log.level
//	DECKHAND_WORKER_API_KEY  -> worker.api_key
func (m *Manager) Load(flags *pflag.FlagSet, customConfigFilePath string) error {
	return m.LoadWithSources(DefaultSources(customConfigFilePath, flags))
}

// LoadWithSources loads configuration from the provided sources in priority
// order. Sources with lower priority values are loaded first; higher
// priority sources override lower priority values.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, src := range sources {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("error loading config from %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	m.currentConfig = newCfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfgCopy := m.currentConfig
	return cfgCopy
}

// GetValue retrieves a configuration value by key path.
// Example: GetValue("poll.base_interval_ms"). Returns nil if the key
// doesn't exist.
func (m *Manager) GetValue(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Get(key)
}

// GetInt retrieves an integer value by key path, coercing where needed.
func (m *Manager) GetInt(key string) int {
	return cast.ToInt(m.GetValue(key))
}

// GetString retrieves a string value by key path, coercing where needed.
func (m *Manager) GetString(key string) string {
	return cast.ToString(m.GetValue(key))
}

// DefaultConfigAsMap converts DefaultConfig to a flat map for Koanf's
// confmap provider, so every known key exists before overrides apply.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		// Log configuration
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		// Worker configuration
		"worker.base_url":                 def.Worker.BaseURL,
		"worker.api_key":                  def.Worker.APIKey,
		"worker.interpreter":              def.Worker.Interpreter,
		"worker.script":                   def.Worker.Script,
		"worker.work_dir":                 def.Worker.WorkDir,
		"worker.health_interval_seconds":  def.Worker.HealthInterval,
		"worker.probe_timeout_seconds":    def.Worker.ProbeTimeout,
		"worker.max_retries":              def.Worker.MaxRetries,
		"worker.graceful_timeout_seconds": def.Worker.GracefulTimeout,
		"worker.kill_timeout_seconds":     def.Worker.KillTimeout,

		// Poll configuration
		"poll.base_interval_ms":       def.Poll.BaseIntervalMS,
		"poll.max_interval_ms":        def.Poll.MaxIntervalMS,
		"poll.grow_threshold":         def.Poll.GrowThreshold,
		"poll.background_threshold":   def.Poll.BackgroundThreshold,
		"poll.background_resume":      def.Poll.BackgroundResume,
		"poll.error_prompt_threshold": def.Poll.ErrorPromptThreshold,
		"poll.error_prompt_reset":     def.Poll.ErrorPromptReset,

		// Cache configuration
		"cache.static_budget_mb":   def.Cache.StaticBudgetMB,
		"cache.animated_budget_mb": def.Cache.AnimatedBudgetMB,

		// Assets configuration
		"assets.dir":      def.Assets.Dir,
		"assets.manifest": def.Assets.Manifest,
	}
}

// BindFlags defines command-line flags corresponding to configuration
// settings, allowing overrides of config file / environment settings.
// Called when setting up the root Cobra command.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()

	flags.String("worker.base_url", def.Worker.BaseURL, "Worker API base URL")
	flags.String("worker.api_key", "", "Worker API key (prefer DECKHAND_WORKER_API_KEY)")
	flags.String("worker.script", "", "Explicit path to the worker entrypoint")
	flags.String("log.level", def.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log.format", def.Log.Format, "Log format (text, json)")

	// Note: the main --config / -c flag for the config file path is
	// defined directly on the root Cobra command's PersistentFlags.
}
