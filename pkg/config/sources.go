package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix is the prefix for configuration environment variables.
const envPrefix = "DECKHAND_"

// ConfigSource is one layer of the configuration chain. Lower priority
// loads first; later sources override earlier values.
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSources returns the standard source chain:
// defaults < config file < environment < flags.
func DefaultSources(configFilePath string, flags *pflag.FlagSet) []ConfigSource {
	sources := []ConfigSource{
		defaultsSource{},
		fileSource{path: configFilePath},
		envSource{},
	}
	if flags != nil {
		sources = append(sources, flagSource{flags: flags})
	}
	return sources
}

// defaultsSource seeds every known key with its hardcoded default.
type defaultsSource struct{}

func (defaultsSource) Name() string  { return "defaults" }
func (defaultsSource) Priority() int { return 0 }

func (defaultsSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil)
}

// fileSource loads an optional YAML config file. A missing file is only an
// error when the path was given explicitly.
type fileSource struct {
	path string
}

func (fileSource) Name() string  { return "config file" }
func (fileSource) Priority() int { return 10 }

func (s fileSource) Load(k *koanf.Koanf) error {
	path := s.path
	explicit := path != ""
	if !explicit {
		path = defaultConfigFilePath()
		if path == "" {
			return nil
		}
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		return nil
	}
	return k.Load(file.Provider(path), yaml.Parser())
}

func defaultConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.deckhand.yaml"
}

// envSource maps DECKHAND_* variables onto config keys
// (DECKHAND_WORKER_BASE_URL -> worker.base_url).
type envSource struct{}

func (envSource) Name() string  { return "environment" }
func (envSource) Priority() int { return 20 }

func (envSource) Load(k *koanf.Koanf) error {
	return k.Load(env.Provider(envPrefix, ".", envToKey), nil)
}

// envToKey lowercases the variable and maps the first two underscores to
// dots, leaving the rest intact so keys like worker.base_url survive.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// flagSource overlays explicitly set command-line flags.
type flagSource struct {
	flags *pflag.FlagSet
}

func (flagSource) Name() string  { return "flags" }
func (flagSource) Priority() int { return 30 }

func (s flagSource) Load(k *koanf.Koanf) error {
	return k.Load(posflag.Provider(s.flags, ".", k), nil)
}
