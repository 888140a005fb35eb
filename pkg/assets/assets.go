// Package assets describes the shared UI assets (still images, animated
// loops) and warms the resource cache with them ahead of first use.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/deckhand/deckhand/pkg/cache"
)

// Manifest lists the assets to preload, grouped by cache class.
type Manifest struct {
	Version  string  `yaml:"version"`
	Static   []Entry `yaml:"static"`
	Animated []Entry `yaml:"animated"`
}

// Entry names one asset file, relative to the assets directory.
type Entry struct {
	Name string `yaml:"name"`
}

// DefaultManifest covers the assets the client has always shipped with.
// Used when no manifest file is configured.
func DefaultManifest() *Manifest {
	return &Manifest{
		Version: "1",
		Static: []Entry{
			{Name: "pdf.png"},
			{Name: "image.png"},
		},
		Animated: []Entry{
			{Name: "loading.gif"},
			{Name: "shutdown.gif"},
		},
	}
}

// LoadManifest reads and parses a YAML asset manifest.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	var m Manifest
	if err := yaml.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("parse asset manifest: %w", err)
	}
	return &m, nil
}

// FileLoader returns a cache loader that reads asset files from dir. The
// cost of an entry is its size in bytes.
func FileLoader(dir string) cache.Loader {
	return func(class cache.Class, key string) (any, int, error) {
		data, err := os.ReadFile(filepath.Join(dir, key))
		if err != nil {
			return nil, 0, err
		}
		return data, len(data), nil
	}
}

// Preload warms the cache with every manifest entry. Individual load
// failures are collected rather than aborting the warm-up; a missing
// animation is cosmetic, not fatal.
func Preload(c *cache.ResourceCache, m *Manifest) (int, error) {
	loaded := 0
	var errs []error

	warm := func(class cache.Class, entries []Entry) {
		for _, e := range entries {
			if err := c.Preload(class, e.Name); err != nil {
				log.Warn().Str("asset", e.Name).Err(err).Msg("asset preload failed")
				errs = append(errs, err)
				continue
			}
			loaded++
		}
	}

	warm(cache.ClassStatic, m.Static)
	warm(cache.ClassAnimated, m.Animated)

	log.Debug().Int("loaded", loaded).Int("failed", len(errs)).Msg("asset preload finished")
	return loaded, errors.Join(errs...)
}
