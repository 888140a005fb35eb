// Package workerpath resolves where the deck-processing worker lives on
// disk. The supervisor itself never guesses paths; it asks this package.
package workerpath

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/deckhand/deckhand/pkg/supervisor"
)

// DefaultInterpreter runs the worker entrypoint when no override is set.
const DefaultInterpreter = "python3"

// relativeCandidates are tried against each search root, mirroring the
// layouts the worker has shipped in.
var relativeCandidates = []string{
	"backend/server.py",
	filepath.Join("..", "backend", "server.py"),
	filepath.Join("..", "..", "backend", "server.py"),
}

// Locator finds the worker entrypoint and working directory. Explicit
// settings win over the candidate search.
type Locator struct {
	// Interpreter is the executable used to run the entrypoint.
	Interpreter string

	// Script is an explicit path to the worker entrypoint. When set, no
	// search is performed.
	Script string

	// WorkDir overrides the working directory. Defaults to the directory
	// containing the resolved script.
	WorkDir string

	// SearchRoots are the directories the candidate paths are tried
	// against. Defaults to the executable's directory and the current
	// working directory.
	SearchRoots []string
}

// Resolve implements supervisor.Locator.
func (l Locator) Resolve() (supervisor.Command, error) {
	interpreter := l.Interpreter
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}

	script := l.Script
	if script == "" {
		found, err := l.findScript()
		if err != nil {
			return supervisor.Command{}, err
		}
		script = found
	} else if _, err := os.Stat(script); err != nil {
		return supervisor.Command{}, fmt.Errorf("worker entrypoint %s: %w", script, err)
	}

	abs, err := filepath.Abs(script)
	if err != nil {
		return supervisor.Command{}, fmt.Errorf("resolve worker entrypoint: %w", err)
	}

	dir := l.WorkDir
	if dir == "" {
		dir = filepath.Dir(abs)
	}

	log.Debug().Str("script", abs).Str("dir", dir).Msg("resolved worker command")
	return supervisor.Command{
		Path: interpreter,
		Args: []string{abs},
		Dir:  dir,
	}, nil
}

func (l Locator) findScript() (string, error) {
	roots := l.SearchRoots
	if len(roots) == 0 {
		if exe, err := os.Executable(); err == nil {
			roots = append(roots, filepath.Dir(exe))
		}
		if cwd, err := os.Getwd(); err == nil {
			roots = append(roots, cwd)
		}
	}

	var tried []string
	for _, root := range roots {
		for _, rel := range relativeCandidates {
			candidate := filepath.Join(root, rel)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
			tried = append(tried, candidate)
		}
	}
	return "", fmt.Errorf("worker entrypoint not found; tried %v", tried)
}
