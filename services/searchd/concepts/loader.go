// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package concepts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// overrideFile is the on-disk shape of a qualitative-terms override.
type overrideFile struct {
	Concepts []Concept `yaml:"concepts"`
}

// LoadOverrides parses and validates a concept table from a YAML file.
//
// # Outputs
//
//   - []Concept: The validated table, ready for Mapper.Replace.
//   - error: Non-nil on read, parse, or validation failure. The caller's
//     current table stays in effect on error.
func LoadOverrides(path string) ([]Concept, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read concept overrides: %w", err)
	}

	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse concept overrides: %w", err)
	}
	if len(file.Concepts) == 0 {
		return nil, fmt.Errorf("concept override file %s defines no concepts", path)
	}
	for i := range file.Concepts {
		if err := file.Concepts[i].Validate(); err != nil {
			return nil, fmt.Errorf("concept override file %s: %w", path, err)
		}
	}
	return file.Concepts, nil
}

// WatchOverrides hot-reloads the mapper's table when the override file
// changes.
//
// # Description
//
// Watches the file's parent directory (editors replace files rather than
// write in place, so watching the file itself misses saves). Write and
// create events for the file are debounced for 200ms, then the file is
// reloaded. A file that fails to parse is logged and skipped; the last
// good table stays live. Returns once the watch is established; the
// reload loop runs until ctx is cancelled.
func WatchOverrides(ctx context.Context, m *Mapper, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create override watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var timerC <-chan time.Time

		reload := func() {
			table, err := LoadOverrides(target)
			if err != nil {
				slog.Error("Concept override reload failed, keeping previous table", "error", err)
				return
			}
			m.Replace(table)
			slog.Info("Reloaded concept overrides", "path", target, "concepts", len(table))
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(200 * time.Millisecond)
					timerC = timer.C
				} else {
					timer.Reset(200 * time.Millisecond)
				}

			case <-timerC:
				reload()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Concept override watcher error", "error", err)
			}
		}
	}()

	return nil
}
